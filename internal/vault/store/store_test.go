package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), UnifiedDBName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleCredential(id string) *models.ClientCredential {
	return &models.ClientCredential{
		ID:              id,
		RelyingParty:    "example.com",
		UserHandle:      "dXNlcg",
		UserDisplayName: "User One",
		PublicKey:       []byte{0x04, 0x01, 0x02},
		PrivateKeyRef:   "cHJpdmF0ZQ==",
		CreatedAt:       time.Unix(1700000000, 123456789).UTC(),
		LastUsedAt:      time.Unix(1700000500, 987654321).UTC(),
		SignCount:       7,
		IsResident:      true,
	}
}

func sampleServerCredential(id string) *models.ServerCredential {
	return &models.ServerCredential{
		ID:                id,
		PublicKeyJWK:      `{"kty":"EC","crv":"P-256"}`,
		SignCount:         12,
		Username:          "user-one",
		Algorithm:         -7,
		Protocol:          "fido2",
		AttestationFormat: "none",
		ModelID:           "6f1615d1-f35f-4ab2-9bd5-0d4ee02aa33d",
		IsDiscoverable:    true,
		BackupEligible:    true,
		BackupState:       false,
		Emoji:             "🔑",
		LastLoginIP:       "203.0.113.7",
		LastLoginAt:       time.Unix(1700001000, 555000111).UTC(),
		IsEnabled:         true,
		IsAdmin:           true,
		UserNumber:        42,
	}
}

func TestStore_CredentialRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	want := sampleCredential("c1")
	require.NoError(t, s.SaveCredential(ctx, want))

	got, err := s.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *want, got[0])
}

func TestStore_ServerCredentialRoundTrip_NoFieldDefaulted(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	want := sampleServerCredential("c1")
	require.NoError(t, s.SaveServerCredential(ctx, want))

	got, err := s.FetchServerCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *want, got[0])
}

func TestStore_SaveIsUpsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := sampleCredential("c1")
	require.NoError(t, s.SaveCredential(ctx, c))

	c.SignCount = 99
	c.UserDisplayName = "Renamed"
	require.NoError(t, s.SaveCredential(ctx, c))

	got, err := s.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(99), got[0].SignCount)
	assert.Equal(t, "Renamed", got[0].UserDisplayName)
}

func TestStore_FetchCredentialsForRP(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := sampleCredential("a")
	b := sampleCredential("b")
	b.RelyingParty = "other.org"
	require.NoError(t, s.SaveCredential(ctx, a))
	require.NoError(t, s.SaveCredential(ctx, b))

	got, err := s.FetchCredentialsForRP(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestStore_StorageInfo(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredential(ctx, sampleCredential("c1")))
	require.NoError(t, s.SaveCredential(ctx, sampleCredential("c2")))
	require.NoError(t, s.SaveServerCredential(ctx, sampleServerCredential("c1")))

	info, err := s.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.CredentialCount)
	assert.Equal(t, 1, info.ServerCredentialCount)
	assert.Equal(t, 0, info.ContainerCount)
}

func TestOpenExisting_MissingFile(t *testing.T) {
	_, err := OpenExisting(filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
}

func TestStorageInfo_LegacyFileWithPartialSchema(t *testing.T) {
	// A legacy client-side file carries only the credentials table.
	path := filepath.Join(t.TempDir(), LegacyClientDBName)
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE credentials (
		id TEXT PRIMARY KEY, relying_party TEXT NOT NULL,
		user_handle TEXT NOT NULL DEFAULT '', user_display_name TEXT NOT NULL DEFAULT '',
		public_key BLOB, private_key_ref TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0, last_used_at INTEGER NOT NULL DEFAULT 0,
		sign_count INTEGER NOT NULL DEFAULT 0, is_resident INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := OpenExisting(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.SaveCredential(context.Background(), sampleCredential("legacy-1")))

	info, err := s.StorageInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.CredentialCount)
	assert.Equal(t, 0, info.ServerCredentialCount)
}

func TestCredentialExists(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredential(ctx, sampleCredential("c1")))

	ok, err := s.CredentialExists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CredentialExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerCredentialExists(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveServerCredential(ctx, sampleServerCredential("s1")))

	ok, err := s.ServerCredentialExists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ServerCredentialExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveBatch_WritesBothKinds(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	clients := []models.ClientCredential{*sampleCredential("c1"), *sampleCredential("c2")}
	servers := []models.ServerCredential{*sampleServerCredential("c1")}

	require.NoError(t, s.SaveBatch(ctx, clients, servers))

	info, err := s.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.CredentialCount)
	assert.Equal(t, 1, info.ServerCredentialCount)
}

func TestSaveBatch_EmptyIsNoop(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.SaveBatch(context.Background(), nil, nil))

	info, err := s.StorageInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, info.CredentialCount)
}
