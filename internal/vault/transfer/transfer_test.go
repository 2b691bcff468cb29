package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webauthnai/DogTagClient-sub000/internal/common"
	"github.com/webauthnai/DogTagClient-sub000/internal/cryptox"
	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/cache"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/diskimage"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/limiter"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/provisioner"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/store"
)

type fakeUtil struct {
	mountBase string
	encrypted map[string]bool
}

func newFakeUtil(t *testing.T) *fakeUtil {
	t.Helper()
	return &fakeUtil{mountBase: t.TempDir(), encrypted: make(map[string]bool)}
}

func (f *fakeUtil) Create(_ context.Context, path string, _ int, _, _ string, passphrase []byte) error {
	if err := os.WriteFile(path, []byte("disk image"), 0o600); err != nil {
		return err
	}
	if len(passphrase) > 0 {
		f.encrypted[path] = true
	}
	return nil
}

func (f *fakeUtil) Mount(_ context.Context, path string, passphrase []byte) (string, error) {
	if f.encrypted[path] && len(passphrase) == 0 {
		return "", fmt.Errorf("%w: passphrase required", common.ErrMountFailed)
	}
	dir := filepath.Join(f.mountBase, filepath.Base(path)+".mnt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (f *fakeUtil) Unmount(_ context.Context, mountPath string) error {
	return os.RemoveAll(mountPath)
}

func (f *fakeUtil) Inspect(_ context.Context, path string) (bool, error) {
	return f.encrypted[path], nil
}

var _ diskimage.Util = (*fakeUtil)(nil)

type fixture struct {
	engine *Engine
	local  *store.Store
	prov   *provisioner.Provisioner
	cache  *cache.Cache
	util   *fakeUtil
	gate   *limiter.Gate
	dir    string
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	util := newFakeUtil(t)
	metaCache := cache.New(dir, logging.Nop())
	gate := limiter.New(3)
	prov, err := provisioner.New(dir, util, metaCache, gate, provisioner.Options{})
	require.NoError(t, err)

	local, err := store.Open(ctx, filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	return &fixture{
		engine: New(local, prov, metaCache, logging.Nop()),
		local:  local,
		prov:   prov,
		cache:  metaCache,
		util:   util,
		gate:   gate,
		dir:    dir,
	}
}

func clientCred(id string) *models.ClientCredential {
	return &models.ClientCredential{
		ID:              id,
		RelyingParty:    "example.com",
		UserHandle:      base64.RawURLEncoding.EncodeToString([]byte("user-" + id)),
		UserDisplayName: "User " + id,
		PublicKey:       []byte{0x04, 0x01, 0x02},
		PrivateKeyRef:   base64.StdEncoding.EncodeToString([]byte("keyblob-" + id)),
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
		LastUsedAt:      time.Unix(1700003600, 0).UTC(),
		SignCount:       7,
		IsResident:      true,
	}
}

func serverCred(id string) *models.ServerCredential {
	return &models.ServerCredential{
		ID:                id,
		PublicKeyJWK:      `{"kty":"EC","crv":"P-256"}`,
		SignCount:         42,
		Username:          "alice",
		Algorithm:         -7,
		Protocol:          "fido2",
		AttestationFormat: "none",
		ModelID:           "0f0e0d0c-0b0a-0908-0706-050403020100",
		IsDiscoverable:    true,
		BackupEligible:    true,
		BackupState:       false,
		Emoji:             "🔑",
		LastLoginIP:       "203.0.113.9",
		LastLoginAt:       time.Unix(1700007200, 0).UTC(),
		IsEnabled:         true,
		IsAdmin:           false,
		UserNumber:        1001,
	}
}

func (f *fixture) seedLocal(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, f.local.SaveCredential(ctx, clientCred(id)))
		require.NoError(t, f.local.SaveServerCredential(ctx, serverCred(id)))
	}
}

func (f *fixture) createContainer(t *testing.T, name string) string {
	t.Helper()
	c, err := f.prov.Create(context.Background(), name, 10, nil)
	require.NoError(t, err)
	return c.ID
}

func TestExport_SkipsUnknownIDs(t *testing.T) {
	f := setupEngine(t)
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	n, err := f.engine.Export(context.Background(), id, []string{"c1", "missing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExport_UnknownContainer(t *testing.T) {
	f := setupEngine(t)
	f.seedLocal(t, "c1")

	_, err := f.engine.Export(context.Background(), "no-such-id", []string{"c1"}, nil)
	require.ErrorIs(t, err, common.ErrExportFailed)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestExportImport_RoundTripPreservesEveryServerField(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	n, err := f.engine.Export(ctx, id, []string{"c1"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Import into a fresh local store sharing the same container directory.
	dest, err := store.Open(ctx, filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer dest.Close()
	importer := New(dest, f.prov, f.cache, logging.Nop())

	stats, err := importer.Import(ctx, id, nil, false)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Imported: 1}, stats)

	clients, err := dest.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, *clientCred("c1"), clients[0])

	servers, err := dest.FetchServerCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, *serverCred("c1"), servers[0])
}

func TestImport_SecondPassIsAllDuplicates(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1", "c2")
	id := f.createContainer(t, "a")

	_, err := f.engine.Export(ctx, id, []string{"c1", "c2"}, nil)
	require.NoError(t, err)

	dest, err := store.Open(ctx, filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer dest.Close()
	importer := New(dest, f.prov, f.cache, logging.Nop())

	stats, err := importer.Import(ctx, id, nil, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Imported)

	stats, err = importer.Import(ctx, id, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Imported)
	assert.Equal(t, 2, stats.Duplicates)
}

func TestImport_OverwriteExistingWins(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	_, err := f.engine.Export(ctx, id, []string{"c1"}, nil)
	require.NoError(t, err)

	// Diverge the local copy, then pull the container copy back over it.
	changed := clientCred("c1")
	changed.UserDisplayName = "renamed locally"
	require.NoError(t, f.local.SaveCredential(ctx, changed))

	stats, err := f.engine.Import(ctx, id, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 0, stats.Duplicates)

	clients, err := f.local.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "User c1", clients[0].UserDisplayName)
}

func TestImport_LegacySplitLayout(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// A container provisioned out-of-band, with the old two-file layout
	// and no unified database.
	path := f.prov.ContainerPath("old")
	require.NoError(t, f.util.Create(ctx, path, 10, "HFS+", "old", nil))
	mountPath, err := f.prov.Mount(ctx, path, nil)
	require.NoError(t, err)

	legacyClient, err := store.Open(ctx, filepath.Join(mountPath, store.LegacyClientDBName))
	require.NoError(t, err)
	require.NoError(t, legacyClient.SaveCredential(ctx, clientCred("c1")))
	require.NoError(t, legacyClient.Close())

	legacyServer, err := store.Open(ctx, filepath.Join(mountPath, store.LegacyServerDBName))
	require.NoError(t, err)
	require.NoError(t, legacyServer.SaveServerCredential(ctx, serverCred("c1")))
	require.NoError(t, legacyServer.Close())

	stats, err := f.engine.Import(ctx, provisioner.IdentifierFromPath(path), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)

	servers, err := f.local.FetchServerCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "alice", servers[0].Username)
}

func TestImport_SkipsUndecodablePrivateKeyRef(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	id := f.createContainer(t, "a")

	mountPath, ok := f.prov.MountPathFor(id)
	require.True(t, ok)
	dst, err := store.Open(ctx, filepath.Join(mountPath, store.UnifiedDBName))
	require.NoError(t, err)
	broken := clientCred("c1")
	broken.PrivateKeyRef = "%%%not base64%%%"
	require.NoError(t, dst.SaveCredential(ctx, broken))
	require.NoError(t, dst.Close())

	stats, err := f.engine.Import(ctx, id, nil, false)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Skipped: 1}, stats)
}

func TestExport_SealsPrivateKeyRefUnderPassphrase(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	pass := []byte("s3cret")
	n, err := f.engine.Export(ctx, id, []string{"c1"}, pass)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	mountPath, ok := f.prov.MountPathFor(id)
	require.True(t, ok)
	inside, err := store.OpenExisting(filepath.Join(mountPath, store.UnifiedDBName))
	require.NoError(t, err)
	defer inside.Close()

	clients, err := inside.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.NotEqual(t, clientCred("c1").PrivateKeyRef, clients[0].PrivateKeyRef)

	// The sealed blob opens back to the original key material.
	sealed, err := base64.StdEncoding.DecodeString(clients[0].PrivateKeyRef)
	require.NoError(t, err)
	key := cryptox.DeriveKey(pass, []byte(id))
	plain, err := cryptox.Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("keyblob-c1"), plain)
}

func TestImport_UnsealsWithPassphrase(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	pass := []byte("s3cret")
	_, err := f.engine.Export(ctx, id, []string{"c1"}, pass)
	require.NoError(t, err)

	dest, err := store.Open(ctx, filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer dest.Close()
	importer := New(dest, f.prov, f.cache, logging.Nop())

	stats, err := importer.Import(ctx, id, pass, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Imported)

	clients, err := dest.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, clientCred("c1").PrivateKeyRef, clients[0].PrivateKeyRef)
}

// A saturated admission gate must reject the container-store open inside an
// import, not let the read proceed ungated or report an empty container.
func TestImport_RateLimitedWhenGateSaturated(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	_, err := f.engine.Export(ctx, id, []string{"c1"}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, f.gate.Acquire())
	}
	defer func() {
		for i := 0; i < 3; i++ {
			f.gate.Release()
		}
	}()

	_, err = f.engine.Import(ctx, id, nil, false)
	require.ErrorIs(t, err, common.ErrImportFailed)
	require.ErrorIs(t, err, common.ErrRateLimited)
}

// Full lifecycle: create a container, export one credential, observe the
// listed count, then import into a fresh local store.
func TestScenario_CreateExportListImport(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")

	c, err := f.prov.Create(ctx, "A", 10, nil)
	require.NoError(t, err)

	n, err := f.engine.Export(ctx, c.ID, []string{"c1"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	containers, err := f.prov.List(ctx)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, 1, containers[0].CredentialCount)

	fresh, err := store.Open(ctx, filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer fresh.Close()

	stats, err := New(fresh, f.prov, f.cache, logging.Nop()).Import(ctx, c.ID, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Imported)

	clients, err := fresh.FetchCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "c1", clients[0].ID)
}

func TestExport_InvalidatesCachedCount(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.seedLocal(t, "c1")
	id := f.createContainer(t, "a")

	// Prime the cache with the pre-export count.
	n, err := f.cache.CredentialCount(ctx, id, time.Hour,
		func(context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = f.engine.Export(ctx, id, []string{"c1"}, nil)
	require.NoError(t, err)

	// The stale zero must have been invalidated by the export.
	n, err = f.cache.CredentialCount(ctx, id, time.Hour,
		func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
