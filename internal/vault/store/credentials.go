package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/webauthnai/DogTagClient-sub000/internal/dbx"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
)

// CredentialRepository persists client credential records using a DBTX
// (either *sql.DB or *sql.Tx).
type CredentialRepository struct {
	db dbx.DBTX
}

func NewCredentialRepository(db dbx.DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Times are stored as unix nanoseconds so every field round-trips exactly.
// Zero times are stored as 0.
func timeToDB(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromDB(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Save upserts a credential by id. On conflict, all mutable columns are
// replaced.
func (r *CredentialRepository) Save(ctx context.Context, c *models.ClientCredential) error {
	query := `INSERT INTO credentials
			(id, relying_party, user_handle, user_display_name, public_key,
			 private_key_ref, created_at, last_used_at, sign_count, is_resident)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				relying_party = excluded.relying_party,
				user_handle = excluded.user_handle,
				user_display_name = excluded.user_display_name,
				public_key = excluded.public_key,
				private_key_ref = excluded.private_key_ref,
				created_at = excluded.created_at,
				last_used_at = excluded.last_used_at,
				sign_count = excluded.sign_count,
				is_resident = excluded.is_resident
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.RelyingParty, c.UserHandle, c.UserDisplayName, c.PublicKey,
		c.PrivateKeyRef, timeToDB(c.CreatedAt), timeToDB(c.LastUsedAt),
		c.SignCount, c.IsResident)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

const credentialColumns = `id, relying_party, user_handle, user_display_name,
	public_key, private_key_ref, created_at, last_used_at, sign_count, is_resident`

func (r *CredentialRepository) scanAll(rows *sql.Rows) ([]models.ClientCredential, error) {
	defer rows.Close()

	var result []models.ClientCredential
	for rows.Next() {
		var item models.ClientCredential
		var createdAt, lastUsedAt int64
		if err := rows.Scan(&item.ID, &item.RelyingParty, &item.UserHandle,
			&item.UserDisplayName, &item.PublicKey, &item.PrivateKeyRef,
			&createdAt, &lastUsedAt, &item.SignCount, &item.IsResident); err != nil {
			return nil, err
		}
		item.CreatedAt = timeFromDB(createdAt)
		item.LastUsedAt = timeFromDB(lastUsedAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAll lists every credential in the store.
func (r *CredentialRepository) GetAll(ctx context.Context) ([]models.ClientCredential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select credentials: %w", err)
	}
	return r.scanAll(rows)
}

// GetByRelyingParty lists credentials issued for one relying party.
func (r *CredentialRepository) GetByRelyingParty(ctx context.Context, relyingParty string) ([]models.ClientCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE relying_party = ? ORDER BY id`,
		relyingParty)
	if err != nil {
		return nil, fmt.Errorf("failed to select credentials for rp: %w", err)
	}
	return r.scanAll(rows)
}

// Exists reports whether a credential with the given id is present.
func (r *CredentialRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check credential: %w", err)
	}
	return n > 0, nil
}
