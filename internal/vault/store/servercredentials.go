package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/webauthnai/DogTagClient-sub000/internal/dbx"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
)

// ServerCredentialRepository persists relying-party-side credential mirrors.
// Every column round-trips; transfer must not default any field away.
type ServerCredentialRepository struct {
	db dbx.DBTX
}

func NewServerCredentialRepository(db dbx.DBTX) *ServerCredentialRepository {
	return &ServerCredentialRepository{db: db}
}

// Save upserts a server credential by id.
func (r *ServerCredentialRepository) Save(ctx context.Context, c *models.ServerCredential) error {
	query := `INSERT INTO server_credentials
			(id, public_key_jwk, sign_count, username, algorithm, protocol,
			 attestation_format, model_id, is_discoverable, backup_eligible,
			 backup_state, emoji, last_login_ip, last_login_at, is_enabled,
			 is_admin, user_number)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				public_key_jwk = excluded.public_key_jwk,
				sign_count = excluded.sign_count,
				username = excluded.username,
				algorithm = excluded.algorithm,
				protocol = excluded.protocol,
				attestation_format = excluded.attestation_format,
				model_id = excluded.model_id,
				is_discoverable = excluded.is_discoverable,
				backup_eligible = excluded.backup_eligible,
				backup_state = excluded.backup_state,
				emoji = excluded.emoji,
				last_login_ip = excluded.last_login_ip,
				last_login_at = excluded.last_login_at,
				is_enabled = excluded.is_enabled,
				is_admin = excluded.is_admin,
				user_number = excluded.user_number
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.PublicKeyJWK, c.SignCount, c.Username, c.Algorithm, c.Protocol,
		c.AttestationFormat, c.ModelID, c.IsDiscoverable, c.BackupEligible,
		c.BackupState, c.Emoji, c.LastLoginIP, timeToDB(c.LastLoginAt),
		c.IsEnabled, c.IsAdmin, c.UserNumber)
	if err != nil {
		return fmt.Errorf("failed to upsert server credential: %w", err)
	}
	return nil
}

const serverCredentialColumns = `id, public_key_jwk, sign_count, username,
	algorithm, protocol, attestation_format, model_id, is_discoverable,
	backup_eligible, backup_state, emoji, last_login_ip, last_login_at,
	is_enabled, is_admin, user_number`

func (r *ServerCredentialRepository) scanAll(rows *sql.Rows) ([]models.ServerCredential, error) {
	defer rows.Close()

	var result []models.ServerCredential
	for rows.Next() {
		var item models.ServerCredential
		var lastLoginAt int64
		if err := rows.Scan(&item.ID, &item.PublicKeyJWK, &item.SignCount,
			&item.Username, &item.Algorithm, &item.Protocol,
			&item.AttestationFormat, &item.ModelID, &item.IsDiscoverable,
			&item.BackupEligible, &item.BackupState, &item.Emoji,
			&item.LastLoginIP, &lastLoginAt, &item.IsEnabled, &item.IsAdmin,
			&item.UserNumber); err != nil {
			return nil, err
		}
		item.LastLoginAt = timeFromDB(lastLoginAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAll lists every server credential in the store.
func (r *ServerCredentialRepository) GetAll(ctx context.Context) ([]models.ServerCredential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+serverCredentialColumns+` FROM server_credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select server credentials: %w", err)
	}
	return r.scanAll(rows)
}

// Exists reports whether a server credential with the given id is present.
func (r *ServerCredentialRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_credentials WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check server credential: %w", err)
	}
	return n > 0, nil
}
