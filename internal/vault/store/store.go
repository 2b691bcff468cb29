// Package store implements the embedded credential storage backend: one
// sqlite database per container (or per active local store), consumed
// through a narrow save/fetch contract. Schema management goes through
// goose migrations embedded in the binary.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/webauthnai/DogTagClient-sub000/internal/dbx"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/store/migrations"
)

// Well-known database file names on an opened volume.
const (
	// UnifiedDBName is the single database file used by the current layout.
	UnifiedDBName = "vault.db"

	// Legacy split layout: client and server records in separate files.
	LegacyClientDBName = "credentials.db"
	LegacyServerDBName = "server.db"
)

// StorageInfo summarizes the contents of a store.
type StorageInfo struct {
	CredentialCount       int
	ServerCredentialCount int
	ContainerCount        int
}

// CredentialStore is the narrow contract the transfer engine and metadata
// cache depend on.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c *models.ClientCredential) error
	FetchCredentials(ctx context.Context) ([]models.ClientCredential, error)
	FetchCredentialsForRP(ctx context.Context, relyingParty string) ([]models.ClientCredential, error)
	CredentialExists(ctx context.Context, id string) (bool, error)
	SaveServerCredential(ctx context.Context, c *models.ServerCredential) error
	FetchServerCredentials(ctx context.Context) ([]models.ServerCredential, error)
	ServerCredentialExists(ctx context.Context, id string) (bool, error)
	SaveBatch(ctx context.Context, clients []models.ClientCredential, servers []models.ServerCredential) error
	StorageInfo(ctx context.Context) (StorageInfo, error)
	Close() error
}

// Store is the sqlite-backed CredentialStore.
type Store struct {
	db          *sql.DB
	creds       *CredentialRepository
	serverCreds *ServerCredentialRepository
}

var _ CredentialStore = (*Store)(nil)

// goose configuration is process-global; serialize migration runs so
// concurrent store opens cannot interleave SetBaseFS/SetDialect.
var migrateMu sync.Mutex

func runMigrations(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The embedded store is single-file sqlite; one connection avoids
	// writer contention between repositories sharing the handle.
	db.SetMaxOpenConns(1)
	return db, nil
}

func newStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		creds:       NewCredentialRepository(db),
		serverCreds: NewServerCredentialRepository(db),
	}
}

// Open opens (creating if necessary) the store database at path and brings
// its schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store %s: %w", path, err)
	}
	return newStore(db), nil
}

// OpenExisting opens a store database that must already exist, without
// touching its schema. Used for legacy split-layout files, which are read
// as-is for backward compatibility.
func OpenExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat store %s: %w", path, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return newStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveCredential(ctx context.Context, c *models.ClientCredential) error {
	return s.creds.Save(ctx, c)
}

func (s *Store) FetchCredentials(ctx context.Context) ([]models.ClientCredential, error) {
	return s.creds.GetAll(ctx)
}

func (s *Store) FetchCredentialsForRP(ctx context.Context, relyingParty string) ([]models.ClientCredential, error) {
	return s.creds.GetByRelyingParty(ctx, relyingParty)
}

func (s *Store) SaveServerCredential(ctx context.Context, c *models.ServerCredential) error {
	return s.serverCreds.Save(ctx, c)
}

func (s *Store) FetchServerCredentials(ctx context.Context) ([]models.ServerCredential, error) {
	return s.serverCreds.GetAll(ctx)
}

func (s *Store) CredentialExists(ctx context.Context, id string) (bool, error) {
	return s.creds.Exists(ctx, id)
}

func (s *Store) ServerCredentialExists(ctx context.Context, id string) (bool, error) {
	return s.serverCreds.Exists(ctx, id)
}

// SaveBatch writes client and server records in a single transaction, so a
// multi-record transfer is either fully applied or not at all.
func (s *Store) SaveBatch(ctx context.Context, clients []models.ClientCredential, servers []models.ServerCredential) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		creds := NewCredentialRepository(tx)
		serverCreds := NewServerCredentialRepository(tx)
		for i := range clients {
			if err := creds.Save(ctx, &clients[i]); err != nil {
				return err
			}
		}
		for i := range servers {
			if err := serverCreds.Save(ctx, &servers[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// StorageInfo reports record counts. Missing tables (possible in legacy
// files holding only one half of the schema) count as zero rather than
// failing the whole call.
func (s *Store) StorageInfo(ctx context.Context) (StorageInfo, error) {
	info := StorageInfo{}

	counts := []struct {
		table string
		dst   *int
	}{
		{"credentials", &info.CredentialCount},
		{"server_credentials", &info.ServerCredentialCount},
		{"containers", &info.ContainerCount},
	}

	for _, c := range counts {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(&n)
		if err != nil {
			if tableMissing(err) {
				continue
			}
			return StorageInfo{}, fmt.Errorf("count %s: %w", c.table, err)
		}
		*c.dst = n
	}
	return info, nil
}

func tableMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
