// Package transfer moves credential records between the active local store
// and a container's embedded store: export writes selected records into the
// container, import merges container records back with duplicate detection
// and a legacy split-schema fallback.
package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/webauthnai/DogTagClient-sub000/internal/common"
	"github.com/webauthnai/DogTagClient-sub000/internal/cryptox"
	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/cache"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/provisioner"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/store"
)

// ImportStats reports the outcome of one import pass.
type ImportStats struct {
	// Imported counts client records written to the local store.
	Imported int

	// Duplicates counts records skipped because the local store already
	// holds their identifier and overwrite was not requested.
	Duplicates int

	// Skipped counts client records dropped for lacking a decodable
	// private-key reference. Such records cannot authenticate.
	Skipped int
}

// Engine performs exports and imports. Operations on the same container are
// serialized so two concurrent transfers cannot race first-time schema
// initialization inside the container.
type Engine struct {
	local store.CredentialStore
	prov  *provisioner.Provisioner
	cache *cache.Cache
	log   logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a transfer engine over the given local store and provisioner.
func New(local store.CredentialStore, prov *provisioner.Provisioner, metaCache *cache.Cache, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		local: local,
		prov:  prov,
		cache: metaCache,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// containerLock returns the serialization lock for a container identifier,
// creating it on first use. The registry lock is never held while the
// container lock is.
func (e *Engine) containerLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Export writes the local credentials named by credentialIDs into the
// container's embedded store, creating the store (and its schema) when the
// container predates the unified layout. Identifiers absent from the local
// set are skipped silently; the returned count reflects only records
// actually written. A non-empty passphrase additionally seals each exported
// private-key reference.
func (e *Engine) Export(ctx context.Context, containerID string, credentialIDs []string, passphrase []byte) (int, error) {
	lock := e.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	mountPath, err := e.prov.MountByID(ctx, containerID, passphrase)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrExportFailed, err)
	}

	dst, err := e.prov.OpenStore(ctx, filepath.Join(mountPath, store.UnifiedDBName))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrExportFailed, err)
	}
	defer dst.Close()

	clientByID, serverByID, err := e.localByID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	var clients []models.ClientCredential
	var servers []models.ServerCredential
	for _, id := range credentialIDs {
		c, ok := clientByID[id]
		if !ok {
			e.log.Debug(ctx, "export skipping unknown credential", "credential", id)
			continue
		}

		if len(passphrase) > 0 {
			sealed, err := sealRef(c.PrivateKeyRef, passphrase, containerID)
			if err != nil {
				return 0, fmt.Errorf("%w: seal %s: %v", common.ErrExportFailed, id, err)
			}
			c.PrivateKeyRef = sealed
		}

		clients = append(clients, c)
		if s, ok := serverByID[id]; ok {
			servers = append(servers, s)
		}
	}

	// One transaction for the whole export: the container never ends up
	// with half a credential set.
	if err := dst.SaveBatch(ctx, clients, servers); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	e.cache.Touch(ctx, containerID)
	e.cache.Invalidate(ctx, containerID)
	return len(clients), nil
}

// Import merges the container's records into the local store. The unified
// database is preferred; containers created under the older split layout
// are read through their two legacy files instead. Records whose identifier
// already exists locally are skipped as duplicates unless overwriteExisting
// is set, in which case the container copy wins.
func (e *Engine) Import(ctx context.Context, containerID string, passphrase []byte, overwriteExisting bool) (ImportStats, error) {
	lock := e.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	mountPath, err := e.prov.MountByID(ctx, containerID, passphrase)
	if err != nil {
		return ImportStats{}, fmt.Errorf("%w: %w", common.ErrImportFailed, err)
	}

	clientRecs, serverRecs, err := e.readContainer(ctx, mountPath)
	if err != nil {
		return ImportStats{}, fmt.Errorf("%w: %w", common.ErrImportFailed, err)
	}

	stats := ImportStats{}
	for _, c := range clientRecs {
		if len(passphrase) > 0 {
			if opened, err := openRef(c.PrivateKeyRef, passphrase, containerID); err == nil {
				c.PrivateKeyRef = opened
			}
			// An unopenable reference may simply predate sealing;
			// the decodability check below is the real gate.
		}
		if !decodableRef(c.PrivateKeyRef) {
			e.log.Warn(ctx, "import skipping credential without usable private key reference", "credential", c.ID)
			stats.Skipped++
			continue
		}
		exists, err := e.local.CredentialExists(ctx, c.ID)
		if err != nil {
			return stats, fmt.Errorf("%w: %v", common.ErrImportFailed, err)
		}
		if exists && !overwriteExisting {
			stats.Duplicates++
			continue
		}
		if err := e.local.SaveCredential(ctx, &c); err != nil {
			return stats, fmt.Errorf("%w: %v", common.ErrImportFailed, err)
		}
		stats.Imported++
	}

	for _, s := range serverRecs {
		exists, err := e.local.ServerCredentialExists(ctx, s.ID)
		if err != nil {
			return stats, fmt.Errorf("%w: %v", common.ErrImportFailed, err)
		}
		if exists && !overwriteExisting {
			continue
		}
		if err := e.local.SaveServerCredential(ctx, &s); err != nil {
			return stats, fmt.Errorf("%w: %v", common.ErrImportFailed, err)
		}
	}

	e.cache.Touch(ctx, containerID)
	return stats, nil
}

// ReadContainer mounts a container and loads every record from its store
// without writing anything. Used by operator-facing comparisons.
func (e *Engine) ReadContainer(ctx context.Context, containerID string, passphrase []byte) ([]models.ClientCredential, []models.ServerCredential, error) {
	lock := e.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	mountPath, err := e.prov.MountByID(ctx, containerID, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return e.readContainer(ctx, mountPath)
}

// LocalRecords loads every record from the active local store.
func (e *Engine) LocalRecords(ctx context.Context) ([]models.ClientCredential, []models.ServerCredential, error) {
	clients, err := e.local.FetchCredentials(ctx)
	if err != nil {
		return nil, nil, err
	}
	servers, err := e.local.FetchServerCredentials(ctx)
	if err != nil {
		return nil, nil, err
	}
	return clients, servers, nil
}

// readContainer loads every record from the container's store, preferring
// the unified database and falling back to the legacy split files. Either
// legacy file may be absent on its own. Every open goes through the
// provisioner's admission gate; at capacity the read is rejected, never
// silently treated as an empty container.
func (e *Engine) readContainer(ctx context.Context, mountPath string) ([]models.ClientCredential, []models.ServerCredential, error) {
	unified := filepath.Join(mountPath, store.UnifiedDBName)
	if _, err := os.Stat(unified); err == nil {
		s, err := e.prov.OpenExistingStore(ctx, unified)
		if err != nil {
			return nil, nil, err
		}
		defer s.Close()

		clients, err := s.FetchCredentials(ctx)
		if err != nil {
			return nil, nil, err
		}
		servers, err := s.FetchServerCredentials(ctx)
		if err != nil {
			return nil, nil, err
		}
		return clients, servers, nil
	}

	e.log.Debug(ctx, "unified store absent, reading legacy layout", "path", mountPath)

	var clients []models.ClientCredential
	if _, err := os.Stat(filepath.Join(mountPath, store.LegacyClientDBName)); err == nil {
		s, err := e.prov.OpenExistingStore(ctx, filepath.Join(mountPath, store.LegacyClientDBName))
		if err != nil {
			return nil, nil, err
		}
		clients, err = s.FetchCredentials(ctx)
		_ = s.Close()
		if err != nil {
			return nil, nil, err
		}
	}

	var servers []models.ServerCredential
	if _, err := os.Stat(filepath.Join(mountPath, store.LegacyServerDBName)); err == nil {
		s, err := e.prov.OpenExistingStore(ctx, filepath.Join(mountPath, store.LegacyServerDBName))
		if err != nil {
			return nil, nil, err
		}
		servers, err = s.FetchServerCredentials(ctx)
		_ = s.Close()
		if err != nil {
			return nil, nil, err
		}
	}
	return clients, servers, nil
}

func (e *Engine) localByID(ctx context.Context) (map[string]models.ClientCredential, map[string]models.ServerCredential, error) {
	clients, err := e.local.FetchCredentials(ctx)
	if err != nil {
		return nil, nil, err
	}
	servers, err := e.local.FetchServerCredentials(ctx)
	if err != nil {
		return nil, nil, err
	}

	clientByID := make(map[string]models.ClientCredential, len(clients))
	for _, c := range clients {
		clientByID[c.ID] = c
	}
	serverByID := make(map[string]models.ServerCredential, len(servers))
	for _, s := range servers {
		serverByID[s.ID] = s
	}
	return clientByID, serverByID, nil
}

// decodeRef accepts the base64 variants seen in practice.
func decodeRef(ref string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(ref); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(ref)
}

func decodableRef(ref string) bool {
	if ref == "" {
		return false
	}
	_, err := decodeRef(ref)
	return err == nil
}

// sealRef encrypts a private-key reference under a passphrase-derived key.
// The container identifier serves as the derivation salt so the same
// passphrase opens the reference on import without storing the salt.
func sealRef(ref string, passphrase []byte, containerID string) (string, error) {
	plain, err := decodeRef(ref)
	if err != nil {
		return "", err
	}
	key := cryptox.DeriveKey(passphrase, []byte(containerID))
	sealed, err := cryptox.Seal(plain, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// openRef reverses sealRef.
func openRef(ref string, passphrase []byte, containerID string) (string, error) {
	sealed, err := decodeRef(ref)
	if err != nil {
		return "", err
	}
	key := cryptox.DeriveKey(passphrase, []byte(containerID))
	plain, err := cryptox.Open(sealed, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(plain), nil
}
