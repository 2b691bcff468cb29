// Package provisioner manages the lifecycle of portable credential
// containers: creating, mounting, unmounting, listing and deleting the
// on-disk volumes, with cached mount records and metadata-cache-backed
// credential counts so listing stays cheap.
package provisioner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webauthnai/DogTagClient-sub000/internal/common"
	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/cache"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/diskimage"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/limiter"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/models"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/store"
)

// Defaults for container files.
const (
	DefaultContainerExt = ".dmg"
	DefaultFSHint       = "HFS+"
)

// IdentifierFromPath derives a container's stable identifier from its
// storage path: the first 16 bytes of SHA-256(path) formatted as a uuid.
// The same path always yields the same identifier, across restarts.
func IdentifierFromPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// Unreachable: the slice is always 16 bytes.
		panic(err)
	}
	return id.String()
}

// Options tune a Provisioner. Zero values fall back to defaults.
type Options struct {
	ContainerExt string
	FSHint       string
	CountMaxAge  time.Duration
	Logger       logging.Logger
}

// Provisioner owns the managed container directory and all mount records.
type Provisioner struct {
	dir         string
	ext         string
	fsHint      string
	util        diskimage.Util
	cache       *cache.Cache
	gate        *limiter.Gate
	countMaxAge time.Duration
	log         logging.Logger

	// mu guards mounts. Never held across a utility invocation or store
	// open; the invariant is at most one mount path per container id.
	mu     sync.Mutex
	mounts map[string]string

	// openStore and openExistingStore are test seams for store.Open and
	// store.OpenExisting.
	openStore         func(ctx context.Context, path string) (store.CredentialStore, error)
	openExistingStore func(path string) (store.CredentialStore, error)
}

// New validates the managed directory and builds a Provisioner. The
// directory must exist, be a directory, and be writable; anything else is
// ErrInvalidDirectory.
func New(dir string, util diskimage.Util, metaCache *cache.Cache, gate *limiter.Gate, opts Options) (*Provisioner, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidDirectory, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", common.ErrInvalidDirectory, dir)
	}
	probe := filepath.Join(dir, ".vault-write-probe")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %s is not writable: %v", common.ErrInvalidDirectory, dir, err)
	}
	_ = os.Remove(probe)

	if opts.ContainerExt == "" {
		opts.ContainerExt = DefaultContainerExt
	}
	if opts.FSHint == "" {
		opts.FSHint = DefaultFSHint
	}
	if opts.CountMaxAge <= 0 {
		opts.CountMaxAge = cache.DefaultMaxAge
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	return &Provisioner{
		dir:         dir,
		ext:         opts.ContainerExt,
		fsHint:      opts.FSHint,
		util:        util,
		cache:       metaCache,
		gate:        gate,
		countMaxAge: opts.CountMaxAge,
		log:         opts.Logger,
		mounts:      make(map[string]string),
		openStore: func(ctx context.Context, path string) (store.CredentialStore, error) {
			return store.Open(ctx, path)
		},
		openExistingStore: func(path string) (store.CredentialStore, error) {
			return store.OpenExisting(path)
		},
	}, nil
}

// ContainerPath returns the on-disk path for a container display name.
func (p *Provisioner) ContainerPath(name string) string {
	return filepath.Join(p.dir, name+p.ext)
}

// ResolvePath maps a container identifier back to its file path by scanning
// the managed directory. Unknown ids are ErrNotFound.
func (p *Provisioner) ResolvePath(id string) (string, error) {
	paths, err := p.containerFiles()
	if err != nil {
		return "", err
	}
	for _, path := range paths {
		if IdentifierFromPath(path) == id {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", common.ErrNotFound, id)
}

func (p *Provisioner) containerFiles() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read vault directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), p.ext) {
			continue
		}
		paths = append(paths, filepath.Join(p.dir, e.Name()))
	}
	return paths, nil
}

// Create allocates a new container, mounts it, and initializes its embedded
// store so first export does not pay schema setup. The container stays
// mounted on success.
func (p *Provisioner) Create(ctx context.Context, name string, sizeMB int, passphrase []byte) (models.Container, error) {
	path := p.ContainerPath(name)
	if _, err := os.Stat(path); err == nil {
		return models.Container{}, fmt.Errorf("%w: %s", common.ErrAlreadyExists, name)
	}

	if err := p.util.Create(ctx, path, sizeMB, p.fsHint, name, passphrase); err != nil {
		return models.Container{}, err
	}

	mountPath, err := p.Mount(ctx, path, passphrase)
	if err != nil {
		return models.Container{}, err
	}

	// Best effort: a missing store is recreated by the transfer engine
	// on first export, so initialization failure only loses warm-up.
	if s, err := p.OpenStore(ctx, filepath.Join(mountPath, store.UnifiedDBName)); err != nil {
		p.log.Warn(ctx, "container store initialization deferred", "container", name, "error", err)
	} else {
		_ = s.Close()
	}

	id := IdentifierFromPath(path)
	p.cache.Touch(ctx, id)

	return models.Container{
		ID:             id,
		Name:           name,
		Path:           path,
		CreatedAt:      time.Now().UTC(),
		LastAccessedAt: p.cache.AccessTime(id),
		IsLocked:       len(passphrase) > 0,
	}, nil
}

// Mount attaches the container at path, reusing a cached mount record when
// its mount path still exists on disk. A record whose path has vanished
// (unmounted behind our back) is dropped and the utility re-invoked.
func (p *Provisioner) Mount(ctx context.Context, path string, passphrase []byte) (string, error) {
	id := IdentifierFromPath(path)

	p.mu.Lock()
	if mp, ok := p.mounts[id]; ok {
		if _, err := os.Stat(mp); err == nil {
			p.mu.Unlock()
			p.cache.Touch(ctx, id)
			return mp, nil
		}
		delete(p.mounts, id)
		p.log.Debug(ctx, "dropping stale mount record", "container", id, "path", mp)
	}
	p.mu.Unlock()

	mountPath, err := p.util.Mount(ctx, path, passphrase)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.mounts[id] = mountPath
	p.mu.Unlock()

	p.cache.Touch(ctx, id)
	return mountPath, nil
}

// MountByID resolves an identifier to its container file and mounts it.
func (p *Provisioner) MountByID(ctx context.Context, id string, passphrase []byte) (string, error) {
	path, err := p.ResolvePath(id)
	if err != nil {
		return "", err
	}
	return p.Mount(ctx, path, passphrase)
}

// MountPathFor returns the cached mount path for a container, if any.
func (p *Provisioner) MountPathFor(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mp, ok := p.mounts[id]
	return mp, ok
}

// Unmount detaches a mounted volume and clears every mount record pointing
// at it.
func (p *Provisioner) Unmount(ctx context.Context, mountPath string) error {
	if err := p.util.Unmount(ctx, mountPath); err != nil {
		return err
	}

	p.mu.Lock()
	for id, mp := range p.mounts {
		if mp == mountPath {
			delete(p.mounts, id)
		}
	}
	p.mu.Unlock()
	return nil
}

// List enumerates the managed directory. Encryption status comes from a
// metadata-only inspect; credential counts come from the metadata cache,
// mounting only when the cached count is stale. Count failures degrade to
// 0 rather than failing the listing.
func (p *Provisioner) List(ctx context.Context) ([]models.Container, error) {
	paths, err := p.containerFiles()
	if err != nil {
		return nil, err
	}

	containers := make([]models.Container, 0, len(paths))
	for _, path := range paths {
		id := IdentifierFromPath(path)

		var createdAt time.Time
		if info, err := os.Stat(path); err == nil {
			createdAt = info.ModTime().UTC()
		}

		locked := false
		if enc, err := p.util.Inspect(ctx, path); err != nil {
			p.log.Debug(ctx, "inspect failed, assuming unlocked", "path", path, "error", err)
		} else {
			locked = enc
		}

		count, err := p.cache.CredentialCount(ctx, id, p.countMaxAge, func(ctx context.Context) (int, error) {
			return p.countCredentials(ctx, path, locked)
		})
		if err != nil {
			p.log.Warn(ctx, "credential count unavailable", "container", id, "error", err)
			count = 0
		}

		name := strings.TrimSuffix(filepath.Base(path), p.ext)
		containers = append(containers, models.Container{
			ID:              id,
			Name:            name,
			Path:            path,
			CreatedAt:       createdAt,
			LastAccessedAt:  p.cache.AccessTime(id),
			IsLocked:        locked,
			CredentialCount: count,
		})
	}
	return containers, nil
}

// countCredentials recomputes a container's credential count by opening its
// embedded store, mounting first when needed. Locked containers that are
// not already mounted cannot be counted without a passphrase.
func (p *Provisioner) countCredentials(ctx context.Context, path string, locked bool) (int, error) {
	id := IdentifierFromPath(path)

	mountPath, mounted := p.MountPathFor(id)
	if !mounted {
		if locked {
			return 0, fmt.Errorf("container %s is locked and not mounted", id)
		}
		mp, err := p.Mount(ctx, path, nil)
		if err != nil {
			return 0, err
		}
		mountPath = mp
	}

	s, err := p.OpenStore(ctx, filepath.Join(mountPath, store.UnifiedDBName))
	if err != nil {
		return 0, err
	}
	defer s.Close()

	info, err := s.StorageInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.CredentialCount, nil
}

// OpenStore opens an embedded store database under the operation limiter.
// At capacity the open is rejected immediately; callers treat that as
// "temporarily unavailable" and fall back to a cached or default value.
// The gate is held only for the open itself, never for the store's
// lifetime.
func (p *Provisioner) OpenStore(ctx context.Context, dbPath string) (store.CredentialStore, error) {
	if !p.gate.Acquire() {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageInitFailed, common.ErrRateLimited)
	}
	defer p.gate.Release()

	s, err := p.openStore(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageInitFailed, err)
	}
	return s, nil
}

// OpenExistingStore opens a store database that must already exist, without
// touching its schema, under the same admission gate as OpenStore.
func (p *Provisioner) OpenExistingStore(ctx context.Context, dbPath string) (store.CredentialStore, error) {
	if !p.gate.Acquire() {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageInitFailed, common.ErrRateLimited)
	}
	defer p.gate.Release()

	s, err := p.openExistingStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageInitFailed, err)
	}
	return s, nil
}

// Delete removes a container file, unmounting it first if needed.
func (p *Provisioner) Delete(ctx context.Context, id string) error {
	path, err := p.ResolvePath(id)
	if err != nil {
		return err
	}

	if mountPath, ok := p.MountPathFor(id); ok {
		if err := p.Unmount(ctx, mountPath); err != nil {
			return err
		}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove container %s: %w", path, err)
	}
	p.cache.Remove(ctx, id)
	return nil
}

// MountAll opportunistically mounts every container that opens without a
// passphrase, making subsequent reads cheap. Mount failures (typically
// encrypted containers) are expected and skipped quietly.
func (p *Provisioner) MountAll(ctx context.Context) {
	paths, err := p.containerFiles()
	if err != nil {
		p.log.Warn(ctx, "startup mount scan failed", "error", err)
		return
	}
	for _, path := range paths {
		if _, err := p.Mount(ctx, path, nil); err != nil {
			p.log.Debug(ctx, "skipping container at startup", "path", path, "error", err)
		}
	}
}
