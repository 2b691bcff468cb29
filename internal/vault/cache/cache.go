// Package cache persists per-container metadata (last access time and
// credential counts) next to the managed container directory, so listing
// containers does not require mounting each one just to answer "how many
// credentials are inside?".
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
	"github.com/webauthnai/DogTagClient-sub000/internal/shared"
)

// MetadataFileName is the cache file kept inside the managed directory.
const MetadataFileName = "vault-metadata.json"

// DefaultMaxAge is how long a cached credential count is trusted. Access
// times have no staleness window and are always trusted as current.
const DefaultMaxAge = time.Hour

// Entry is the cached metadata for one container.
type Entry struct {
	// LastAccessedAt is updated unconditionally on every mount, export
	// and import touching the container.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// CredentialCount is the cached count; trusted while CountComputedAt
	// is within the caller's max age.
	CredentialCount int       `json:"credential_count"`
	CountComputedAt time.Time `json:"count_computed_at"`
}

// Cache is a persisted container-id → Entry map. All methods are safe for
// concurrent use.
type Cache struct {
	path string
	log  logging.Logger

	mu      sync.Mutex
	entries map[string]Entry

	// now is a test seam for time.Now.
	now func() time.Time
}

// New loads the cache file under dir. A missing or unreadable file starts
// the cache empty; a corrupted entry for one container is skipped without
// affecting the others.
func New(dir string, log logging.Logger) *Cache {
	c := &Cache{
		path:    filepath.Join(dir, MetadataFileName),
		log:     log,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	c.load()
	return c
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}

	// Entries are decoded individually so one corrupted record cannot
	// take down the whole cache.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		c.log.Warn(context.Background(), "metadata cache unreadable, starting empty", "path", c.path, "error", err)
		return
	}
	for id, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			c.log.Warn(context.Background(), "skipping corrupted metadata entry", "container", id, "error", err)
			continue
		}
		c.entries[id] = e
	}
}

// persist writes the cache atomically (temp file + rename). The temp name
// carries a random suffix so two processes sharing the directory cannot
// clobber each other's half-written file. Callers hold mu.
func (c *Cache) persist(ctx context.Context) {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		c.log.Error(ctx, "marshal metadata cache", "error", err)
		return
	}

	suffix, err := shared.MakeRandHexString(4)
	if err != nil {
		suffix = "tmp"
	}
	tmp := c.path + "." + suffix
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.log.Error(ctx, "write metadata cache", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.log.Error(ctx, "rename metadata cache", "path", c.path, "error", err)
	}
}

// AccessTime returns the recorded last-access time for a container, or the
// zero time when unknown.
func (c *Cache) AccessTime(id string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id].LastAccessedAt
}

// Touch records an access to the container and persists the cache.
func (c *Cache) Touch(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[id]
	e.LastAccessedAt = c.now().UTC()
	c.entries[id] = e
	c.persist(ctx)
}

// CredentialCount returns the cached count when its computation timestamp
// is within maxAge; otherwise it calls recompute and stores the result.
// recompute runs outside the cache lock.
func (c *Cache) CredentialCount(ctx context.Context, id string, maxAge time.Duration, recompute func(ctx context.Context) (int, error)) (int, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	now := c.now()
	c.mu.Unlock()

	if ok && !e.CountComputedAt.IsZero() && now.Sub(e.CountComputedAt) < maxAge {
		return e.CredentialCount, nil
	}

	count, err := recompute(ctx)
	if err != nil {
		return 0, fmt.Errorf("recompute credential count: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entries[id]
	e.CredentialCount = count
	e.CountComputedAt = now.UTC()
	c.entries[id] = e
	c.persist(ctx)
	return count, nil
}

// Invalidate drops the count timestamp for a container so the next
// CredentialCount call recomputes regardless of age. Used by explicit
// refresh requests.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}
	e.CountComputedAt = time.Time{}
	c.entries[id] = e
	c.persist(ctx)
}

// Remove deletes a container's entry entirely (container deleted).
func (c *Cache) Remove(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	c.persist(ctx)
}
