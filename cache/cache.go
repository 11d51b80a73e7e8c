// Package cache abstracts the shared key/value store the engine uses for the
// two cross-task resources: the task ownership record and the stop flag. Both
// are namespaced by task id and write-once/read-many with TTL expiry, so no
// locking beyond the store's own is required.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the minimal shared-store contract: TTL-bounded writes and presence
// checking reads. The redis subpackage provides the cross-process
// implementation; InMemory serves single-process deployments and tests.
type Cache interface {
	// Get returns the value for key and whether it exists and is unexpired.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

const defaultMaxEntries = 4096

// entry holds a cached value along with its expiry deadline.
type entry struct {
	value     string
	expiresAt time.Time
}

// InMemoryOptions configures the in-memory cache.
type InMemoryOptions struct {
	// MaxEntries bounds the LRU; oldest entries are evicted beyond it.
	MaxEntries int
}

// InMemory is a process-local Cache backed by an LRU with per-entry TTLs.
// Expired entries are dropped lazily on read.
type InMemory struct {
	mu    sync.Mutex
	store *lru.Cache[string, entry]
}

// NewInMemory constructs an in-memory cache with optional overrides.
func NewInMemory(optFns ...func(o *InMemoryOptions)) *InMemory {
	opts := InMemoryOptions{MaxEntries: defaultMaxEntries}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}

	// lru.New only errors on a non-positive size which is guarded above.
	store, _ := lru.New[string, entry](opts.MaxEntries)

	return &InMemory{store: store}
}

// Get implements Cache.
func (c *InMemory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expiresAt) {
		c.store.Remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

// SetWithTTL implements Cache.
func (c *InMemory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Add(key, entry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}
