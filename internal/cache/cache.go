// Package cache provides the shared TTL key-value cache used for embedding
// and rerank memoization.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a byte-valued key-value store with entry expiry. Implementations
// must be safe for concurrent use; the cache is shared across all in-flight
// requests in a process.
type Cache interface {
	// Get returns the cached value and whether it was present and unexpired.
	Get(key string) ([]byte, bool)

	// Set stores a value under key. The TTL is fixed per cache instance.
	Set(key string, value []byte)
}

// LRU is an expiring LRU cache. Entries are evicted on TTL or capacity
// pressure, whichever comes first.
type LRU struct {
	inner *expirable.LRU[string, []byte]
}

// NewLRU creates a cache holding up to size entries, each expiring ttl after
// it was written.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{inner: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the value for key if present and unexpired.
func (c *LRU) Get(key string) ([]byte, bool) {
	return c.inner.Get(key)
}

// Set stores value under key.
func (c *LRU) Set(key string, value []byte) {
	c.inner.Add(key, value)
}

// Degrading wraps a Cache so that any backend failure behaves as a miss.
// A broken cache makes the service slower, never incorrect.
type Degrading struct {
	inner  Cache
	logger *slog.Logger
}

// NewDegrading wraps inner with miss-on-failure semantics.
func NewDegrading(inner Cache, logger *slog.Logger) *Degrading {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrading{inner: inner, logger: logger}
}

// Get returns the cached value, treating backend failures as misses.
func (d *Degrading) Get(key string) (value []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("cache get failed, treating as miss", "panic", r)
			value, ok = nil, false
		}
	}()
	return d.inner.Get(key)
}

// Set stores the value, swallowing backend failures.
func (d *Degrading) Set(key string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("cache set failed, entry dropped", "panic", r)
		}
	}()
	d.inner.Set(key, value)
}

// Key derives a stable cache key from its parts. Parts are NUL-separated
// before hashing so that ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Ensure implementations satisfy the interface.
var (
	_ Cache = (*LRU)(nil)
	_ Cache = (*Degrading)(nil)
)
