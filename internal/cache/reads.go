// Package cache keeps short-lived copies of read query results.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/vovakirdan/wirenote/internal/metrics"
)

const (
	DefaultTTL        = time.Minute
	DefaultMaxEntries = 10000
)

// Config tunes a Reads cache. Zero fields take the defaults above.
type Config struct {
	TTL        time.Duration
	MaxEntries int64
}

// Reads caches query results for a short TTL. Keys carry a generation that
// Invalidate bumps after every committed write, so entries cached before the
// write are never served again. A nil *Reads caches nothing.
//
// Cached values are shared between callers and must not be modified.
type Reads struct {
	cache   *ristretto.Cache
	ttl     time.Duration
	gen     atomic.Uint64
	metrics *metrics.Metrics
}

// New creates a read cache. m may be nil.
func New(cfg Config, m *metrics.Metrics) (*Reads, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.MaxEntries * 10,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create read cache: %w", err)
	}
	return &Reads{cache: c, ttl: cfg.TTL, metrics: m}, nil
}

// Key names a query in the current generation. Take the key before running
// the query so a write that commits meanwhile invalidates the result.
func (r *Reads) Key(kind string, ids ...int64) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(kind)
	for _, id := range ids {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('@')
	b.WriteString(strconv.FormatUint(r.gen.Load(), 10))
	return b.String()
}

// Invalidate retires every cached entry.
func (r *Reads) Invalidate() {
	if r != nil {
		r.gen.Add(1)
	}
}

// Wait blocks until pending writes to the cache are applied.
func (r *Reads) Wait() {
	if r != nil {
		r.cache.Wait()
	}
}

// Close stops the cache's background goroutines.
func (r *Reads) Close() {
	if r != nil {
		r.cache.Close()
	}
}

func (r *Reads) get(key string) (any, bool) {
	v, ok := r.cache.Get(key)
	r.metrics.ReadCacheLookup(ok)
	return v, ok
}

func (r *Reads) set(key string, v any) {
	r.cache.SetWithTTL(key, v, 1, r.ttl)
}

// Load returns the cached value for key or runs load and caches its result.
// Errors are not cached.
func Load[T any](r *Reads, key string, load func() (T, error)) (T, error) {
	if r == nil {
		return load()
	}
	if v, ok := r.get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	r.set(key, v)
	return v, nil
}
