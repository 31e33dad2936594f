// Package ratelimit implements a per-key sliding-window limiter for write
// requests.
package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/metrics"
)

const (
	DefaultMax       = 5
	DefaultWindow    = time.Minute
	DefaultMaxKeys   = 10000
	DefaultSweepCron = "* * * * *"
)

// Config tunes a Limiter. Zero fields take the defaults above; Max < 0
// disables limiting.
type Config struct {
	Max     int
	Window  time.Duration
	MaxKeys int
}

type bucket struct {
	key  string
	elem *list.Element // position in Limiter.recency, guarded by Limiter.mu

	mu      sync.Mutex
	stamps  []time.Time
	evicted bool
}

// Limiter admits at most Max events per key within any Window-long span.
// The key map lock is held only for lookup, insertion and an O(1) recency
// update; counting happens under the key's own lock, so different keys never
// contend on it.
type Limiter struct {
	max     int
	window  time.Duration
	maxKeys int
	metrics *metrics.Metrics

	mu      sync.Mutex
	buckets map[string]*bucket
	recency *list.List // most recently used key at the front
}

// New creates a limiter. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Limiter {
	if cfg.Max == 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	return &Limiter{
		max:     cfg.Max,
		window:  cfg.Window,
		maxKeys: cfg.MaxKeys,
		metrics: m,
		buckets: make(map[string]*bucket),
		recency: list.New(),
	}
}

// Allow records an event for key at now and reports whether it is admitted.
// Entries at or before now-Window no longer count.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l.max < 0 {
		return true
	}
	cutoff := now.Add(-l.window)

	for {
		b := l.bucket(key)
		b.mu.Lock()
		if b.evicted {
			// Swept between lookup and lock; take the replacement.
			b.mu.Unlock()
			continue
		}

		b.stamps = prune(b.stamps, cutoff)
		if len(b.stamps) >= l.max {
			b.mu.Unlock()
			l.metrics.RateLimitRejected()
			return false
		}
		b.stamps = append(b.stamps, now)
		b.mu.Unlock()
		return true
	}
}

// Window returns the sliding window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Sweep drops keys with no events inside the window ending at now and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, b := range l.buckets {
		b.mu.Lock()
		b.stamps = prune(b.stamps, cutoff)
		if len(b.stamps) == 0 {
			b.evicted = true
			l.removeLocked(b)
			removed++
		}
		b.mu.Unlock()
	}
	l.metrics.SetRateLimiterKeys(len(l.buckets))
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle keys on the given cron schedule until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, cronExpr string, logger *zerolog.Logger) error {
	if cronExpr == "" {
		cronExpr = DefaultSweepCron
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid sweep cron expression: %q", cronExpr)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			return fmt.Errorf("next sweep tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		removed := l.Sweep(time.Now())
		if removed > 0 {
			logger.Debug().Int("removed", removed).Int("remaining", l.Len()).Msg("rate limiter sweep")
		}
	}
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		l.recency.MoveToFront(b.elem)
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.evictOldestLocked()
	}
	b := &bucket{key: key}
	b.elem = l.recency.PushFront(b)
	l.buckets[key] = b
	l.metrics.SetRateLimiterKeys(len(l.buckets))
	return b
}

// evictOldestLocked removes the least recently used key. l.mu must be held.
func (l *Limiter) evictOldestLocked() {
	back := l.recency.Back()
	if back == nil {
		return
	}
	oldest := back.Value.(*bucket)
	oldest.mu.Lock()
	oldest.evicted = true
	oldest.mu.Unlock()
	l.removeLocked(oldest)
}

// removeLocked forgets b. l.mu must be held.
func (l *Limiter) removeLocked(b *bucket) {
	l.recency.Remove(b.elem)
	delete(l.buckets, b.key)
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
