// Package admission implements the two gates every fetch must pass: a
// per-identity sliding-window rate gate and a counting concurrency
// permit pool.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
)

// Config holds admission limiter configuration.
type Config struct {
	Concurrency int
	RateLimit   int
	RateWindow  time.Duration
}

// Limiter combines the rate gate and the concurrency gate. The rate gate
// runs synchronously on request admission; the concurrency gate is held
// by workers for the duration of a fetch.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	sem     *semaphore.Weighted
	clock   media.Clock
	cfg     Config
}

// New creates a Limiter.
func New(cfg Config, clock media.Clock) *Limiter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Limiter{
		windows: make(map[string][]time.Time),
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		clock:   clock,
		cfg:     cfg,
	}
}

// Check records one request for identity and rejects with
// media.ErrRateLimited when the sliding window is already full. Expired
// timestamps are pruned lazily on each check.
func (l *Limiter) Check(identity string) error {
	now := l.clock.Now()
	cutoff := now.Add(-l.cfg.RateWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windows[identity]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.cfg.RateLimit {
		l.windows[identity] = kept
		metrics.ObserveRateLimited()
		return fmt.Errorf("identity %q exceeded %d requests per %s: %w",
			identity, l.cfg.RateLimit, l.cfg.RateWindow, media.ErrRateLimited)
	}

	l.windows[identity] = append(kept, now)
	return nil
}

// Acquire blocks until a concurrency permit is free or the context ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fetch permit: %w", err)
	}
	metrics.IncActiveFetches()
	return nil
}

// Release returns a permit. It must run on every exit path that acquired
// one, including fetch failure.
func (l *Limiter) Release() {
	metrics.DecActiveFetches()
	l.sem.Release(1)
}
