// Package credentials rotates among a pool of credential artifacts used
// by the media fetcher.
package credentials

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
)

// Config holds rotator configuration.
type Config struct {
	// Dir is the directory scanned for credential files.
	Dir string
	// TTL bounds how long a scanned pool is reused before a rescan.
	TTL time.Duration
}

// Rotator hands out credential files in round-robin order over a pool
// refreshed on a TTL. Artifacts are not validated here; interpreting
// fetch failures is the caller's concern.
type Rotator struct {
	mu          sync.Mutex
	pool        []media.CredentialArtifact
	index       int
	refreshedAt time.Time
	cfg         Config
	clock       media.Clock
	logger      *zap.Logger
}

// New creates a Rotator. The first Next call performs the initial scan.
func New(cfg Config, clock media.Clock, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Rotator{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Next returns the artifact at the current rotation index and advances.
// It reports false when the pool is empty after a refresh; callers must
// treat that as "no credential available" rather than a generic error.
func (r *Rotator) Next() (media.CredentialArtifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.refreshedAt.IsZero() || now.Sub(r.refreshedAt) >= r.cfg.TTL {
		r.refreshLocked(now)
	}
	if len(r.pool) == 0 {
		return media.CredentialArtifact{}, false
	}
	artifact := r.pool[r.index%len(r.pool)]
	r.index = (r.index + 1) % len(r.pool)
	return artifact, true
}

// Invalidate discards the current pool so the next call to Next rescans
// the credential source. Triggered when a fetch failure is classified as
// a credential rejection.
func (r *Rotator) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshedAt = time.Time{}
	r.logger.Info("credential pool invalidated")
}

// PoolSize reports the current pool size without triggering a refresh.
func (r *Rotator) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

func (r *Rotator) refreshLocked(now time.Time) {
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		// A missing or unreadable source yields an empty pool; jobs fail
		// with a dedicated category instead of blocking.
		r.logger.Warn("credential source scan failed", zap.String("dir", r.cfg.Dir), zap.Error(err))
		entries = nil
	}

	pool := make([]media.CredentialArtifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		pool = append(pool, media.CredentialArtifact{
			Name: entry.Name(),
			Path: filepath.Join(r.cfg.Dir, entry.Name()),
		})
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Name < pool[j].Name })

	r.pool = pool
	r.index = 0
	r.refreshedAt = now
	metrics.ObserveCredentialRefresh()
	r.logger.Debug("credential pool refreshed", zap.Int("size", len(pool)))
}
