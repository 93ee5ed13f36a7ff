// Package sweeper reclaims disk space for stale download artifacts.
package sweeper

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
)

// Config controls the retention sweeper.
type Config struct {
	// MaxAge is the artifact age past which it is deleted.
	MaxAge time.Duration
	// Interval is the cycle period.
	Interval time.Duration
}

// Sweeper periodically deletes stored artifacts older than the retention
// threshold and removes their registry records. Sweeping is best-effort:
// per-entry failures are logged and the cycle continues.
type Sweeper struct {
	store    media.FileStore
	registry media.Registry
	clock    media.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Sweeper.
func New(store media.FileStore, registry media.Registry, clock media.Clock, cfg Config, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes sweep cycles on a fixed interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass and reports the number of artifacts
// deleted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	artifacts, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("sweep enumerate failed", zap.Error(err))
		return 0
	}

	cutoff := s.clock.Now().Add(-s.cfg.MaxAge)
	deleted := 0
	for _, artifact := range artifacts {
		if artifact.ModifiedAt.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, artifact.Name); err != nil {
			s.logger.Warn("sweep delete failed", zap.String("artifact", artifact.Name), zap.Error(err))
			continue
		}
		id := idFromArtifact(artifact.Name)
		s.registry.Remove(id)
		metrics.ObserveSweptArtifact()
		deleted++
		s.logger.Debug("swept artifact",
			zap.String("artifact", artifact.Name),
			zap.Time("modified_at", artifact.ModifiedAt),
		)
	}
	if deleted > 0 {
		s.logger.Info("sweep cycle finished", zap.Int("deleted", deleted))
	}
	return deleted
}

// idFromArtifact strips the extension from an artifact filename, giving
// the external ID it was stored under.
func idFromArtifact(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
