// Package orchestrator composes the registry, admission limiter,
// credential rotator, and worker pool into the download request flow.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/media"
)

// Submitter schedules a fetch task onto the worker pool.
type Submitter interface {
	Enqueue(ctx context.Context, task media.FetchTask) error
}

// RateGate is the synchronous admission check applied per caller identity.
type RateGate interface {
	Check(identity string) error
}

// Config holds orchestrator parameters.
type Config struct {
	// IDPattern is the allow-list pattern external IDs must match.
	IDPattern *regexp.Regexp
	// DefaultAudioQuality and DefaultVideoQuality back unrecognized
	// quality input.
	DefaultAudioQuality media.Quality
	DefaultVideoQuality media.Quality
}

// Orchestrator is the composition root for download requests.
type Orchestrator struct {
	registry  media.Registry
	store     media.FileStore
	rate      RateGate
	submitter Submitter
	clock     media.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	registry media.Registry,
	store media.FileStore,
	rate RateGate,
	submitter Submitter,
	clock media.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  registry,
		store:     store,
		rate:      rate,
		submitter: submitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// RequestDownload admits one download request and returns the job view
// the caller should poll. Completion is observed via CheckStatus; there
// is no push notification.
//
// The disk check is authoritative over the registry: an artifact already
// on disk short-circuits to a Completed view with no registry or fetcher
// involvement. A rate-limit rejection never mutates the registry, and
// requests for an ID already tracked return the existing job unchanged.
func (o *Orchestrator) RequestDownload(
	ctx context.Context,
	id string,
	kind media.Kind,
	rawQuality string,
	identity string,
) (media.Job, error) {
	if err := o.validateID(id); err != nil {
		return media.Job{}, err
	}
	if !media.ValidKind(kind) {
		return media.Job{}, fmt.Errorf("unsupported media kind %q: %w", kind, media.ErrInvalidInput)
	}
	quality := o.resolveQuality(kind, rawQuality)

	if job, found := o.storedArtifactView(ctx, id, kind, quality); found {
		return job, nil
	}

	// Read-only fast path: an existing job short-circuits before the rate
	// gate. The at-most-one-in-flight invariant does not rest on this
	// peek; only GetOrCreate below decides who schedules the fetch.
	if job, ok := o.registry.Get(id); ok {
		return job, nil
	}

	if err := o.rate.Check(identity); err != nil {
		return media.Job{}, err
	}

	job, created := o.registry.GetOrCreate(id, kind, quality)
	if !created {
		return job, nil
	}

	task := media.FetchTask{
		ID:        job.ID,
		Kind:      job.Kind,
		Quality:   job.Quality,
		CreatedAt: job.CreatedAt,
	}
	if err := o.submitter.Enqueue(ctx, task); err != nil {
		// The record must not stay Running with no worker attached.
		o.registry.Remove(job.ID)
		return media.Job{}, fmt.Errorf("schedule fetch: %w", err)
	}

	o.logger.Info("download scheduled",
		zap.String("id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("quality", string(job.Quality)),
	)
	return job, nil
}

// CheckStatus reports the current view for id: stored artifact first
// (authoritative), then the registry, then NotFound.
func (o *Orchestrator) CheckStatus(ctx context.Context, id string) (media.Job, error) {
	if err := o.validateID(id); err != nil {
		return media.Job{}, err
	}
	if job, found := o.storedArtifactView(ctx, id, "", ""); found {
		return job, nil
	}
	if job, ok := o.registry.Get(id); ok {
		return job, nil
	}
	return media.Job{}, fmt.Errorf("no job or artifact for %q: %w", id, media.ErrNotFound)
}

// Clear removes the job record and any stored artifact for id. A fetch
// already running is not stopped; its eventual completion write is
// discarded by the registry's creation-time tag.
func (o *Orchestrator) Clear(ctx context.Context, id string) error {
	if err := o.validateID(id); err != nil {
		return err
	}
	o.registry.Remove(id)

	artifact, found, err := o.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("locate artifact: %w", err)
	}
	if !found {
		return nil
	}
	if err := o.store.Delete(ctx, artifact.Name); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	o.logger.Info("cleared download", zap.String("id", id), zap.String("artifact", artifact.Name))
	return nil
}

func (o *Orchestrator) validateID(id string) error {
	if !o.cfg.IDPattern.MatchString(id) {
		return fmt.Errorf("identifier %q does not match the allowed pattern: %w", id, media.ErrInvalidInput)
	}
	return nil
}

func (o *Orchestrator) resolveQuality(kind media.Kind, raw string) media.Quality {
	fallback := o.cfg.DefaultAudioQuality
	if kind == media.KindVideo {
		fallback = o.cfg.DefaultVideoQuality
	}
	return media.ParseQuality(kind, raw, fallback)
}

// storedArtifactView synthesizes a Completed view from an on-disk
// artifact. Store errors degrade to "not found": the file store is
// eventually consistent and the registry resolves the truth.
func (o *Orchestrator) storedArtifactView(ctx context.Context, id string, kind media.Kind, quality media.Quality) (media.Job, bool) {
	artifact, found, err := o.store.FindByID(ctx, id)
	if err != nil {
		o.logger.Warn("artifact lookup failed", zap.String("id", id), zap.Error(err))
		return media.Job{}, false
	}
	if !found {
		return media.Job{}, false
	}
	return media.Job{
		ID:      id,
		State:   media.JobStateCompleted,
		Kind:    kind,
		Quality: quality,
		Result: &media.FileResult{
			Filename:  artifact.Name,
			SizeBytes: artifact.SizeBytes,
			Format:    strings.TrimPrefix(filepath.Ext(artifact.Name), "."),
		},
		CreatedAt: artifact.ModifiedAt,
		UpdatedAt: artifact.ModifiedAt,
	}, true
}
