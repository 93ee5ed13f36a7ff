// Package worker implements the fetch pipeline execution loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
)

// Permits is the concurrency gate a worker holds around each fetch.
type Permits interface {
	Acquire(ctx context.Context) error
	Release()
}

// Config controls Worker behavior.
type Config struct {
	// FetchTimeout bounds a single fetch invocation.
	FetchTimeout time.Duration
}

// Worker consumes queued tasks and executes the fetch lifecycle: acquire
// a permit, select a credential, invoke the fetcher, classify the
// outcome, record it, release the permit.
type Worker struct {
	queue       media.Queue
	registry    media.Registry
	permits     Permits
	credentials media.CredentialSource
	fetcher     media.Fetcher
	archive     media.Archiver
	clock       media.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker. archive may be nil.
func New(
	queue media.Queue,
	registry media.Registry,
	permits Permits,
	credentials media.CredentialSource,
	fetcher media.Fetcher,
	archive media.Archiver,
	clock media.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Minute
	}
	return &Worker{
		queue:       queue,
		registry:    registry,
		permits:     permits,
		credentials: credentials,
		fetcher:     fetcher,
		archive:     archive,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("id", task.ID))
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task media.FetchTask) {
	if err := w.permits.Acquire(ctx); err != nil {
		// Only context cancellation reaches here; the process is shutting
		// down and the job stays Running for the next incarnation's caller
		// to re-request after the sweeper clears it.
		w.logger.Warn("permit acquire aborted", zap.String("id", task.ID), zap.Error(err))
		return
	}
	defer w.permits.Release()

	credential, ok := w.credentials.Next()
	if !ok {
		w.logger.Warn("no credential available", zap.String("id", task.ID))
		w.fail(ctx, task, media.CategoryNoCredential, "credential pool is empty")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	start := w.clock.Now()
	result, err := w.fetcher.Fetch(fetchCtx, media.FetchRequest{
		ID:         task.ID,
		Kind:       task.Kind,
		Quality:    task.Quality,
		Credential: credential,
	})
	metrics.ObserveFetchDuration(string(task.Kind), w.clock.Now().Sub(start))

	if err != nil {
		category := media.Classify(err)
		if category == media.CategoryCredentialInvalid {
			w.credentials.Invalidate()
		}
		w.logger.Error("fetch failed",
			zap.String("id", task.ID),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		w.fail(ctx, task, category, err.Error())
		return
	}

	if !w.registry.Complete(task.ID, task.CreatedAt, media.FileResult(result)) {
		w.logger.Warn("discarded stale completion", zap.String("id", task.ID))
		return
	}
	metrics.ObserveJob(string(media.JobStateCompleted), "")
	w.logger.Info("fetch completed",
		zap.String("id", task.ID),
		zap.String("filename", result.Filename),
		zap.Int64("size_bytes", result.SizeBytes),
	)
	w.archiveOutcome(ctx, task.ID)
}

func (w *Worker) fail(ctx context.Context, task media.FetchTask, category media.FailureCategory, message string) {
	if !w.registry.Fail(task.ID, task.CreatedAt, category, message) {
		w.logger.Warn("discarded stale failure", zap.String("id", task.ID))
		return
	}
	metrics.ObserveJob(string(media.JobStateFailed), string(category))
	w.archiveOutcome(ctx, task.ID)
}

func (w *Worker) archiveOutcome(ctx context.Context, id string) {
	if w.archive == nil {
		return
	}
	job, ok := w.registry.Get(id)
	if !ok {
		return
	}
	if err := w.archive.Record(ctx, job); err != nil {
		w.logger.Warn("archive record failed", zap.String("id", id), zap.Error(err))
	}
}
