// Package registry holds the authoritative map from external ID to job
// state. All mutations happen under one lock so GetOrCreate stays atomic
// under concurrent callers.
package registry

import (
	"sync"
	"time"

	"github.com/shadwo/mediadock/internal/media"
)

// Registry is an in-memory job registry. One instance exists per process
// and is shared by the orchestrator, workers, and the sweeper.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]media.Job
	clock media.Clock
}

// New constructs a Registry.
func New(clock media.Clock) *Registry {
	return &Registry{
		jobs:  make(map[string]media.Job),
		clock: clock,
	}
}

// GetOrCreate atomically returns the existing job for id, or inserts a
// new one in state Running. Exactly one of two racing callers for a new
// id observes created=true; the other reads the freshly inserted record.
func (r *Registry) GetOrCreate(id string, kind media.Kind, quality media.Quality) (media.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		return job, false
	}
	now := r.clock.Now()
	job := media.Job{
		ID:        id,
		State:     media.JobStateRunning,
		Kind:      kind,
		Quality:   quality,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = job
	return job, true
}

// Get fetches a job by ID.
func (r *Registry) Get(id string) (media.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Complete transitions Running to Completed. The write is discarded when
// the record is gone, already terminal, or was recreated after the fetch
// started (creation timestamp mismatch).
func (r *Registry) Complete(id string, createdAt time.Time, result media.FileResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.currentLocked(id, createdAt)
	if !ok {
		return false
	}
	job.State = media.JobStateCompleted
	job.Result = &result
	job.Error = nil
	job.UpdatedAt = r.clock.Now()
	r.jobs[id] = job
	return true
}

// Fail transitions Running to Failed under the same staleness rules as
// Complete.
func (r *Registry) Fail(id string, createdAt time.Time, category media.FailureCategory, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.currentLocked(id, createdAt)
	if !ok {
		return false
	}
	job.State = media.JobStateFailed
	job.Error = &media.JobError{Category: category, Message: message}
	job.Result = nil
	job.UpdatedAt = r.clock.Now()
	r.jobs[id] = job
	return true
}

// Remove deletes the record; used by explicit clear and by the sweeper.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Len reports the number of live records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) currentLocked(id string, createdAt time.Time) (media.Job, bool) {
	job, ok := r.jobs[id]
	if !ok {
		return media.Job{}, false
	}
	if job.State.Terminal() {
		return media.Job{}, false
	}
	if !job.CreatedAt.Equal(createdAt) {
		return media.Job{}, false
	}
	return job, true
}
