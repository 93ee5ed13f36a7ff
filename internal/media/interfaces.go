package media

import (
	"context"
	"time"
)

// Registry is the authoritative map from external ID to job state. It
// provides at-most-one-in-flight-per-ID semantics via GetOrCreate.
type Registry interface {
	// GetOrCreate atomically returns the existing job or inserts a new one
	// in state Running. Exactly one of two racing callers observes created=true.
	GetOrCreate(id string, kind Kind, quality Quality) (job Job, created bool)
	Get(id string) (Job, bool)
	// Complete transitions Running to Completed. The createdAt tag guards
	// against a completion racing a clear-then-recreate; stale writes are
	// discarded and reported as false.
	Complete(id string, createdAt time.Time, result FileResult) bool
	// Fail transitions Running to Failed under the same staleness rule.
	Fail(id string, createdAt time.Time, category FailureCategory, message string) bool
	Remove(id string)
}

// FileStore is a directory-like byte store keyed by external ID.
type FileStore interface {
	List(ctx context.Context) ([]ArtifactInfo, error)
	// FindByID locates the artifact stored for id regardless of extension.
	FindByID(ctx context.Context, id string) (ArtifactInfo, bool, error)
	Stat(ctx context.Context, name string) (ArtifactInfo, error)
	Delete(ctx context.Context, name string) error
	// Path resolves name to an absolute filesystem path inside the store.
	Path(name string) (string, error)
}

// Fetcher performs the actual network retrieval into the file store.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// CredentialSource hands out credential artifacts in rotation.
type CredentialSource interface {
	// Next returns the next artifact, or false when the pool is empty.
	Next() (CredentialArtifact, bool)
	// Invalidate forces a pool refresh on the next call to Next.
	Invalidate()
}

// Queue provides enqueue/dequeue semantics for fetch tasks.
type Queue interface {
	Enqueue(ctx context.Context, task FetchTask) error
	Dequeue(ctx context.Context) (FetchTask, error)
}

// Archiver records terminal job outcomes for later inspection.
type Archiver interface {
	Record(ctx context.Context, job Job) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
