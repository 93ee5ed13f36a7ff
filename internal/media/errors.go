package media

import "errors"

// Synchronous rejection errors surfaced directly to the caller. None of
// them ever mutates the registry.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found")
)

// FailureCategory buckets a fetch failure. The category, not the raw
// message, is what callers may rely on.
type FailureCategory string

// Failure categories recorded on failed jobs.
const (
	CategoryUnavailable         FailureCategory = "unavailable"
	CategoryCredentialInvalid   FailureCategory = "credential_invalid"
	CategoryRateLimitedUpstream FailureCategory = "rate_limited_upstream"
	CategoryNoCredential        FailureCategory = "no_credential_available"
	CategoryUnknown             FailureCategory = "unknown"
)
