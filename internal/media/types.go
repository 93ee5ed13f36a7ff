// Package media defines core types shared across subsystems.
package media

import "time"

// JobState represents the lifecycle state of a download job.
type JobState string

// Job state values held in the registry. Pending is ephemeral: insertion
// transitions straight to Running before the job is ever observable.
const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Kind is the requested media class.
type Kind string

// Supported media kinds.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Quality names one of the fixed download quality presets.
type Quality string

// Quality presets accepted by the request surface.
const (
	QualityAudioHigh   Quality = "audio_high"
	QualityAudioMedium Quality = "audio_medium"
	QualityAudioLow    Quality = "audio_low"
	QualityVideo1080p  Quality = "video_1080p"
	QualityVideo720p   Quality = "video_720p"
	QualityVideo480p   Quality = "video_480p"
	QualityVideoBest   Quality = "video_best"
)

// FileResult describes the stored artifact of a completed job.
type FileResult struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Format    string `json:"format"`
}

// JobError captures a classified fetch failure.
type JobError struct {
	Category FailureCategory `json:"category"`
	Message  string          `json:"message"`
}

// Job is the registry record for one download lifecycle per external ID.
type Job struct {
	ID        string      `json:"id"`
	State     JobState    `json:"state"`
	Kind      Kind        `json:"kind"`
	Quality   Quality     `json:"quality"`
	Result    *FileResult `json:"result,omitempty"`
	Error     *JobError   `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CredentialArtifact is an opaque rotating token consumed by the fetcher.
// The rotator never interprets its contents.
type CredentialArtifact struct {
	Name string
	Path string
}

// ArtifactInfo describes one stored download artifact.
type ArtifactInfo struct {
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
}

// FetchTask is one unit of work submitted to the worker pool.
type FetchTask struct {
	ID        string
	Kind      Kind
	Quality   Quality
	CreatedAt time.Time
}

// FetchRequest captures everything the fetcher needs for one download.
type FetchRequest struct {
	ID         string
	Kind       Kind
	Quality    Quality
	Credential CredentialArtifact
}

// FetchResult is returned by a Fetcher on success.
type FetchResult struct {
	Filename  string
	SizeBytes int64
	Format    string
}
