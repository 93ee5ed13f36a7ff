package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/archive"
	"github.com/shadwo/mediadock/internal/config"
	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
	"github.com/shadwo/mediadock/internal/store/local"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeCore struct {
	job      media.Job
	err      error
	lastID   string
	lastKind media.Kind
	lastQ    string
	lastIden string
	cleared  []string
}

func (c *fakeCore) RequestDownload(_ context.Context, id string, kind media.Kind, rawQuality, identity string) (media.Job, error) {
	c.lastID, c.lastKind, c.lastQ, c.lastIden = id, kind, rawQuality, identity
	return c.job, c.err
}

func (c *fakeCore) CheckStatus(_ context.Context, id string) (media.Job, error) {
	c.lastID = id
	return c.job, c.err
}

func (c *fakeCore) Clear(_ context.Context, id string) error {
	c.cleared = append(c.cleared, id)
	return c.err
}

type fakeHistory struct {
	records []archive.Record
	err     error
	limit   int
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]archive.Record, error) {
	h.limit = limit
	return h.records, h.err
}

func newTestServer(t *testing.T, core Orchestrator, history History, cfg config.Config) (*Server, *local.Store) {
	t.Helper()
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return NewServer(core, store, history, cfg, zap.NewNop()), store
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRootEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeCore{}, nil, config.Config{})
	rec := doRequest(srv, http.MethodGet, "/")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "mediadock", body["name"])
	require.Equal(t, "running", body["status"])
	require.Contains(t, body, "endpoints")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeCore{}, nil, config.Config{})

	require.Equal(t, http.StatusOK, doRequest(srv, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, doRequest(srv, http.MethodGet, "/readyz").Code)
}

func TestRequestAudioAccepted(t *testing.T) {
	t.Parallel()

	core := &fakeCore{job: media.Job{
		ID:    "dQw4w9WgXcQ",
		State: media.JobStateRunning,
		Kind:  media.KindAudio,
	}}
	srv, _ := newTestServer(t, core, nil, config.Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ?quality=audio_low")
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "dQw4w9WgXcQ", body["video_id"])
	require.Equal(t, "running", body["status"])

	require.Equal(t, media.KindAudio, core.lastKind)
	require.Equal(t, "audio_low", core.lastQ)
	require.Equal(t, "192.0.2.10", core.lastIden, "identity falls back to the client address")
}

func TestRequestVideoCompletedReturnsOK(t *testing.T) {
	t.Parallel()

	core := &fakeCore{job: media.Job{
		ID:    "dQw4w9WgXcQ",
		State: media.JobStateCompleted,
		Kind:  media.KindVideo,
		Result: &media.FileResult{
			Filename:  "dQw4w9WgXcQ.mp4",
			SizeBytes: 9000,
			Format:    "mp4",
		},
	}}
	srv, _ := newTestServer(t, core, nil, config.Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/video/dQw4w9WgXcQ")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "completed", body["status"])
	require.Equal(t, "dQw4w9WgXcQ.mp4", body["filename"])
	require.Equal(t, "/v1/download/dQw4w9WgXcQ.mp4", body["download"])
}

func TestRequestErrorsMapToStatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid input", media.ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", media.ErrRateLimited, http.StatusTooManyRequests},
		{"not found", media.ErrNotFound, http.StatusNotFound},
		{"timeout", context.DeadlineExceeded, http.StatusRequestTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newTestServer(t, &fakeCore{err: tc.err}, nil, config.Config{})
			rec := doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ")
			require.Equal(t, tc.code, rec.Code)
			require.Contains(t, decodeBody(t, rec), "error")
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	core := &fakeCore{job: media.Job{
		ID:    "dQw4w9WgXcQ",
		State: media.JobStateFailed,
		Error: &media.JobError{Category: media.CategoryUnavailable, Message: "video unavailable"},
	}}
	srv, _ := newTestServer(t, core, nil, config.Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/status/dQw4w9WgXcQ")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "failed", body["status"])
	require.Contains(t, body, "error")
}

func TestDownloadServesArtifact(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, &fakeCore{}, nil, config.Config{})
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), "dQw4w9WgXcQ.m4a"), []byte("audio bytes"), 0o600))

	rec := doRequest(srv, http.MethodGet, "/v1/download/dQw4w9WgXcQ.m4a")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio bytes", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestDownloadMissingAndTraversal(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeCore{}, nil, config.Config{})

	require.Equal(t, http.StatusNotFound, doRequest(srv, http.MethodGet, "/v1/download/missing.m4a").Code)
	require.Equal(t, http.StatusNotFound, doRequest(srv, http.MethodGet, "/v1/download/..%2Fescape.txt").Code)
}

func TestClearEndpoint(t *testing.T) {
	t.Parallel()

	core := &fakeCore{}
	srv, _ := newTestServer(t, core, nil, config.Config{})

	rec := doRequest(srv, http.MethodDelete, "/v1/jobs/dQw4w9WgXcQ")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"dQw4w9WgXcQ"}, core.cleared)
}

func TestRecentJobs(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{records: []archive.Record{{
		ExternalID: "dQw4w9WgXcQ",
		Kind:       "audio",
		State:      "completed",
		Filename:   "dQw4w9WgXcQ.m4a",
		FinishedAt: time.Now(),
	}}}
	srv, _ := newTestServer(t, &fakeCore{}, history, config.Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/jobs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, history.limit)

	body := decodeBody(t, rec)
	jobs, ok := body["jobs"].([]any)
	require.True(t, ok)
	require.Len(t, jobs, 1)
}

func TestRecentJobsDisabled(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeCore{}, nil, config.Config{})
	require.Equal(t, http.StatusNotFound, doRequest(srv, http.MethodGet, "/v1/jobs").Code)
}

func TestRecentJobsQueryFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeCore{}, &fakeHistory{err: errors.New("db closed")}, config.Config{})
	require.Equal(t, http.StatusInternalServerError, doRequest(srv, http.MethodGet, "/v1/jobs").Code)
}

func TestAPIKeyEnforcement(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"

	core := &fakeCore{job: media.Job{ID: "dQw4w9WgXcQ", State: media.JobStateRunning}}
	srv, _ := newTestServer(t, core, nil, cfg)

	// Missing and wrong keys are rejected.
	require.Equal(t, http.StatusForbidden, doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ").Code)
	require.Equal(t, http.StatusForbidden, doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ?api=wrong").Code)

	// Header, api_key query, and the legacy api query all pass.
	req := httptest.NewRequest(http.MethodGet, "/v1/song/dQw4w9WgXcQ", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Equal(t, http.StatusAccepted, doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ?api_key=secret").Code)
	require.Equal(t, http.StatusAccepted, doRequest(srv, http.MethodGet, "/v1/song/dQw4w9WgXcQ?api=secret").Code)

	// The presented key becomes the rate-limit identity.
	require.Equal(t, "secret", core.lastIden)

	// Health endpoints stay open.
	require.Equal(t, http.StatusOK, doRequest(srv, http.MethodGet, "/healthz").Code)
}
