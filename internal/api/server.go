// Package api exposes the HTTP interface for the download service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shadwo/mediadock/internal/archive"
	"github.com/shadwo/mediadock/internal/config"
	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"

	"go.uber.org/zap"
)

// Orchestrator is the download core the HTTP layer delegates to.
type Orchestrator interface {
	RequestDownload(ctx context.Context, id string, kind media.Kind, rawQuality string, identity string) (media.Job, error)
	CheckStatus(ctx context.Context, id string) (media.Job, error)
	Clear(ctx context.Context, id string) error
}

// History lists archived terminal jobs. It may be nil when archiving is
// disabled.
type History interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
}

const serviceVersion = "1.0"

// Server wires HTTP handlers to the orchestrator and file store.
type Server struct {
	router  chi.Router
	core    Orchestrator
	store   media.FileStore
	history History
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(core Orchestrator, store media.FileStore, history History, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		core:    core,
		store:   store,
		history: history,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/song/{video_id}", s.requestAudio)
		r.Get("/video/{video_id}", s.requestVideo)
		r.Get("/status/{video_id}", s.status)
		r.Get("/download/{filename}", s.download)
		r.Delete("/jobs/{video_id}", s.clear)
		r.Get("/jobs", s.recentJobs)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "mediadock",
		"status":  "running",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"song":     "/v1/song/{video_id}",
			"video":    "/v1/video/{video_id}",
			"status":   "/v1/status/{video_id}",
			"download": "/v1/download/{filename}",
			"jobs":     "/v1/jobs",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.store.List(context.Background()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "file store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestAudio(w http.ResponseWriter, r *http.Request) {
	s.request(w, r, media.KindAudio)
}

func (s *Server) requestVideo(w http.ResponseWriter, r *http.Request) {
	s.request(w, r, media.KindVideo)
}

func (s *Server) request(w http.ResponseWriter, r *http.Request, kind media.Kind) {
	id := chi.URLParam(r, "video_id")
	quality := r.URL.Query().Get("quality")
	job, err := s.core.RequestDownload(r.Context(), id, kind, quality, callerIdentity(r))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	status := http.StatusAccepted
	if job.State.Terminal() {
		status = http.StatusOK
	}
	writeJSON(w, status, jobResponse(job))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "video_id")
	job, err := s.core.CheckStatus(r.Context(), id)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.store.Path(filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "video_id")
	if err := s.core.Clear(r.Context(), id); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"video_id": id, "status": "cleared"})
}

func (s *Server) recentJobs(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "job history disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("job history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job history unavailable")
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": records})
}

// jobResponse shapes a job view for the wire, preserving the field names
// the original download API exposed.
func jobResponse(job media.Job) map[string]any {
	resp := map[string]any{
		"video_id": job.ID,
		"status":   string(job.State),
	}
	if job.Kind != "" {
		resp["kind"] = string(job.Kind)
	}
	if job.Quality != "" {
		resp["quality"] = string(job.Quality)
	}
	if job.Result != nil {
		resp["filename"] = job.Result.Filename
		resp["format"] = job.Result.Format
		resp["size_bytes"] = job.Result.SizeBytes
		resp["download"] = "/v1/download/" + job.Result.Filename
	}
	if job.Error != nil {
		resp["error"] = job.Error
	}
	return resp
}

// callerIdentity buckets requests for rate limiting: the API key when
// one was presented, otherwise the client address.
func callerIdentity(r *http.Request) string {
	if key := apiKeyFrom(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, media.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, media.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
