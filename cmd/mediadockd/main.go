// Package main wires together the mediadock download service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shadwo/mediadock/internal/admission"
	"github.com/shadwo/mediadock/internal/api"
	"github.com/shadwo/mediadock/internal/archive"
	"github.com/shadwo/mediadock/internal/clock/system"
	"github.com/shadwo/mediadock/internal/config"
	"github.com/shadwo/mediadock/internal/credentials"
	"github.com/shadwo/mediadock/internal/dispatcher"
	ytfetcher "github.com/shadwo/mediadock/internal/fetcher/youtube"
	"github.com/shadwo/mediadock/internal/logging"
	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/metrics"
	"github.com/shadwo/mediadock/internal/orchestrator"
	queueMemory "github.com/shadwo/mediadock/internal/queue/memory"
	"github.com/shadwo/mediadock/internal/registry"
	localStore "github.com/shadwo/mediadock/internal/store/local"
	"github.com/shadwo/mediadock/internal/sweeper"
	"github.com/shadwo/mediadock/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Best-effort .env load for local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localStore.New(localStore.Config{BaseDir: cfg.Downloads.Dir})
	if err != nil {
		logger.Fatal("file store init failed", zap.Error(err))
	}

	clock := system.New()
	jobs := registry.New(clock)
	limiter := admission.New(admission.Config{
		Concurrency: cfg.Limits.Concurrency,
		RateLimit:   cfg.Limits.RateLimit,
		RateWindow:  cfg.RateWindow(),
	}, clock)
	rotator := credentials.New(credentials.Config{
		Dir: cfg.Credentials.Dir,
		TTL: cfg.CredentialTTL(),
	}, clock, logger.Named("credentials"))
	fetcher := ytfetcher.New(ytfetcher.Config{
		OutputDir:      store.BaseDir(),
		RequestsPerSec: cfg.Fetch.RequestsPerSec,
	}, logger.Named("fetcher"))

	var jobArchive *archive.Archive
	var archiver media.Archiver
	var history api.History
	if cfg.Archive.Path != "" {
		jobArchive, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		archiver = jobArchive
		history = jobArchive
	}

	queue := queueMemory.NewQueue(cfg.Limits.QueueDepth)
	workerCfg := worker.Config{FetchTimeout: cfg.FetchTimeout()}
	var workers []*worker.Worker
	for i := 0; i < cfg.Limits.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobs,
			limiter,
			rotator,
			fetcher,
			archiver,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	idPattern, err := regexp.Compile(cfg.Downloads.IDPattern)
	if err != nil {
		logger.Fatal("invalid id pattern", zap.Error(err))
	}
	core := orchestrator.New(jobs, store, limiter, dispatch, clock, orchestrator.Config{
		IDPattern:           idPattern,
		DefaultAudioQuality: media.Quality(cfg.Downloads.DefaultAudioQuality),
		DefaultVideoQuality: media.Quality(cfg.Downloads.DefaultVideoQuality),
	}, logger.Named("orchestrator"))

	sweep := sweeper.New(store, jobs, clock, sweeper.Config{
		MaxAge:   cfg.RetentionAge(),
		Interval: cfg.SweepInterval(),
	}, logger.Named("sweeper"))

	apiServer := api.NewServer(core, store, history, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("retention sweeper started", zap.Duration("interval", cfg.SweepInterval()))
		sweep.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	if jobArchive != nil {
		if err := jobArchive.Close(); err != nil {
			logger.Warn("archive close error", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
