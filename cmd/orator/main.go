package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bnema/orator/config"
	"github.com/bnema/orator/internal/adapter/catalog"
	"github.com/bnema/orator/internal/adapter/converter/ffmpeg"
	"github.com/bnema/orator/internal/adapter/engine/ollama"
	"github.com/bnema/orator/internal/adapter/engine/whisper"
	HTTPAdapter "github.com/bnema/orator/internal/adapter/http"
	"github.com/bnema/orator/internal/adapter/storage/jsonfile"
	sqlitestore "github.com/bnema/orator/internal/adapter/storage/sqlite"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
	"github.com/bnema/orator/internal/port"
	"github.com/bnema/orator/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("orator stopped")
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (port.JobStore, error) {
	switch cfg.StoreBackend {
	case config.StoreJSON:
		return jsonfile.NewStore(cfg.DataDir)
	default:
		return sqlitestore.NewStore(cfg.DataDir)
	}
}

func newTranscriber(cfg *config.Config, converter *ffmpeg.Converter) port.Transcriber {
	if cfg.STT.Backend == config.STTHTTP {
		return whisper.NewHTTP(whisper.HTTPConfig{
			BaseURL: cfg.STT.URL,
			APIKey:  cfg.STT.APIKey,
			Model:   cfg.STT.Model,
			Timeout: cfg.STT.Timeout,
		})
	}
	return whisper.NewCLI(whisper.CLIConfig{
		Binary:    cfg.STT.Binary,
		ModelPath: cfg.STT.ModelPath,
		Language:  cfg.STT.Language,
		Timeout:   cfg.STT.Timeout,
	}, converter)
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.WithField("port", cfg.Port).WithField("store", cfg.StoreBackend).
		WithField("stt", cfg.STT.Backend).Info("starting orator")

	uploadDir := filepath.Join(cfg.DataDir, "uploads")
	tmpDir := filepath.Join(cfg.DataDir, "tmp")
	for _, dir := range []string{cfg.DataDir, uploadDir, tmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	models, err := catalog.Load(cfg.Generation.CatalogPath, cfg.Generation.DefaultModel)
	if err != nil {
		log.WithError(err).Warn("model catalog unusable, offering the default model only")
		models = catalog.Minimal(cfg.Generation.DefaultModel)
	}

	auth, err := service.NewTokenAuth(cfg.APITokenHash)
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		log.Warn("API_TOKEN_HASH not set, mutating routes are open")
	}

	converter := ffmpeg.NewConverter(cfg.Media.FFmpeg, cfg.Media.FFprobe)
	stt := newTranscriber(cfg, converter)
	llm := ollama.NewClient(cfg.Generation.URL, ollama.Timeouts{
		Probe:    cfg.Generation.ProbeTimeout,
		List:     cfg.Generation.ListTimeout,
		Generate: cfg.Generation.GenerateTimeout,
		Pull:     cfg.Generation.PullTimeout,
	})

	eventBus := service.NewEventBus()
	analyzer := service.NewAnalyzer(llm, log)
	readiness := service.NewReadinessCoordinator(llm, service.ReadinessConfig{
		Attempts:       cfg.Readiness.Attempts,
		InitialBackoff: cfg.Readiness.InitialBackoff,
		PullPause:      cfg.Readiness.PullPause,
		WarmupInterval: cfg.Readiness.WarmupInterval,
		WarmupMaxWait:  cfg.Readiness.WarmupMaxWait,
		WarmupTimeout:  cfg.Readiness.WarmupTimeout,
	}, log)
	pipeline := service.NewPipeline(store, converter, stt, analyzer, readiness, eventBus, service.PipelineConfig{
		UploadDir:    uploadDir,
		DefaultModel: cfg.Generation.DefaultModel,
	}, log)

	runner := service.NewTaskRunner(log)
	jobs := service.NewJobService(store, runner, pipeline, llm, analyzer, eventBus, service.JobServiceConfig{
		UploadDir:    uploadDir,
		DefaultModel: cfg.Generation.DefaultModel,
		Catalog:      models,
	}, log)

	if n, err := jobs.RecoverInterrupted(context.Background()); err != nil {
		log.WithError(err).Error("recovering interrupted jobs")
	} else if n > 0 {
		log.WithField("count", n).Warn("marked jobs interrupted by the previous run as failed")
	}

	if cfg.MetricsEnabled {
		metrics.MustRegister()
	}

	server := HTTPAdapter.NewServer(jobs, eventBus, auth, HTTPAdapter.ServerConfig{
		TmpDir:         tmpDir,
		MaxUploadMB:    cfg.MaxUploadSizeMB,
		MetricsEnabled: cfg.MetricsEnabled,
	}, log)
	defer server.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	// unfinished jobs are failed by RecoverInterrupted on the next start
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("jobs still running at exit")
	}

	log.Info("shutdown complete")
	return nil
}
