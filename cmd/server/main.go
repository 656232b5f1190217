// Package main is the entrypoint for the Storycast API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storycast/storycast/internal/api"
	"github.com/storycast/storycast/internal/api/handler"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/blob"
	"github.com/storycast/storycast/internal/bulk"
	"github.com/storycast/storycast/internal/cache"
	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/internal/generate"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/internal/tts"
	"github.com/storycast/storycast/internal/voice"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "batch_width", cfg.Bulk.BatchWidth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backing services. Postgres is required up front; migrations run on
	// every boot and no-op when current.
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	blobStore, err := blob.NewMinIOStorage(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("connect blob storage: %w", err)
	}
	slog.Info("blob storage ready", "bucket", cfg.Blob.Bucket)

	pgStore := store.NewPostgresStore(pool)

	// Audio pipeline. Providers without credentials register anyway and
	// fail per-item on first use. The bulk and single generators differ
	// only in their duration floor.
	registry := tts.NewRegistry(cfg.TTS)
	resolver := voice.NewResolver(pgStore, cfg.Bulk)
	bulkGen := generate.NewGenerator(pgStore, blobStore, registry,
		cfg.Bulk.BulkDurationFloor, cfg.Bulk.AssumedBitrateKbps)
	singleGen := generate.NewGenerator(pgStore, blobStore, registry,
		cfg.Bulk.SingleDurationFloor, cfg.Bulk.AssumedBitrateKbps)
	runner := bulk.NewRunner(pgStore, bulkGen, resolver, redisCache, cfg.Bulk)

	// Bulk jobs travel through the Redis queue, so queued work survives a
	// crash of the serving process.
	dispatcher, err := bulk.NewDispatcher(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create job dispatcher: %w", err)
	}
	defer dispatcher.Close()

	worker, err := bulk.NewWorker(cfg.Redis.URL, runner, cfg.Bulk.WorkerConcurrency)
	if err != nil {
		return fmt.Errorf("create job worker: %w", err)
	}
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start job worker: %w", err)
	}
	slog.Info("job worker started", "concurrency", cfg.Bulk.WorkerConcurrency)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: healthHandler(pgStore, redisCache, blobStore),

		CreateProject:  handler.NewCreateProjectHandler(pgStore),
		ListProjects:   handler.NewListProjectsHandler(pgStore),
		GetProject:     handler.NewGetProjectHandler(pgStore),
		UpdateSettings: handler.NewUpdateSettingsHandler(pgStore),

		CreateScene: handler.NewCreateSceneHandler(pgStore),
		ListScenes:  handler.NewListScenesHandler(pgStore),

		ListUtterances:    handler.NewListUtterancesHandler(pgStore),
		UpdateUtterance:   handler.NewUpdateUtteranceHandler(pgStore),
		GenerateUtterance: handler.NewGenerateUtteranceHandler(pgStore, singleGen, resolver),

		PutCharacterVoice: handler.NewPutCharacterVoiceHandler(pgStore),
		ListCharacters:    handler.NewListCharactersHandler(pgStore),

		StartBulk:   handler.NewStartBulkHandler(pgStore, dispatcher),
		BulkStatus:  handler.NewBulkStatusHandler(pgStore),
		CancelBulk:  handler.NewCancelBulkHandler(pgStore),
		BulkHistory: handler.NewBulkHistoryHandler(pgStore, cfg.Bulk.HistoryLimitMax),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
		UsageHandler:     handler.NewUsageHandler(pgStore),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		worker.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown requested, draining")
	}

	// The worker drains first so in-flight jobs persist their progress
	// before the store goes away.
	worker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// healthHandler probes each backing service and reports per-service
// state. Any failing probe turns the whole response into a 503.
func healthHandler(s store.Store, c cache.Cache, b blob.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := map[string]func(context.Context) error{
			"database": s.Ping,
			"cache":    c.Ping,
			"blob":     b.Ping,
		}

		checks := make(map[string]string, len(probes))
		healthy := true
		for name, probe := range probes {
			if err := probe(r.Context()); err != nil {
				checks[name] = "degraded"
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}
		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
