// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homevue/staging-engine/internal/config"
	"github.com/homevue/staging-engine/internal/engine"
	"github.com/homevue/staging-engine/internal/logging"
	"github.com/homevue/staging-engine/internal/persistence/postgres"
	"github.com/homevue/staging-engine/internal/provider"
	"github.com/homevue/staging-engine/internal/storage"
	"github.com/homevue/staging-engine/internal/store"
	httptransport "github.com/homevue/staging-engine/internal/transport/http"
	"github.com/homevue/staging-engine/internal/validate"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, "api")

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	images, err := storage.NewS3Store(ctx, cfg.ImageBucket, cfg.ImageRegion, logger)
	if err != nil {
		log.Fatalf("image store init failed: %v", err)
	}

	generator := provider.NewRestClient(provider.RestClientOpts{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Logger:  logger,
	})

	eng := engine.New(engine.Deps{
		Store:        store.NewPostgresStore(pool, logger),
		Providers:    engine.ProviderTable{Default: generator},
		Validator:    validate.NewHeuristicValidator(logger),
		Images:       images,
		Notifier:     engine.NewNotifier(cfg.ProviderWebhookSecret, logger),
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
		ReclaimAfter: cfg.ReclaimAfter,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Stager:        eng,
		Health:        postgres.NewSchemaHealthChecker(pool),
		Logger:        logger,
		WebhookSecret: cfg.ProviderWebhookSecret,
		RunsPerMinute: cfg.RunsPerMinute,
		Version:       Version,
		Commit:        Commit,
		BuildDate:     BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
