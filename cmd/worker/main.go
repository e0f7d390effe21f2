// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
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
	"github.com/homevue/staging-engine/internal/validate"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, "worker")

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

	logger.Info("worker started", "poll_interval", cfg.PollInterval, "reclaim_after", cfg.ReclaimAfter)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			return
		case <-ticker.C:
			touched, err := eng.PollOnce(ctx)
			if err != nil {
				logger.Error("poll cycle failed", "error", err)
				continue
			}
			if touched > 0 {
				logger.Debug("poll cycle complete", "runs", touched)
			}
		}
	}
}
