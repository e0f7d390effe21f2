//go:build integration

// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homevue/staging-engine/internal/domain"
	"github.com/homevue/staging-engine/internal/persistence/postgres"
)

func integrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create pgx pool (%v)", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	return pool
}

func truncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE stage_results, runs RESTART IDENTITY CASCADE`)
	return err
}

func TestPostgresStoreIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
		t.Skipf("skip integration test: migrate failed (%v)", err)
	}
	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	s := NewPostgresStore(pool, logger)

	run := &domain.StagingRun{
		ID:           uuid.New(),
		RoomCategory: domain.RoomBedroom,
		StyleProfile: domain.StyleScandinavian,
		Plan: domain.StagingPlan{Stages: []domain.StageConfig{
			{Kind: domain.StagePrimaryFurniture, MinItems: 2, MaxItems: 4, AllowedCategories: []string{"bed", "nightstand"}, Instruction: "add the main pieces"},
			{Kind: domain.StageAccessory, MinItems: 1, MaxItems: 3, AllowedCategories: []string{"rug"}, Instruction: "add accents"},
		}},
		CurrentStage:  -1,
		OriginalImage: domain.ImageRef{URL: "https://img.test/orig.png", Width: 1024, Height: 768},
		LatestImage:   domain.ImageRef{URL: "https://img.test/orig.png", Width: 1024, Height: 768},
		WebhookURL:    "https://client.test/hook",
		Status:        domain.RunPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	got, err := s.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != domain.RunPending || got.RoomCategory != domain.RoomBedroom {
		t.Fatalf("unexpected run after create: %+v", got)
	}
	if len(got.Plan.Stages) != 2 || got.Plan.Stages[0].Instruction != "add the main pieces" {
		t.Fatalf("plan not round-tripped: %+v", got.Plan)
	}

	err = s.Update(ctx, run.ID, func(r *domain.StagingRun) error {
		r.Status = domain.RunRunning
		r.CurrentStage = 0
		r.SetHandle(0, "job-int-1")
		r.StageResults = append(r.StageResults, domain.StageResult{
			StageIndex:       0,
			StageKind:        domain.StagePrimaryFurniture,
			Succeeded:        true,
			ItemsAdded:       3,
			ValidationPassed: false,
			Violations:       []domain.Violation{domain.ViolationWallDecorPresent},
			ResultImage:      &domain.ImageRef{URL: "https://img.test/s0.png", Width: 1024, Height: 768},
			CreatedAt:        time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		t.Fatalf("update run: %v", err)
	}

	got, err = s.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != domain.RunRunning || got.HandleAt(0) != "job-int-1" {
		t.Fatalf("update not persisted: %+v", got)
	}
	if len(got.StageResults) != 1 {
		t.Fatalf("expected one stage result, got %d", len(got.StageResults))
	}
	res := got.StageResults[0]
	if !res.Succeeded || res.ValidationPassed || len(res.Violations) != 1 || res.ResultImage == nil {
		t.Fatalf("stage result not round-tripped: %+v", res)
	}

	id, err := s.FindByJobHandle(ctx, "job-int-1")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if id != run.ID {
		t.Fatalf("expected %s, got %s", run.ID, id)
	}
	if _, err := s.FindByJobHandle(ctx, "job-missing"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	ids, err := s.ClaimPollable(ctx, 0, 10)
	if err != nil {
		t.Fatalf("claim pollable: %v", err)
	}
	if len(ids) != 1 || ids[0] != run.ID {
		t.Fatalf("expected the running run to be claimable, got %v", ids)
	}
	ids, err = s.ClaimPollable(ctx, time.Hour, 10)
	if err != nil {
		t.Fatalf("claim pollable again: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no claimable runs inside cooldown, got %v", ids)
	}

	wantErr := errors.New("abort")
	err = s.Update(ctx, run.ID, func(r *domain.StagingRun) error {
		r.Status = domain.RunFailed
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, err = s.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get after aborted update: %v", err)
	}
	if got.Status != domain.RunRunning {
		t.Fatalf("aborted update was persisted: %s", got.Status)
	}

	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound for unknown id, got %v", err)
	}
	if err := s.Update(ctx, uuid.New(), func(*domain.StagingRun) error { return nil }); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on update of unknown id, got %v", err)
	}
}
