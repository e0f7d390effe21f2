// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homevue/staging-engine/internal/domain"
)

// PostgresStore persists runs in two tables: a runs row holding the workflow
// record, and an append-only stage_results table holding one row per attempt.
// Update serializes writers on the runs row via SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) Create(ctx context.Context, run *domain.StagingRun) error {
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	handlesJSON, err := json.Marshal(run.JobHandles)
	if err != nil {
		return fmt.Errorf("marshal job handles: %w", err)
	}
	origJSON, err := json.Marshal(run.OriginalImage)
	if err != nil {
		return fmt.Errorf("marshal original image: %w", err)
	}
	latestJSON, err := json.Marshal(run.LatestImage)
	if err != nil {
		return fmt.Errorf("marshal latest image: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (
			id, room_category, style_profile, plan, current_stage,
			job_handles, original_image, latest_image, webhook_url,
			status, error_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		run.ID, run.RoomCategory, run.StyleProfile, planJSON, run.CurrentStage,
		handlesJSON, origJSON, latestJSON, run.WebhookURL,
		run.Status, run.ErrorMessage,
	)
	if err != nil {
		s.logger.Error("insert run failed", "run_id", run.ID, "error", err)
		return err
	}

	s.logger.Info("run created", "run_id", run.ID, "room", run.RoomCategory, "style", run.StyleProfile)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*domain.StagingRun, error) {
	run, err := s.loadRun(ctx, s.pool, id, false)
	if err != nil {
		if !errors.Is(err, domain.ErrRunNotFound) {
			s.logger.Error("get run failed", "run_id", id, "error", err)
		}
		return nil, err
	}
	return run, nil
}

func (s *PostgresStore) FindByJobHandle(ctx context.Context, handle string) (uuid.UUID, error) {
	if handle == "" {
		return uuid.Nil, domain.ErrRunNotFound
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM runs
		WHERE job_handles @> jsonb_build_array($1::text)
		LIMIT 1
	`, handle).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrRunNotFound
	}
	if err != nil {
		s.logger.Error("find by job handle failed", "error", err)
		return uuid.Nil, err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fn func(run *domain.StagingRun) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	run, err := s.loadRun(ctx, tx, id, true)
	if err != nil {
		if !errors.Is(err, domain.ErrRunNotFound) {
			s.logger.Error("load run for update failed", "run_id", id, "error", err)
		}
		return err
	}

	existingResults := len(run.StageResults)

	if err := fn(run); err != nil {
		return err
	}
	run.UpdatedAt = time.Now().UTC()

	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	handlesJSON, err := json.Marshal(run.JobHandles)
	if err != nil {
		return fmt.Errorf("marshal job handles: %w", err)
	}
	latestJSON, err := json.Marshal(run.LatestImage)
	if err != nil {
		return fmt.Errorf("marshal latest image: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE runs
		SET plan=$2,
		    current_stage=$3,
		    job_handles=$4,
		    latest_image=$5,
		    status=$6,
		    error_message=$7,
		    updated_at=$8
		WHERE id=$1
	`,
		run.ID, planJSON, run.CurrentStage, handlesJSON,
		latestJSON, run.Status, run.ErrorMessage, run.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("update run failed", "run_id", id, "error", err)
		return err
	}

	for seq := existingResults; seq < len(run.StageResults); seq++ {
		res := run.StageResults[seq]

		violationsJSON, err := json.Marshal(res.Violations)
		if err != nil {
			return fmt.Errorf("marshal violations: %w", err)
		}
		var imageJSON []byte
		if res.ResultImage != nil {
			imageJSON, err = json.Marshal(res.ResultImage)
			if err != nil {
				return fmt.Errorf("marshal result image: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO stage_results (
				run_id, seq, stage_index, stage_kind, succeeded,
				items_added, validation_passed, violations, retry_count,
				result_image, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			run.ID, seq, res.StageIndex, res.StageKind, res.Succeeded,
			res.ItemsAdded, res.ValidationPassed, violationsJSON, res.RetryCount,
			imageJSON, res.CreatedAt,
		); err != nil {
			s.logger.Error("insert stage result failed", "run_id", id, "seq", seq, "error", err)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit update failed", "run_id", id, "error", err)
		return err
	}
	return nil
}

func (s *PostgresStore) ClaimPollable(ctx context.Context, notPolledFor time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE runs
		SET polled_at=NOW()
		WHERE id IN (
			SELECT id FROM runs
			WHERE status IN ('pending','running')
			  AND (polled_at IS NULL OR polled_at < NOW() - make_interval(secs => $1))
			ORDER BY polled_at NULLS FIRST
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, notPolledFor.Seconds(), limit)
	if err != nil {
		s.logger.Error("claim pollable failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// querier lets loadRun run against either the pool or an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) loadRun(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.StagingRun, error) {
	query := `
		SELECT id, room_category, style_profile, plan, current_stage,
		       job_handles, original_image, latest_image, webhook_url,
		       status, error_message, created_at, updated_at
		FROM runs WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		run         domain.StagingRun
		planJSON    []byte
		handlesJSON []byte
		origJSON    []byte
		latestJSON  []byte
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.RoomCategory, &run.StyleProfile, &planJSON, &run.CurrentStage,
		&handlesJSON, &origJSON, &latestJSON, &run.WebhookURL,
		&run.Status, &run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(planJSON, &run.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if err := json.Unmarshal(handlesJSON, &run.JobHandles); err != nil {
		return nil, fmt.Errorf("unmarshal job handles: %w", err)
	}
	if err := json.Unmarshal(origJSON, &run.OriginalImage); err != nil {
		return nil, fmt.Errorf("unmarshal original image: %w", err)
	}
	if err := json.Unmarshal(latestJSON, &run.LatestImage); err != nil {
		return nil, fmt.Errorf("unmarshal latest image: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT stage_index, stage_kind, succeeded, items_added,
		       validation_passed, violations, retry_count, result_image, created_at
		FROM stage_results
		WHERE run_id=$1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res            domain.StageResult
			violationsJSON []byte
			imageJSON      []byte
		)
		if err := rows.Scan(
			&res.StageIndex, &res.StageKind, &res.Succeeded, &res.ItemsAdded,
			&res.ValidationPassed, &violationsJSON, &res.RetryCount, &imageJSON, &res.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(violationsJSON) > 0 {
			if err := json.Unmarshal(violationsJSON, &res.Violations); err != nil {
				return nil, fmt.Errorf("unmarshal violations: %w", err)
			}
		}
		if len(imageJSON) > 0 {
			res.ResultImage = &domain.ImageRef{}
			if err := json.Unmarshal(imageJSON, res.ResultImage); err != nil {
				return nil, fmt.Errorf("unmarshal result image: %w", err)
			}
		}
		run.StageResults = append(run.StageResults, res)
	}
	return &run, rows.Err()
}
