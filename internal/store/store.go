// SPDX-License-Identifier: Apache-2.0

// Package store persists staging runs. Every mutation goes through Update,
// which guarantees per-run mutual exclusion: two near-simultaneous provider
// callbacks for the same run are applied one after the other against fresh
// state, never against the same snapshot.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/homevue/staging-engine/internal/domain"
)

type RunStore interface {
	Create(ctx context.Context, run *domain.StagingRun) error
	Get(ctx context.Context, id uuid.UUID) (*domain.StagingRun, error)

	// FindByJobHandle resolves a provider job handle to the run that
	// dispatched it, across all stages of all runs.
	FindByJobHandle(ctx context.Context, handle string) (uuid.UUID, error)

	// Update loads the run under the per-run lock, applies fn, and persists
	// the mutated record. fn returning an error aborts the write.
	Update(ctx context.Context, id uuid.UUID, fn func(run *domain.StagingRun) error) error

	// ClaimPollable picks up to limit non-terminal runs that have not been
	// polled within notPolledFor, marking them polled so concurrent workers
	// skip them.
	ClaimPollable(ctx context.Context, notPolledFor time.Duration, limit int) ([]uuid.UUID, error)
}
