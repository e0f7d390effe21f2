// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homevue/staging-engine/internal/domain"
)

// MemoryStore keeps runs in process memory with a mutex per run. It backs
// tests and the single-process blocking mode; the durability contract is
// provided by the Postgres store.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*memoryRun
}

type memoryRun struct {
	mu       sync.Mutex
	run      domain.StagingRun
	polledAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*memoryRun)}
}

func (s *MemoryStore) Create(_ context.Context, run *domain.StagingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = &memoryRun{run: cloneRun(run)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.StagingRun, error) {
	s.mu.Lock()
	entry, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrRunNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := cloneRun(&entry.run)
	return &out, nil
}

func (s *MemoryStore) FindByJobHandle(_ context.Context, handle string) (uuid.UUID, error) {
	if handle == "" {
		return uuid.Nil, domain.ErrRunNotFound
	}

	s.mu.Lock()
	entries := make([]*memoryRun, 0, len(s.runs))
	for _, entry := range s.runs {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		for _, h := range entry.run.JobHandles {
			if h == handle {
				id := entry.run.ID
				entry.mu.Unlock()
				return id, nil
			}
		}
		entry.mu.Unlock()
	}
	return uuid.Nil, domain.ErrRunNotFound
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(run *domain.StagingRun) error) error {
	s.mu.Lock()
	entry, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return domain.ErrRunNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := cloneRun(&entry.run)
	if err := fn(&working); err != nil {
		return err
	}
	entry.run = cloneRun(&working)
	return nil
}

func (s *MemoryStore) ClaimPollable(_ context.Context, notPolledFor time.Duration, limit int) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-notPolledFor)

	s.mu.Lock()
	entries := make([]*memoryRun, 0, len(s.runs))
	for _, entry := range s.runs {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	claimed := make([]uuid.UUID, 0, limit)
	for _, entry := range entries {
		if len(claimed) >= limit {
			break
		}
		entry.mu.Lock()
		if !entry.run.Status.Terminal() && entry.polledAt.Before(cutoff) {
			entry.polledAt = time.Now()
			claimed = append(claimed, entry.run.ID)
		}
		entry.mu.Unlock()
	}
	return claimed, nil
}

func cloneRun(run *domain.StagingRun) domain.StagingRun {
	out := *run

	out.JobHandles = append([]string(nil), run.JobHandles...)

	out.StageResults = make([]domain.StageResult, len(run.StageResults))
	for i, res := range run.StageResults {
		out.StageResults[i] = res
		out.StageResults[i].Violations = append([]domain.Violation(nil), res.Violations...)
		if res.ResultImage != nil {
			img := *res.ResultImage
			out.StageResults[i].ResultImage = &img
		}
	}

	out.Plan.Stages = make([]domain.StageConfig, len(run.Plan.Stages))
	for i, stage := range run.Plan.Stages {
		out.Plan.Stages[i] = stage
		out.Plan.Stages[i].AllowedCategories = append([]string(nil), stage.AllowedCategories...)
	}

	return out
}
