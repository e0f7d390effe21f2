// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/google/uuid"

	"github.com/homevue/staging-engine/internal/domain"
	"github.com/homevue/staging-engine/internal/engine"
)

type Stager interface {
	StartRun(ctx context.Context, p engine.StartParams) (domain.RunProjection, error)
	GetRunStatus(ctx context.Context, id uuid.UUID) (domain.RunProjection, error)
	HandleProviderEvent(ctx context.Context, ev engine.ProviderEvent) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
