// SPDX-License-Identifier: Apache-2.0

// Package validate judges a stage attempt by comparing the images before and
// after generation. All checks are cheap pixel heuristics, not object
// detection; they catch the gross failure modes (repainted architecture,
// decor in the wrong stage, crowded floors) rather than miscounted cushions.
// A stronger detector can replace this package behind the same verdict
// contract without touching the engine.
package validate

import (
	"context"
	"log/slog"
	"math"

	"github.com/homevue/staging-engine/internal/domain"
)

const (
	// colorDriftThreshold flags runs where the model repainted the room
	// instead of only adding furnishings.
	colorDriftThreshold = 0.15

	// itemEstimateScale maps whole-frame edge density increase to an item
	// count. Calibrated against staged reference photos; coarse on purpose.
	itemEstimateScale = 400.0

	// Band-delta thresholds for decor appearing where the stage forbids it.
	wallDecorDeltaThreshold       = 0.010
	windowTreatmentDeltaThreshold = 0.010

	// circulationDensityThreshold is the absolute edge saturation of the
	// central floor band beyond which the walkway counts as blocked.
	circulationDensityThreshold = 0.35
)

// StageValidator is the verdict contract the engine depends on.
type StageValidator interface {
	Validate(ctx context.Context, before, after []byte, stage domain.StageConfig) (domain.ValidationVerdict, error)
}

// HeuristicValidator implements StageValidator with the pixel heuristics in
// this package. It is stateless and safe for concurrent use.
type HeuristicValidator struct {
	logger *slog.Logger
}

func NewHeuristicValidator(logger *slog.Logger) *HeuristicValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicValidator{logger: logger}
}

func (v *HeuristicValidator) Validate(ctx context.Context, before, after []byte, stage domain.StageConfig) (domain.ValidationVerdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.ValidationVerdict{}, err
	}

	beforeFrame, err := decodeFrame(before)
	if err != nil {
		return domain.ValidationVerdict{}, err
	}
	afterFrame, err := decodeFrame(after)
	if err != nil {
		return domain.ValidationVerdict{}, err
	}

	verdict := domain.ValidationVerdict{
		ItemCountEstimate: estimateItems(beforeFrame, afterFrame),
	}

	if drift := colorDrift(beforeFrame, afterFrame); drift > colorDriftThreshold {
		v.logger.Debug("color drift detected", "drift", drift, "stage", stage.Kind)
		verdict.Violations = append(verdict.Violations, domain.ViolationColorDrift)
	}

	if verdict.ItemCountEstimate < stage.MinItems || verdict.ItemCountEstimate > stage.MaxItems {
		verdict.Violations = append(verdict.Violations, domain.ViolationItemCountOutOfRange)
	}

	if stage.Kind != domain.StageWallDecor {
		if delta := edgeDensityDelta(beforeFrame, afterFrame, wallBand); delta > wallDecorDeltaThreshold {
			v.logger.Debug("wall decor signal", "delta", delta, "stage", stage.Kind)
			verdict.Violations = append(verdict.Violations, domain.ViolationWallDecorPresent)
		}
	}

	if stage.Kind != domain.StageWindowTreatment {
		left := edgeDensityDelta(beforeFrame, afterFrame, windowBandLeft)
		right := edgeDensityDelta(beforeFrame, afterFrame, windowBandRight)
		if left > windowTreatmentDeltaThreshold || right > windowTreatmentDeltaThreshold {
			v.logger.Debug("window treatment signal", "left", left, "right", right, "stage", stage.Kind)
			verdict.Violations = append(verdict.Violations, domain.ViolationWindowTreatmentPresent)
		}
	}

	// Floor-level stages must keep the walkway passable.
	if stage.Kind == domain.StagePrimaryFurniture || stage.Kind == domain.StageAccessory {
		if density := afterFrame.edgeDensity(floorBand); density > circulationDensityThreshold {
			v.logger.Debug("circulation blocked", "density", density, "stage", stage.Kind)
			verdict.Violations = append(verdict.Violations, domain.ViolationCirculationBlocked)
		}
	}

	verdict.Passed = len(verdict.Violations) == 0
	return verdict, nil
}

func estimateItems(before, after *frame) int {
	delta := edgeDensityDelta(before, after, wholeFrame)
	return int(math.Round(delta * itemEstimateScale))
}
