// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

type Violation string

const (
	ViolationWallDecorPresent       Violation = "wall_decor_present"
	ViolationWindowTreatmentPresent Violation = "window_treatment_present"
	ViolationCirculationBlocked     Violation = "circulation_blocked"
	ViolationColorDrift             Violation = "color_drift_detected"
	ViolationItemCountOutOfRange    Violation = "item_count_out_of_range"
)

// ValidationVerdict is the validator's judgment for one stage attempt.
// It is transient; the engine folds it into a StageResult.
type ValidationVerdict struct {
	Passed            bool        `json:"passed"`
	ItemCountEstimate int         `json:"item_count_estimate"`
	Violations        []Violation `json:"violations,omitempty"`
}

// StageResult records one stage attempt. Entries are append-only: a retry
// produces a new entry rather than editing the prior one, so the full
// attempt history of a run is auditable.
type StageResult struct {
	StageIndex       int         `json:"stage_index"`
	StageKind        StageKind   `json:"stage_kind"`
	Succeeded        bool        `json:"succeeded"`
	ItemsAdded       int         `json:"items_added"`
	ValidationPassed bool        `json:"validation_passed"`
	Violations       []Violation `json:"violations,omitempty"`
	RetryCount       int         `json:"retry_count"`
	ResultImage      *ImageRef   `json:"result_image,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}
