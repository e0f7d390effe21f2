// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ImageRef points at an image without carrying its pixels. Width and Height
// are the only metadata the engine ever inspects.
type ImageRef struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// StagingRun is the durable record of one staging workflow. It is mutated
// exclusively by the workflow engine, always under the store's per-run lock,
// and everything the engine needs to process the next external event is
// recoverable from this record alone.
type StagingRun struct {
	ID            uuid.UUID     `json:"id"`
	RoomCategory  RoomCategory  `json:"room_category"`
	StyleProfile  StyleProfile  `json:"style_profile"`
	Plan          StagingPlan   `json:"plan"`
	CurrentStage  int           `json:"current_stage"` // -1 until stage 0 is dispatched
	JobHandles    []string      `json:"job_handles"`   // index = stage index; "" for stages not yet dispatched
	StageResults  []StageResult `json:"stage_results"` // append-only, one entry per attempt
	OriginalImage ImageRef      `json:"original_image"`
	LatestImage   ImageRef      `json:"latest_image"` // input to the next stage
	WebhookURL    string        `json:"webhook_url,omitempty"`
	Status        RunStatus     `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// HandleAt returns the provider job handle stored for the given stage index.
func (r *StagingRun) HandleAt(stage int) string {
	if stage < 0 || stage >= len(r.JobHandles) {
		return ""
	}
	return r.JobHandles[stage]
}

// SetHandle records the job handle for a stage, growing the slice as needed.
// A corrective retry overwrites the handle from the first attempt, which is
// what makes duplicate deliveries for the stale handle detectable.
func (r *StagingRun) SetHandle(stage int, handle string) {
	for len(r.JobHandles) <= stage {
		r.JobHandles = append(r.JobHandles, "")
	}
	r.JobHandles[stage] = handle
}

// AttemptsAt counts recorded attempts for a stage index. The retry policy
// derives entirely from this count, so it survives process restarts.
func (r *StagingRun) AttemptsAt(stage int) int {
	n := 0
	for _, res := range r.StageResults {
		if res.StageIndex == stage {
			n++
		}
	}
	return n
}

// CurrentStageKind reports the kind of the active stage, or "" when the run
// has not started or has finished.
func (r *StagingRun) CurrentStageKind() StageKind {
	if r.CurrentStage < 0 || r.CurrentStage >= len(r.Plan.Stages) {
		return ""
	}
	return r.Plan.Stages[r.CurrentStage].Kind
}

// RunProjection is the read-only view returned to callers. Internal retry
// mechanics are visible only through the per-attempt result entries.
type RunProjection struct {
	ID               uuid.UUID     `json:"id"`
	Status           RunStatus     `json:"status"`
	CurrentStageKind StageKind     `json:"current_stage_kind,omitempty"`
	StageResults     []StageResult `json:"stage_results"`
	FinalImage       *ImageRef     `json:"final_image,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

func (r *StagingRun) Project() RunProjection {
	p := RunProjection{
		ID:           r.ID,
		Status:       r.Status,
		StageResults: r.StageResults,
		ErrorMessage: r.ErrorMessage,
	}
	if r.Status == RunRunning {
		p.CurrentStageKind = r.CurrentStageKind()
	}
	if r.Status == RunCompleted {
		img := r.LatestImage
		p.FinalImage = &img
	}
	return p
}
