// SPDX-License-Identifier: Apache-2.0

// Package provider adapts the external image-synthesis service: it turns a
// stage instruction plus the current room image into exactly one generation
// job and reports job status. It never interprets results; that is the
// engine's job.
package provider

import (
	"context"

	"github.com/homevue/staging-engine/internal/domain"
)

type JobState string

const (
	JobPending   JobState = "pending"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Result is one generated image, either inline bytes or a reference the
// caller can fetch.
type Result struct {
	Data     []byte
	MIMEType string
	Ref      string
}

// DispatchOutcome is what a dispatch call produced. Handle is always set;
// Immediate is non-nil when the provider rendered synchronously, in which
// case no poll or callback will ever arrive for the handle.
type DispatchOutcome struct {
	Handle    string
	Immediate *Result
}

// JobStatus is the provider's answer to a poll.
type JobStatus struct {
	State  JobState
	Result *Result
	Reason string
}

// DispatchRequest carries everything one generation job needs.
type DispatchRequest struct {
	Image       domain.ImageRef
	ImageData   []byte
	MIMEType    string
	Instruction string
}

// Generator is the stage executor contract. A dispatch error is a plain
// error return; the adapter never retries beyond what its transport needs,
// so the engine's retry policy stays the single authority.
type Generator interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchOutcome, error)
	Poll(ctx context.Context, handle string) (JobStatus, error)
}
