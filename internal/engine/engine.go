// SPDX-License-Identifier: Apache-2.0

// Package engine owns the staging workflow state machine. All state
// transitions run under the store's per-run lock and derive from persisted
// run state plus the incoming event, so the same transition function serves
// the blocking poll loop, the background worker, and inbound provider
// callbacks interchangeably.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homevue/staging-engine/internal/domain"
	"github.com/homevue/staging-engine/internal/metrics"
	"github.com/homevue/staging-engine/internal/plan"
	"github.com/homevue/staging-engine/internal/provider"
	"github.com/homevue/staging-engine/internal/storage"
	"github.com/homevue/staging-engine/internal/store"
	"github.com/homevue/staging-engine/internal/validate"
)

const maxStageAttempts = 2

// ProviderTable maps room categories to generation backends. Default serves
// any category without a dedicated entry.
type ProviderTable struct {
	ByRoom  map[domain.RoomCategory]provider.Generator
	Default provider.Generator
}

func (t ProviderTable) For(room domain.RoomCategory) provider.Generator {
	if g, ok := t.ByRoom[room]; ok {
		return g
	}
	return t.Default
}

type Deps struct {
	Store     store.RunStore
	Planner   *plan.Builder
	Providers ProviderTable
	Validator validate.StageValidator
	Images    storage.ImageStore
	Notifier  *Notifier
	Logger    *slog.Logger

	// Blocking-mode tuning.
	PollInterval time.Duration
	PollBudget   int

	// Worker reclaim window for PollOnce.
	ReclaimAfter time.Duration
	PollBatch    int
}

type Engine struct {
	store        store.RunStore
	planner      *plan.Builder
	providers    ProviderTable
	validator    validate.StageValidator
	images       storage.ImageStore
	notifier     *Notifier
	logger       *slog.Logger
	pollInterval time.Duration
	pollBudget   int
	reclaimAfter time.Duration
	pollBatch    int
}

func New(deps Deps) *Engine {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	planner := deps.Planner
	if planner == nil {
		planner = plan.NewBuilder(nil)
	}

	interval := deps.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	budget := deps.PollBudget
	if budget <= 0 {
		budget = 60
	}
	reclaim := deps.ReclaimAfter
	if reclaim <= 0 {
		reclaim = 30 * time.Second
	}
	batch := deps.PollBatch
	if batch <= 0 {
		batch = 10
	}

	return &Engine{
		store:        deps.Store,
		planner:      planner,
		providers:    deps.Providers,
		validator:    deps.Validator,
		images:       deps.Images,
		notifier:     deps.Notifier,
		logger:       l,
		pollInterval: interval,
		pollBudget:   budget,
		reclaimAfter: reclaim,
		pollBatch:    batch,
	}
}

type StartParams struct {
	RoomCategory domain.RoomCategory
	StyleProfile domain.StyleProfile
	Selection    domain.StageSelection
	Image        domain.ImageRef
	WebhookURL   string
}

// StartRun creates a run, dispatches stage 0, and returns the run's initial
// projection. Input errors are rejected before anything is persisted.
func (e *Engine) StartRun(ctx context.Context, p StartParams) (domain.RunProjection, error) {
	if strings.TrimSpace(p.Image.URL) == "" {
		return domain.RunProjection{}, domain.ErrMissingImage
	}

	stagingPlan, err := e.planner.Build(p.RoomCategory, p.StyleProfile, p.Selection)
	if err != nil {
		return domain.RunProjection{}, err
	}

	now := time.Now().UTC()
	run := &domain.StagingRun{
		ID:            uuid.New(),
		RoomCategory:  p.RoomCategory,
		StyleProfile:  p.StyleProfile,
		Plan:          stagingPlan,
		CurrentStage:  -1,
		OriginalImage: p.Image,
		LatestImage:   p.Image,
		WebhookURL:    strings.TrimSpace(p.WebhookURL),
		Status:        domain.RunPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.Create(ctx, run); err != nil {
		return domain.RunProjection{}, err
	}
	metrics.IncRunStatus(domain.RunPending)

	e.logger.Info("run created",
		"run_id", run.ID,
		"room", run.RoomCategory,
		"style", run.StyleProfile,
		"stages", len(run.Plan.Stages),
	)

	err = e.withRun(ctx, run.ID, func(r *domain.StagingRun) error {
		return e.beginStage(ctx, r, 0)
	})
	if err != nil {
		return domain.RunProjection{}, err
	}

	return e.GetRunStatus(ctx, run.ID)
}

// GetRunStatus returns the caller-visible projection of a run.
func (e *Engine) GetRunStatus(ctx context.Context, id uuid.UUID) (domain.RunProjection, error) {
	run, err := e.store.Get(ctx, id)
	if err != nil {
		return domain.RunProjection{}, err
	}
	return run.Project(), nil
}

// ProviderEvent is a parsed stage outcome from the external provider, by
// callback or by poll. Result may carry inline bytes or only a reference.
type ProviderEvent struct {
	Handle string
	State  provider.JobState
	Result *provider.Result
	Reason string
}

// HandleProviderEvent applies one provider event to the run that dispatched
// the handle. Events for unknown handles return ErrUnknownJobHandle; stale
// or duplicate deliveries are absorbed as no-ops.
func (e *Engine) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	id, err := e.store.FindByJobHandle(ctx, ev.Handle)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return domain.ErrUnknownJobHandle
		}
		return err
	}

	return e.withRun(ctx, id, func(run *domain.StagingRun) error {
		return e.applyEvent(ctx, run, ev)
	})
}

// applyEvent is the single transition function. It must be invoked with the
// per-run lock held and mutates only the run it is given.
func (e *Engine) applyEvent(ctx context.Context, run *domain.StagingRun, ev ProviderEvent) error {
	if run.Status.Terminal() || ev.Handle != run.HandleAt(run.CurrentStage) {
		metrics.IncDuplicateCallbacks()
		e.logger.Info("stale provider event ignored",
			"run_id", run.ID,
			"handle", ev.Handle,
			"status", run.Status,
		)
		return nil
	}

	switch ev.State {
	case provider.JobPending:
		return nil
	case provider.JobFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "provider job failed"
		}
		e.recordAttemptFailure(ctx, run, reason)
		return nil
	case provider.JobSucceeded:
		data, err := e.resolveResult(ctx, ev.Result)
		if err != nil {
			e.recordAttemptFailure(ctx, run, "fetch result: "+err.Error())
			return nil
		}
		e.processResult(ctx, run, data)
		return nil
	default:
		return fmt.Errorf("unknown provider job state %q", ev.State)
	}
}

func (e *Engine) resolveResult(ctx context.Context, res *provider.Result) ([]byte, error) {
	if res == nil {
		return nil, errors.New("result carried no image")
	}
	if len(res.Data) > 0 {
		return res.Data, nil
	}
	if res.Ref != "" {
		return e.images.Fetch(ctx, res.Ref)
	}
	return nil, errors.New("result carried no image")
}

// beginStage moves the run to the given stage index and dispatches it with
// its plan instruction. Dispatch failures consume an attempt.
func (e *Engine) beginStage(ctx context.Context, run *domain.StagingRun, idx int) error {
	run.CurrentStage = idx
	if err := e.dispatchStage(ctx, run, run.Plan.Stages[idx].Instruction); err != nil {
		e.recordAttemptFailure(ctx, run, "dispatch: "+err.Error())
	}
	return nil
}

// dispatchStage sends the run's latest image and the given instruction to
// the provider for the current stage. An immediate result is folded straight
// into the state machine.
func (e *Engine) dispatchStage(ctx context.Context, run *domain.StagingRun, instruction string) error {
	gen := e.providers.For(run.RoomCategory)
	if gen == nil {
		return errors.New("no provider configured for room category " + string(run.RoomCategory))
	}

	imgData, err := e.images.Fetch(ctx, run.LatestImage.URL)
	if err != nil {
		return fmt.Errorf("fetch input image: %w", err)
	}

	started := time.Now()
	out, err := gen.Dispatch(ctx, provider.DispatchRequest{
		Image:       run.LatestImage,
		ImageData:   imgData,
		MIMEType:    http.DetectContentType(imgData),
		Instruction: instruction,
	})
	metrics.ObserveDispatchDuration(time.Since(started))
	if err != nil {
		return err
	}

	run.SetHandle(run.CurrentStage, out.Handle)
	if run.Status == domain.RunPending {
		run.Status = domain.RunRunning
		metrics.IncRunStatus(domain.RunRunning)
	}

	e.logger.Info("stage dispatched",
		"run_id", run.ID,
		"stage", run.CurrentStage,
		"kind", run.CurrentStageKind(),
		"handle", out.Handle,
	)

	if out.Immediate != nil {
		data, err := e.resolveResult(ctx, out.Immediate)
		if err != nil {
			e.recordAttemptFailure(ctx, run, "fetch result: "+err.Error())
			return nil
		}
		e.processResult(ctx, run, data)
	}
	return nil
}

// processResult validates a stage output and advances, retries, or fails the
// run according to the attempt count already on record.
func (e *Engine) processResult(ctx context.Context, run *domain.StagingRun, resultData []byte) {
	idx := run.CurrentStage
	stage := run.Plan.Stages[idx]
	attempt := run.AttemptsAt(idx)

	before, err := e.images.Fetch(ctx, run.LatestImage.URL)
	if err != nil {
		e.recordAttemptFailure(ctx, run, "fetch input image: "+err.Error())
		return
	}

	started := time.Now()
	verdict, err := e.validator.Validate(ctx, before, resultData, stage)
	metrics.ObserveValidationDuration(time.Since(started))
	if err != nil {
		e.recordAttemptFailure(ctx, run, "validate: "+err.Error())
		return
	}

	resultRef, err := e.storeResultImage(ctx, run, idx, attempt, resultData)
	if err != nil {
		e.recordAttemptFailure(ctx, run, "store result image: "+err.Error())
		return
	}

	if verdict.Passed {
		run.StageResults = append(run.StageResults, domain.StageResult{
			StageIndex:       idx,
			StageKind:        stage.Kind,
			Succeeded:        true,
			ItemsAdded:       verdict.ItemCountEstimate,
			ValidationPassed: true,
			RetryCount:       attempt,
			ResultImage:      resultRef,
			CreatedAt:        time.Now().UTC(),
		})
		run.LatestImage = *resultRef

		if idx+1 < len(run.Plan.Stages) {
			metrics.IncStageAttempt(metrics.AttemptAdvanced)
			e.logger.Info("stage passed",
				"run_id", run.ID,
				"stage", idx,
				"kind", stage.Kind,
				"items", verdict.ItemCountEstimate,
			)
			_ = e.beginStage(ctx, run, idx+1)
			return
		}

		run.Status = domain.RunCompleted
		metrics.IncRunStatus(domain.RunCompleted)
		metrics.IncStageAttempt(metrics.AttemptCompleted)
		e.logger.Info("run completed", "run_id", run.ID, "stages", len(run.Plan.Stages))
		return
	}

	for _, v := range verdict.Violations {
		metrics.IncValidationViolation(v)
	}

	if attempt+1 < maxStageAttempts {
		run.StageResults = append(run.StageResults, domain.StageResult{
			StageIndex:       idx,
			StageKind:        stage.Kind,
			Succeeded:        true,
			ItemsAdded:       verdict.ItemCountEstimate,
			ValidationPassed: false,
			Violations:       verdict.Violations,
			RetryCount:       attempt,
			ResultImage:      resultRef,
			CreatedAt:        time.Now().UTC(),
		})
		metrics.IncStageRetries()
		metrics.IncStageAttempt(metrics.AttemptRetried)
		e.logger.Warn("stage failed validation, retrying",
			"run_id", run.ID,
			"stage", idx,
			"kind", stage.Kind,
			"violations", verdict.Violations,
		)

		corrected := CorrectiveInstruction(stage.Instruction, verdict.Violations)
		if err := e.dispatchStage(ctx, run, corrected); err != nil {
			e.recordAttemptFailure(ctx, run, "dispatch: "+err.Error())
		}
		return
	}

	run.StageResults = append(run.StageResults, domain.StageResult{
		StageIndex:       idx,
		StageKind:        stage.Kind,
		Succeeded:        false,
		ItemsAdded:       verdict.ItemCountEstimate,
		ValidationPassed: false,
		Violations:       verdict.Violations,
		RetryCount:       attempt,
		CreatedAt:        time.Now().UTC(),
	})
	e.failRun(run, fmt.Sprintf("stage %d (%s) failed validation after retry: %s",
		idx, stage.Kind, joinViolations(verdict.Violations)))
}

// recordAttemptFailure logs a transport-level attempt failure. The first
// failure on a stage earns one plain re-dispatch; a second is run-fatal.
func (e *Engine) recordAttemptFailure(ctx context.Context, run *domain.StagingRun, reason string) {
	idx := run.CurrentStage
	stage := run.Plan.Stages[idx]
	attempt := run.AttemptsAt(idx)

	run.StageResults = append(run.StageResults, domain.StageResult{
		StageIndex: idx,
		StageKind:  stage.Kind,
		Succeeded:  false,
		RetryCount: attempt,
		CreatedAt:  time.Now().UTC(),
	})

	if attempt+1 < maxStageAttempts {
		metrics.IncStageRetries()
		metrics.IncStageAttempt(metrics.AttemptRetried)
		e.logger.Warn("stage attempt failed, retrying",
			"run_id", run.ID,
			"stage", idx,
			"kind", stage.Kind,
			"reason", reason,
		)
		if err := e.dispatchStage(ctx, run, stage.Instruction); err != nil {
			e.recordAttemptFailure(ctx, run, "dispatch: "+err.Error())
		}
		return
	}

	e.failRun(run, fmt.Sprintf("stage %d (%s) failed after retry: %s", idx, stage.Kind, reason))
}

func (e *Engine) failRun(run *domain.StagingRun, msg string) {
	run.Status = domain.RunFailed
	run.ErrorMessage = msg
	metrics.IncRunStatus(domain.RunFailed)
	metrics.IncStageAttempt(metrics.AttemptFatal)
	e.logger.Error("run failed", "run_id", run.ID, "error", msg)
}

// storeResultImage persists a validated stage output and returns its stable
// reference. A storage failure must surface to the caller: losing the result
// image means later stages would be generated from a stale input, so the
// attempt cannot count as passed.
func (e *Engine) storeResultImage(ctx context.Context, run *domain.StagingRun, idx, attempt int, data []byte) (*domain.ImageRef, error) {
	mime := http.DetectContentType(data)
	key := fmt.Sprintf("runs/%s/stage-%d-attempt-%d%s", run.ID, idx, attempt, extensionFor(mime))

	url, err := e.images.Store(ctx, key, data, mime)
	if err != nil {
		return nil, err
	}
	return &domain.ImageRef{
		URL:    url,
		Width:  run.LatestImage.Width,
		Height: run.LatestImage.Height,
	}, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".img"
	}
}

func joinViolations(violations []domain.Violation) string {
	if len(violations) == 0 {
		return "no violations recorded"
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// withRun wraps store.Update so a transition that turns the run terminal
// triggers webhook notification after the lock is released.
func (e *Engine) withRun(ctx context.Context, id uuid.UUID, fn func(run *domain.StagingRun) error) error {
	var notice *TerminalNotice

	err := e.store.Update(ctx, id, func(run *domain.StagingRun) error {
		wasTerminal := run.Status.Terminal()
		if err := fn(run); err != nil {
			return err
		}
		if !wasTerminal && run.Status.Terminal() && run.WebhookURL != "" {
			n := TerminalNotice{
				RunID:        run.ID,
				Status:       run.Status,
				ErrorMessage: run.ErrorMessage,
				FinishedAt:   time.Now().UTC(),
				URL:          run.WebhookURL,
			}
			if run.Status == domain.RunCompleted {
				img := run.LatestImage
				n.FinalImage = &img
			}
			notice = &n
		}
		return nil
	})
	if err != nil {
		return err
	}

	if notice != nil && e.notifier != nil {
		e.notifier.Deliver(ctx, *notice)
	}
	return nil
}

// PollRun drives one run forward by one observation: re-dispatching a stage
// that was never sent, or polling the in-flight job and applying its status.
// A transport error on the poll itself does not consume a stage attempt.
func (e *Engine) PollRun(ctx context.Context, id uuid.UUID) error {
	var pollErr error
	err := e.withRun(ctx, id, func(run *domain.StagingRun) error {
		if run.Status.Terminal() {
			return nil
		}

		if run.CurrentStage < 0 {
			return e.beginStage(ctx, run, 0)
		}
		handle := run.HandleAt(run.CurrentStage)
		if handle == "" {
			if err := e.dispatchStage(ctx, run, run.Plan.Stages[run.CurrentStage].Instruction); err != nil {
				e.recordAttemptFailure(ctx, run, "dispatch: "+err.Error())
			}
			return nil
		}

		gen := e.providers.For(run.RoomCategory)
		if gen == nil {
			pollErr = errors.New("no provider configured for room category " + string(run.RoomCategory))
			return nil
		}
		status, err := gen.Poll(ctx, handle)
		if err != nil {
			pollErr = err
			e.logger.Warn("poll failed", "run_id", run.ID, "handle", handle, "error", err)
			return nil
		}
		return e.applyEvent(ctx, run, ProviderEvent{
			Handle: handle,
			State:  status.State,
			Result: status.Result,
			Reason: status.Reason,
		})
	})
	if err != nil {
		return err
	}
	return pollErr
}

// PollOnce claims a batch of stale non-terminal runs and polls each. It
// returns the number of runs it touched.
func (e *Engine) PollOnce(ctx context.Context) (int, error) {
	ids, err := e.store.ClaimPollable(ctx, e.reclaimAfter, e.pollBatch)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := e.PollRun(ctx, id); err != nil {
			e.logger.Warn("poll run failed", "run_id", id, "error", err)
		}
	}
	return len(ids), nil
}

// RunToCompletion drives a run synchronously until it reaches a terminal
// state. The poll budget bounds ticks without observable progress; budget
// exhaustion charges the active stage with a timeout attempt, so the run
// still terminates through the ordinary retry policy.
func (e *Engine) RunToCompletion(ctx context.Context, id uuid.UUID) (domain.RunProjection, error) {
	type progress struct {
		stage   int
		results int
	}
	var last progress
	ticks := 0

	for {
		run, err := e.store.Get(ctx, id)
		if err != nil {
			return domain.RunProjection{}, err
		}
		if run.Status.Terminal() {
			return run.Project(), nil
		}

		now := progress{stage: run.CurrentStage, results: len(run.StageResults)}
		if now != last {
			last = now
			ticks = 0
		}

		if ticks >= e.pollBudget {
			ticks = 0
			err := e.withRun(ctx, id, func(r *domain.StagingRun) error {
				if r.Status.Terminal() {
					return nil
				}
				e.recordAttemptFailure(ctx, r, "timed out waiting for provider job")
				return nil
			})
			if err != nil {
				return domain.RunProjection{}, err
			}
			continue
		}

		if err := e.PollRun(ctx, id); err != nil {
			e.logger.Warn("blocking poll failed", "run_id", id, "error", err)
		}
		ticks++

		timer := time.NewTimer(e.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.RunProjection{}, ctx.Err()
		case <-timer.C:
		}
	}
}
