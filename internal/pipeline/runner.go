package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/providers"
	"github.com/pawpress/server/internal/scorer"
)

// Config bounds each step's external call.
type Config struct {
	MinCallTimeout time.Duration
	MaxCallTimeout time.Duration
}

// Runner drives one composite job's steps in ascending step_index order.
// The costly external part of every step sits behind the Invoker contract,
// so failures are attributable and retriable at sub-job granularity.
type Runner struct {
	jobs     domain.JobStore
	steps    domain.StepStore
	selector *scorer.Selector
	invoker  providers.Invoker
	credits  CreditReserver
	progress ProgressSink
	cfg      Config
	log      zerolog.Logger
}

// ProgressSink decouples the runner from the event publisher.
type ProgressSink interface {
	Publish(ctx context.Context, jobID uuid.UUID, stepID *uuid.UUID, eventType domain.EventType, message string, metadata map[string]any)
}

// CreditReserver gates each external call on the tenant's credit balance.
// quota.Ledger satisfies it.
type CreditReserver interface {
	Reserve(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error
	Release(ctx context.Context, tenantID string, res domain.QuotaResource, amount int)
}

// NewRunner wires a step runner.
func NewRunner(jobs domain.JobStore, steps domain.StepStore, selector *scorer.Selector, invoker providers.Invoker, credits CreditReserver, progress ProgressSink, cfg Config, log zerolog.Logger) *Runner {
	if cfg.MinCallTimeout <= 0 {
		cfg.MinCallTimeout = 30 * time.Second
	}
	if cfg.MaxCallTimeout <= 0 {
		cfg.MaxCallTimeout = 10 * time.Minute
	}
	return &Runner{jobs: jobs, steps: steps, selector: selector, invoker: invoker, credits: credits, progress: progress, cfg: cfg, log: log}
}

// Run executes the job's remaining steps sequentially and returns the final
// delivery output once every step settled. Cancellation is re-checked before
// each step starts and again before its result is persisted, so canceled
// work is never silently finished.
func (r *Runner) Run(ctx context.Context, job *domain.Job) ([]byte, error) {
	var payload domain.VideoPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode video payload: %w", err)
	}

	for {
		steps, err := r.steps.ListByJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("composite job %s has no planned steps", job.ID)
		}

		next, err := NextRunnable(steps)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return finalOutput(steps), nil
		}

		if err := r.ensureNotCanceled(ctx, job.ID); err != nil {
			return nil, err
		}
		if err := r.runStep(ctx, job, &payload, next); err != nil {
			return nil, err
		}
	}
}

func (r *Runner) runStep(ctx context.Context, job *domain.Job, payload *domain.VideoPayload, step *domain.JobStep) error {
	if err := r.steps.MarkRunning(ctx, step.ID); err != nil {
		return fmt.Errorf("mark step running: %w", err)
	}
	r.progress.Publish(ctx, job.ID, &step.ID, domain.EventStepStarted,
		fmt.Sprintf("step %d (%s) started", step.StepIndex, step.StepType), nil)

	result, providerID, elapsed, expected, err := r.executeStep(ctx, job, payload, step)

	if cancelErr := r.ensureNotCanceled(ctx, job.ID); cancelErr != nil {
		// The job was canceled mid-call: drop the result on the floor
		// rather than completing canceled work, and return the step to the
		// queue so an unblock can resume the pipeline from it.
		if requeueErr := r.steps.Requeue(ctx, step.ID); requeueErr != nil {
			r.log.Error().Err(requeueErr).Str("step_id", step.ID.String()).Msg("pipeline: requeue canceled step errored")
		}
		return cancelErr
	}

	if err != nil {
		msg := domain.TruncateError(err.Error())
		if markErr := r.steps.MarkFailed(ctx, step.ID, msg); markErr != nil {
			r.log.Error().Err(markErr).Str("step_id", step.ID.String()).Msg("pipeline: mark step failed errored")
		}
		r.recordOutcome(ctx, providerID, payload, step, false, elapsed, expected)
		r.progress.Publish(ctx, job.ID, &step.ID, domain.EventStepFailed, msg, map[string]any{"provider": providerID})
		return fmt.Errorf("%w: step %d (%s): %v", ErrStepFailed, step.StepIndex, step.StepType, err)
	}

	output, marshalErr := json.Marshal(result.Metadata)
	if marshalErr != nil {
		output = nil
	}
	out := map[string]any{"asset_key": result.AssetKey, "format": result.Format, "provider": providerID}
	if len(output) > 0 {
		out["metadata"] = json.RawMessage(output)
	}
	encoded, _ := json.Marshal(out)
	if err := r.steps.MarkCompleted(ctx, step.ID, encoded); err != nil {
		return fmt.Errorf("mark step completed: %w", err)
	}
	r.recordOutcome(ctx, providerID, payload, step, true, elapsed, expected)
	r.progress.Publish(ctx, job.ID, &step.ID, domain.EventStepCompleted,
		fmt.Sprintf("step %d (%s) completed", step.StepIndex, step.StepType),
		map[string]any{"provider": providerID, "asset_key": result.AssetKey})
	return nil
}

// executeStep resolves a back-end (assembly steps run internally), reserves
// the call's credit cost, and makes the single external call under a
// bounded timeout.
func (r *Runner) executeStep(ctx context.Context, job *domain.Job, payload *domain.VideoPayload, step *domain.JobStep) (providers.Result, string, time.Duration, time.Duration, error) {
	providerID := providers.InternalProviderID
	expected := r.cfg.MinCallTimeout
	format := stepFormat(step.StepType, payload)
	creditUnits := 0

	if modality, external := stepModality(step.StepType); external {
		decision, err := r.selector.Select(ctx, scorer.Request{
			UseCase:         string(step.StepType),
			Modality:        modality,
			Format:          format,
			Quality:         payload.Quality,
			Resolution:      resolutionFor(payload),
			DurationSeconds: payload.DurationSeconds,
			BudgetUnits:     payload.BudgetUnits,
		})
		if err != nil {
			return providers.Result{}, providerID, 0, expected, err
		}
		if !decision.OK {
			return providers.Result{}, providerID, 0, expected,
				fmt.Errorf("no viable provider for %s: %v", step.StepType, decision.Suggestions)
		}
		providerID = decision.Selection.ProviderID
		if decision.Selection.ETASeconds > 0 {
			expected = time.Duration(decision.Selection.ETASeconds * float64(time.Second))
		}
		creditUnits = int(math.Ceil(decision.Selection.CostUnits))
		if r.credits != nil && creditUnits > 0 {
			if err := r.credits.Reserve(ctx, job.TenantID, domain.QuotaResourceCredits, creditUnits); err != nil {
				return providers.Result{}, providerID, 0, expected, err
			}
		}
	}

	timeout := clampDuration(6*expected, r.cfg.MinCallTimeout, r.cfg.MaxCallTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var input map[string]any
	if len(step.Input) > 0 {
		_ = json.Unmarshal(step.Input, &input)
	}

	start := time.Now()
	result, err := r.invoker.Invoke(callCtx, providers.Call{
		ProviderID: providerID,
		JobID:      job.ID,
		StepType:   step.StepType,
		Kind:       job.Kind,
		Format:     format,
		Input:      input,
	})
	if err != nil && r.credits != nil && creditUnits > 0 {
		r.credits.Release(ctx, job.TenantID, domain.QuotaResourceCredits, creditUnits)
	}
	return result, providerID, time.Since(start), expected, err
}

func (r *Runner) recordOutcome(ctx context.Context, providerID string, payload *domain.VideoPayload, step *domain.JobStep, success bool, elapsed, expected time.Duration) {
	if providerID == providers.InternalProviderID || providerID == "" {
		return
	}
	req := scorer.Request{UseCase: string(step.StepType), Format: stepFormat(step.StepType, payload)}
	if err := r.selector.RecordOutcome(ctx, providerID, req, success, elapsed, expected); err != nil {
		r.log.Warn().Err(err).Str("provider", providerID).Msg("pipeline: outcome feedback failed")
	}
}

func (r *Runner) ensureNotCanceled(ctx context.Context, jobID uuid.UUID) error {
	status, err := r.jobs.Status(ctx, jobID)
	if err != nil {
		return fmt.Errorf("check job status: %w", err)
	}
	if status == domain.JobStatusCanceled {
		return domain.ErrJobCanceled
	}
	return nil
}

func stepModality(t domain.StepType) (domain.Modality, bool) {
	switch t {
	case domain.StepTypeGenKeyframe:
		return domain.ModalityImage, true
	case domain.StepTypeAnimateClip:
		return domain.ModalityVideo, true
	case domain.StepTypeVoiceover, domain.StepTypeMusic:
		return domain.ModalityAudio, true
	}
	return "", false
}

func stepFormat(t domain.StepType, payload *domain.VideoPayload) string {
	switch t {
	case domain.StepTypeGenKeyframe:
		return "png"
	case domain.StepTypeVoiceover, domain.StepTypeMusic, domain.StepTypeMixAudio:
		return "mp3"
	default:
		if payload != nil && payload.Format != "" {
			return payload.Format
		}
		return "mp4"
	}
}

func resolutionFor(payload *domain.VideoPayload) string {
	if payload.Quality == "premium" {
		return "1080p"
	}
	return "720p"
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func finalOutput(steps []domain.JobStep) []byte {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Status == domain.StepStatusCompleted && len(steps[i].Output) > 0 {
			return steps[i].Output
		}
	}
	return nil
}

// IsStepFailure reports whether an error from Run stems from a failed step
// rather than infrastructure.
func IsStepFailure(err error) bool {
	return errors.Is(err, ErrStepFailed)
}
