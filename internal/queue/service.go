// Package queue admits, claims, and retries media generation jobs. The
// queue is durable: jobs live in the relational store and the only
// concurrency-control primitive is the atomic row-level claim, so any number
// of worker processes can poll in parallel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/idempotency"
	"github.com/pawpress/server/internal/pipeline"
	"github.com/pawpress/server/internal/quota"
)

// Owner identifies who a job is admitted for. Region is annotation only and
// never participates in the idempotency fingerprint.
type Owner struct {
	TenantID string
	UserID   string
	OrderID  string
	Region   string
}

// ProgressSink decouples the service from the event publisher.
type ProgressSink interface {
	Publish(ctx context.Context, jobID uuid.UUID, stepID *uuid.UUID, eventType domain.EventType, message string, metadata map[string]any)
}

// Service handles job admission and the operator escape hatches.
type Service struct {
	jobs     domain.JobStore
	steps    domain.StepStore
	ledger   *quota.Ledger
	planner  *pipeline.Planner
	progress ProgressSink
	log      zerolog.Logger
}

// NewService wires the admission service.
func NewService(jobs domain.JobStore, steps domain.StepStore, ledger *quota.Ledger, planner *pipeline.Planner, progress ProgressSink, log zerolog.Logger) *Service {
	return &Service{jobs: jobs, steps: steps, ledger: ledger, planner: planner, progress: progress, log: log}
}

// Enqueue validates, fingerprints, and admits one job. A retried identical
// request maps onto the already stored job: the bool result reports whether
// a new row was created. Quota is reserved before the insert and released
// again when the insert turns out to be a duplicate, so the existing job is
// never paid for twice.
func (s *Service) Enqueue(ctx context.Context, owner Owner, kind domain.JobKind, raw json.RawMessage) (*domain.Job, bool, error) {
	if owner.TenantID == "" {
		return nil, false, domain.ErrMissingTenant
	}
	payload, err := domain.ParsePayload(kind, raw)
	if err != nil {
		return nil, false, err
	}

	doc := payload.Document()
	key := idempotency.Key(idempotency.Request{
		BrandID: owner.TenantID,
		OrderID: owner.OrderID,
		UserID:  owner.UserID,
		JobType: string(kind),
		Payload: doc,
	})

	res := quota.ResourceForKind(kind)
	amount := quota.AmountForKind(kind, payload)
	if err := s.ledger.Reserve(ctx, owner.TenantID, res, amount); err != nil {
		return nil, false, err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		s.ledger.Release(ctx, owner.TenantID, res, amount)
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}

	job := &domain.Job{
		ID:             uuid.New(),
		TenantID:       owner.TenantID,
		UserID:         owner.UserID,
		Kind:           kind,
		Payload:        encoded,
		MaxAttempts:    domain.DefaultMaxAttempts,
		IdempotencyKey: key,
	}
	if owner.OrderID != "" {
		job.OrderID = &owner.OrderID
	}

	stored, created, err := s.jobs.InsertIdempotent(ctx, job)
	if err != nil {
		s.ledger.Release(ctx, owner.TenantID, res, amount)
		return nil, false, err
	}
	if !created {
		// Lost the race or a genuine client retry: the stored job already
		// consumed its quota.
		s.ledger.Release(ctx, owner.TenantID, res, amount)
		return stored, false, nil
	}

	if kind.Composite() {
		steps, err := s.planner.Plan(stored, payload)
		if err != nil {
			return nil, false, fmt.Errorf("plan steps: %w", err)
		}
		if err := s.steps.InsertPlan(ctx, steps); err != nil {
			return nil, false, fmt.Errorf("persist step plan: %w", err)
		}
	}

	meta := map[string]any{"idempotency_key": key}
	if owner.Region != "" {
		meta["region"] = owner.Region
	}
	s.progress.Publish(ctx, stored.ID, nil, domain.EventJobEnqueued,
		fmt.Sprintf("%s job enqueued", kind), meta)
	s.log.Info().
		Str("job_id", stored.ID.String()).
		Str("tenant_id", owner.TenantID).
		Str("kind", string(kind)).
		Msg("queue: job enqueued")
	return stored, true, nil
}

// Unblock resets the caller's jobs to queued with attempts=0 and a cleared
// error. It is strictly owner scoped: ids belonging to other tenants are
// ignored and absent from the returned slice. This is an operator escape
// hatch, never an automatic retry path.
func (s *Service) Unblock(ctx context.Context, tenantID string, ids []uuid.UUID) ([]uuid.UUID, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if len(ids) == 0 {
		return nil, nil
	}
	updated, err := s.jobs.Unblock(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range updated {
		s.progress.Publish(ctx, id, nil, domain.EventJobUnblocked, "job reset by operator", nil)
	}
	s.log.Info().Str("tenant_id", tenantID).Int("requested", len(ids)).Int("updated", len(updated)).Msg("queue: jobs unblocked")
	return updated, nil
}

// Cancel marks a non-terminal job canceled. The active worker observes the
// status flip at its next checkpoint and drops any in-flight result.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID) error {
	if tenantID == "" {
		return domain.ErrMissingTenant
	}
	canceled, err := s.jobs.Cancel(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !canceled {
		// Either not found for this tenant or already terminal.
		job, getErr := s.jobs.GetForTenant(ctx, tenantID, id)
		if getErr != nil {
			return getErr
		}
		if job.Status.Terminal() {
			return domain.ErrJobTerminal
		}
		return nil
	}
	s.progress.Publish(ctx, id, nil, domain.EventJobCanceled, "job canceled", nil)
	return nil
}

// RetryStep resets one failed step of the caller's job and requeues the job
// so the step runner resumes from that point. Completed steps are never
// re-executed.
func (s *Service) RetryStep(ctx context.Context, tenantID string, jobID, stepID uuid.UUID) error {
	job, err := s.jobs.GetForTenant(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	step, err := s.steps.Get(ctx, stepID)
	if err != nil {
		return err
	}
	if step.JobID != job.ID {
		return domain.ErrNotFound
	}
	if step.Status == domain.StepStatusCompleted || step.Status == domain.StepStatusRunning {
		return fmt.Errorf("%w: step is %s", domain.ErrStepNotRetryable, step.Status)
	}
	if err := s.steps.ResetForRetry(ctx, stepID); err != nil {
		return err
	}
	if _, err := s.jobs.Unblock(ctx, tenantID, []uuid.UUID{jobID}); err != nil {
		return fmt.Errorf("requeue job after step retry: %w", err)
	}
	s.progress.Publish(ctx, jobID, &stepID, domain.EventStepRetried,
		fmt.Sprintf("step %d (%s) reset for retry", step.StepIndex, step.StepType), nil)
	return nil
}

// IsAdmissionError reports whether an enqueue failure is the caller's fault
// rather than an infrastructure fault.
func IsAdmissionError(err error) bool {
	return errors.Is(err, domain.ErrInvalidKind) ||
		errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrMissingTenant) ||
		errors.Is(err, domain.ErrQuotaExceeded)
}
