// Package progress maintains the append-only job event log and derives
// progress snapshots from live step rows rather than cached counters.
package progress

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
)

// Notifier pushes a hint that a job changed. Implementations must be safe
// for concurrent use; a nil Notifier disables push and leaves polling.
type Notifier interface {
	Notify(ctx context.Context, jobID uuid.UUID, eventType domain.EventType) error
}

// Publisher appends events and serves progress snapshots.
type Publisher struct {
	events   domain.EventStore
	jobs     domain.JobStore
	steps    domain.StepStore
	notifier Notifier
	log      zerolog.Logger
}

// NewPublisher wires the publisher; notifier may be nil.
func NewPublisher(events domain.EventStore, jobs domain.JobStore, steps domain.StepStore, notifier Notifier, log zerolog.Logger) *Publisher {
	return &Publisher{events: events, jobs: jobs, steps: steps, notifier: notifier, log: log}
}

// Publish appends one event and fans out the push hint. A failed push never
// fails the publish: consumers fall back to polling.
func (p *Publisher) Publish(ctx context.Context, jobID uuid.UUID, stepID *uuid.UUID, eventType domain.EventType, message string, metadata map[string]any) {
	var raw []byte
	if len(metadata) > 0 {
		raw, _ = json.Marshal(metadata)
	}
	event := &domain.JobEvent{
		JobID:     jobID,
		StepID:    stepID,
		EventType: eventType,
		Message:   message,
		Metadata:  raw,
	}
	if err := p.events.Append(ctx, event); err != nil {
		p.log.Error().Err(err).Str("job_id", jobID.String()).Str("event_type", string(eventType)).Msg("progress: append event failed")
		return
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, jobID, eventType); err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID.String()).Msg("progress: push notify failed")
		}
	}
}

// StepState is the per-step slice of a snapshot.
type StepState struct {
	ID        uuid.UUID         `json:"id"`
	StepType  domain.StepType   `json:"step_type"`
	StepIndex int               `json:"step_index"`
	Status    domain.StepStatus `json:"status"`
	Attempt   int               `json:"attempt"`
	Error     string            `json:"error,omitempty"`
}

// Snapshot is the derived progress view of one job.
type Snapshot struct {
	JobID           uuid.UUID          `json:"job_id"`
	Kind            domain.JobKind     `json:"kind"`
	Status          domain.JobStatus   `json:"status"`
	Attempts        int                `json:"attempts"`
	MaxAttempts     int                `json:"max_attempts"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	PercentComplete int                `json:"percent_complete"`
	ActiveStep      *StepState         `json:"active_step,omitempty"`
	Steps           []StepState        `json:"steps,omitempty"`
	RecentEvents    []domain.JobEvent  `json:"recent_events,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Snapshot recomputes step counts and percent complete from current step
// rows, so it stays consistent with the pipeline even if an event was lost.
func (p *Publisher) Snapshot(ctx context.Context, jobID uuid.UUID) (*Snapshot, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return p.snapshotFor(ctx, job)
}

// SnapshotForTenant is the caller-scoped variant.
func (p *Publisher) SnapshotForTenant(ctx context.Context, tenantID string, jobID uuid.UUID) (*Snapshot, error) {
	job, err := p.jobs.GetForTenant(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	return p.snapshotFor(ctx, job)
}

func (p *Publisher) snapshotFor(ctx context.Context, job *domain.Job) (*Snapshot, error) {
	snap := &Snapshot{
		JobID:        job.ID,
		Kind:         job.Kind,
		Status:       job.Status,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}

	if job.Kind.Composite() {
		steps, err := p.steps.ListByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		snap.PercentComplete = PercentComplete(steps)
		for _, step := range steps {
			state := StepState{
				ID:        step.ID,
				StepType:  step.StepType,
				StepIndex: step.StepIndex,
				Status:    step.Status,
				Attempt:   step.Attempt,
				Error:     step.Error,
			}
			snap.Steps = append(snap.Steps, state)
		}
		if active := ActiveStep(steps); active != nil {
			state := StepState{
				ID:        active.ID,
				StepType:  active.StepType,
				StepIndex: active.StepIndex,
				Status:    active.Status,
				Attempt:   active.Attempt,
				Error:     active.Error,
			}
			snap.ActiveStep = &state
		}
	} else if job.Status == domain.JobStatusDone {
		snap.PercentComplete = 100
	}

	events, err := p.events.ListRecent(ctx, job.ID, domain.DefaultEventWindow)
	if err != nil {
		return nil, err
	}
	snap.RecentEvents = events
	return snap, nil
}

// PercentComplete derives completion from step rows: settled steps over
// total, rounded to the nearest integer. 100 requires every step settled.
func PercentComplete(steps []domain.JobStep) int {
	if len(steps) == 0 {
		return 0
	}
	settled := 0
	for _, s := range steps {
		if s.Status.Settled() {
			settled++
		}
	}
	return int(math.Round(float64(settled) / float64(len(steps)) * 100))
}

// ActiveStep is the first running step, or failing that the first queued one.
func ActiveStep(steps []domain.JobStep) *domain.JobStep {
	for i := range steps {
		if steps[i].Status == domain.StepStatusRunning {
			return &steps[i]
		}
	}
	for i := range steps {
		if steps[i].Status == domain.StepStatusQueued {
			return &steps[i]
		}
	}
	return nil
}
