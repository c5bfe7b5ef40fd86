package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType labels entries in the append-only job event log.
type EventType string

const (
	EventJobEnqueued   EventType = "job_enqueued"
	EventJobClaimed    EventType = "job_claimed"
	EventJobCompleted  EventType = "job_completed"
	EventJobRetrying   EventType = "job_retrying"
	EventJobFailed     EventType = "job_failed"
	EventJobCanceled   EventType = "job_canceled"
	EventJobUnblocked  EventType = "job_unblocked"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
	EventStepRetried   EventType = "step_retried"
)

// DefaultEventWindow bounds how many recent events consumers read back.
const DefaultEventWindow = 50

// JobEvent is an append-only record; rows are never mutated or deleted.
type JobEvent struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	StepID    *uuid.UUID
	EventType EventType
	Message   string
	Metadata  []byte
	CreatedAt time.Time
}
