package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindImage    JobKind = "image"
	JobKindCarousel JobKind = "carousel"
	JobKindVideo    JobKind = "video"
)

// Valid reports whether the kind is one of the supported categories.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindImage, JobKindCarousel, JobKindVideo:
		return true
	}
	return false
}

// Composite reports whether jobs of this kind run as an ordered step
// pipeline rather than a single provider call.
func (k JobKind) Composite() bool {
	return k == JobKindVideo
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusBlocked    JobStatus = "blocked"
)

// Terminal reports whether the status admits no further worker transitions.
// Terminal jobs only change through the operator unblock escape hatch.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusCanceled:
		return true
	}
	return false
}

// DefaultMaxAttempts bounds the retry budget for newly enqueued jobs.
const DefaultMaxAttempts = 3

// MaxErrorMessageLen caps persisted error messages so a flapping provider
// cannot grow job rows without bound.
const MaxErrorMessageLen = 2000

// Job is one unit of requested media generation tracked through the queue.
type Job struct {
	ID             uuid.UUID
	TenantID       string
	UserID         string
	OrderID        *string
	Kind           JobKind
	Status         JobStatus
	Payload        []byte
	Result         []byte
	Attempts       int
	MaxAttempts    int
	IdempotencyKey string
	LockedBy       *string
	LeaseExpiresAt *time.Time
	NextRunAt      time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TruncateError bounds an error message to MaxErrorMessageLen runes.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLen {
		return msg
	}
	return string(runes[:MaxErrorMessageLen])
}
