package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepType enumerates the sub-tasks of a composite video pipeline.
type StepType string

const (
	StepTypeGenKeyframe StepType = "gen_keyframe"
	StepTypeAnimateClip StepType = "animate_clip"
	StepTypeVoiceover   StepType = "voiceover"
	StepTypeMusic       StepType = "music"
	StepTypeMixAudio    StepType = "mix_audio"
	StepTypeConcatClips StepType = "concat_clips"
	StepTypeDeliver     StepType = "deliver"
)

// StepStatus enumerates step lifecycle states.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusQueued    StepStatus = "queued"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Settled reports whether the step no longer blocks its successor.
func (s StepStatus) Settled() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// JobStep is an ordered sub-task of a composite job. Steps execute strictly
// in ascending StepIndex; at most one step per job runs at any instant.
type JobStep struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	StepType   StepType
	StepIndex  int
	Status     StepStatus
	Attempt    int
	Input      []byte
	Output     []byte
	Error      string
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
