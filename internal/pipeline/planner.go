// Package pipeline plans and drives the ordered step graph of composite
// video jobs. Steps run strictly sequentially per job and are independently
// retryable.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
)

// Planner expands a composite job into its ordered step rows.
type Planner struct{}

// NewPlanner returns the default video planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan builds the step rows for a job. Non-composite kinds plan nothing.
func (p *Planner) Plan(job *domain.Job, payload domain.Payload) ([]domain.JobStep, error) {
	if !job.Kind.Composite() {
		return nil, nil
	}
	video, ok := payload.(*domain.VideoPayload)
	if !ok {
		return nil, fmt.Errorf("composite job %s has no video payload", job.ID)
	}

	types := []domain.StepType{
		domain.StepTypeGenKeyframe,
		domain.StepTypeAnimateClip,
	}
	if video.Voiceover {
		types = append(types, domain.StepTypeVoiceover)
	}
	if video.Music {
		types = append(types, domain.StepTypeMusic)
	}
	if video.Voiceover || video.Music {
		types = append(types, domain.StepTypeMixAudio)
	}
	types = append(types, domain.StepTypeConcatClips, domain.StepTypeDeliver)

	input, err := json.Marshal(video.Document())
	if err != nil {
		return nil, fmt.Errorf("encode step input: %w", err)
	}

	steps := make([]domain.JobStep, 0, len(types))
	for i, stepType := range types {
		steps = append(steps, domain.JobStep{
			ID:        uuid.New(),
			JobID:     job.ID,
			StepType:  stepType,
			StepIndex: i,
			Status:    domain.StepStatusPending,
			Input:     input,
		})
	}
	return steps, nil
}
