package pipeline

import (
	"fmt"

	"github.com/pawpress/server/internal/domain"
)

// NextRunnable returns the step that may enter running now: the first
// unsettled step, provided its predecessor is completed or skipped. A nil
// step with a nil error means the pipeline is finished; a failed step
// surfaces as ErrStepFailed.
func NextRunnable(steps []domain.JobStep) (*domain.JobStep, error) {
	for i := range steps {
		step := &steps[i]
		switch step.Status {
		case domain.StepStatusCompleted, domain.StepStatusSkipped:
			continue
		case domain.StepStatusFailed:
			return nil, fmt.Errorf("%w: step %d (%s)", ErrStepFailed, step.StepIndex, step.StepType)
		case domain.StepStatusRunning:
			return nil, fmt.Errorf("%w: step %d already running", ErrPipelineBusy, step.StepIndex)
		case domain.StepStatusPending, domain.StepStatusQueued:
			if i > 0 && !steps[i-1].Status.Settled() {
				return nil, fmt.Errorf("%w: step %d awaits predecessor", ErrPipelineBusy, step.StepIndex)
			}
			return step, nil
		default:
			return nil, fmt.Errorf("unknown step status %q", step.Status)
		}
	}
	return nil, nil
}

// Finished reports whether every step settled.
func Finished(steps []domain.JobStep) bool {
	for _, s := range steps {
		if !s.Status.Settled() {
			return false
		}
	}
	return len(steps) > 0
}
