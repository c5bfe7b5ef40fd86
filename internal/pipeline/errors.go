package pipeline

import "errors"

var (
	// ErrStepFailed halts forward progress until an operator retries the step.
	ErrStepFailed = errors.New("pipeline step failed")
	// ErrPipelineBusy signals a step cannot start because another is active.
	ErrPipelineBusy = errors.New("pipeline busy")
)
