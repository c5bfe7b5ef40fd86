package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidKind      = errors.New("invalid job kind")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrMissingTenant    = errors.New("missing tenant")
	ErrOrderNotFound    = errors.New("order not found")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrJobTerminal      = errors.New("job already terminal")
	ErrJobCanceled      = errors.New("job canceled")
	ErrStepNotRetryable = errors.New("step not retryable")
	ErrNoJobAvailable   = errors.New("no job available")
)
