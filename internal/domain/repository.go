package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStore defines persistence for jobs. InsertIdempotent and ClaimNext are
// the two operations that must be atomic at the storage layer.
type JobStore interface {
	// InsertIdempotent inserts the job unless a row with the same
	// (tenant, idempotency key) already exists. It returns the stored job
	// and whether a new row was created.
	InsertIdempotent(ctx context.Context, job *Job) (*Job, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*Job, error)
	// ClaimNext atomically moves the oldest runnable job to processing and
	// stamps the worker's lease. Rows whose lease expired are reclaimable.
	// Returns ErrNoJobAvailable when the queue is drained.
	ClaimNext(ctx context.Context, workerID string, leaseTTL time.Duration) (*Job, error)
	MarkDone(ctx context.Context, id uuid.UUID, result []byte) error
	// MarkRetrying returns a failed attempt to the queue with a backoff delay.
	MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, nextRunAt time.Time) error
	MarkError(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
	Cancel(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
	Status(ctx context.Context, id uuid.UUID) (JobStatus, error)
	// Unblock resets the caller's jobs to queued with attempts=0 and a
	// cleared error. Jobs of other tenants are never touched.
	Unblock(ctx context.Context, tenantID string, ids []uuid.UUID) ([]uuid.UUID, error)

	// Monitoring reads.
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
	OldestQueuedAge(ctx context.Context) (time.Duration, error)
	CountStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
}

// StepStore defines persistence for composite-job steps.
type StepStore interface {
	InsertPlan(ctx context.Context, steps []JobStep) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]JobStep, error)
	Get(ctx context.Context, stepID uuid.UUID) (*JobStep, error)
	MarkRunning(ctx context.Context, stepID uuid.UUID) error
	MarkCompleted(ctx context.Context, stepID uuid.UUID, output []byte) error
	MarkFailed(ctx context.Context, stepID uuid.UUID, errMsg string) error
	MarkSkipped(ctx context.Context, stepID uuid.UUID) error
	// Requeue returns a running step to queued when its in-flight result
	// is discarded, e.g. on cancellation mid-call.
	Requeue(ctx context.Context, stepID uuid.UUID) error
	// ResetForRetry returns a failed step to queued with attempt=0 and a
	// cleared error. Completed steps are never reset.
	ResetForRetry(ctx context.Context, stepID uuid.UUID) error
}

// EventStore appends to and reads from the append-only job event log.
type EventStore interface {
	Append(ctx context.Context, event *JobEvent) error
	ListRecent(ctx context.Context, jobID uuid.UUID, limit int) ([]JobEvent, error)
}

// ProviderStore reads the configuration-maintained provider catalog.
type ProviderStore interface {
	ListEnabled(ctx context.Context) ([]Provider, error)
	List(ctx context.Context) ([]Provider, error)
	Get(ctx context.Context, id string) (*Provider, error)
}

// ProviderMetricsStore tracks bandit statistics per (provider, use case,
// format). RecordOutcome must be a single atomic upsert.
type ProviderMetricsStore interface {
	ForUseCase(ctx context.Context, useCase, format string) (map[string]ProviderMetrics, error)
	RecordOutcome(ctx context.Context, providerID, useCase, format string, reward float64) error
}

// QuotaStore mutates per-tenant consumption counters. Consume must be a
// single conditional increment at the storage layer.
type QuotaStore interface {
	Get(ctx context.Context, tenantID string) (*QuotaAccount, error)
	// Consume atomically adds amount to the resource counter when the
	// soft-overage allowance admits it. Returns ErrQuotaExceeded otherwise.
	Consume(ctx context.Context, tenantID string, res QuotaResource, amount int) error
	// Release undoes a reservation that was not used (enqueue race loser).
	Release(ctx context.Context, tenantID string, res QuotaResource, amount int) error
	// Reset zeroes usage and advances resets_on; a no-op unless resets_on
	// has passed. Returns whether a reset was applied.
	Reset(ctx context.Context, tenantID string, next time.Time) (bool, error)
	TenantsDue(ctx context.Context, now time.Time) ([]string, error)
}
