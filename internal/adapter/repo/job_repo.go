package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore over PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job store backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// InsertIdempotent relies on the unique (tenant_id, idempotency_key) index:
// the insert is a no-op under a duplicate and the stored row is re-read, so
// at-most-one job per key holds even when two requests race.
func (r *JobRepositoryPG) InsertIdempotent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJobIdempotent,
		job.ID,
		job.TenantID,
		job.UserID,
		job.OrderID,
		job.Kind,
		job.Payload,
		job.MaxAttempts,
		job.IdempotencyKey,
	)
	var insertedID uuid.UUID
	err := row.Scan(&insertedID)
	if err == nil {
		stored, getErr := r.GetByID(ctx, insertedID)
		if getErr != nil {
			return nil, false, getErr
		}
		return stored, true, nil
	}
	if !infra.IsNoRows(err) {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	existing := r.sql.QueryRow(ctx, sqlinline.QSelectJobByKey, job.TenantID, job.IdempotencyKey)
	stored, err := scanJob(existing)
	if err != nil {
		return nil, false, fmt.Errorf("load existing job: %w", err)
	}
	return stored, false, nil
}

func (r *JobRepositoryPG) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, id))
}

func (r *JobRepositoryPG) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobForTenant, id, tenantID))
}

func (r *JobRepositoryPG) ClaimNext(ctx context.Context, workerID string, leaseTTL time.Duration) (*domain.Job, error) {
	interval := fmt.Sprintf("%d milliseconds", leaseTTL.Milliseconds())
	row := r.sql.QueryRow(ctx, sqlinline.QClaimNextJob, workerID, interval)
	job, err := scanJob(row)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) MarkDone(ctx context.Context, id uuid.UUID, result []byte) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkJobDone, id, nullableBytes(result))
	return err
}

func (r *JobRepositoryPG) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, nextRunAt time.Time) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkJobRetrying, id, attempts, errMsg, nextRunAt)
	return err
}

func (r *JobRepositoryPG) MarkError(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkJobError, id, attempts, errMsg)
	return err
}

func (r *JobRepositoryPG) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QCancelJob, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *JobRepositoryPG) Status(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	var status domain.JobStatus
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectJobStatus, id).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (r *JobRepositoryPG) Unblock(ctx context.Context, tenantID string, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QUnblockJobs, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("unblock jobs: %w", err)
	}
	defer rows.Close()
	var updated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}
	return updated, rows.Err()
}

func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountJobsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *JobRepositoryPG) OldestQueuedAge(ctx context.Context) (time.Duration, error) {
	var seconds float64
	if err := r.sql.QueryRow(ctx, sqlinline.QOldestQueuedAge).Scan(&seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (r *JobRepositoryPG) CountStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	interval := fmt.Sprintf("%d milliseconds", olderThan.Milliseconds())
	var count int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountStuckProcessing, interval).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJobFrom(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	return scanJobFrom(row.Scan)
}

func scanJobFrom(scan func(dest ...any) error) (*domain.Job, error) {
	var job domain.Job
	err := scan(
		&job.ID,
		&job.TenantID,
		&job.UserID,
		&job.OrderID,
		&job.Kind,
		&job.Status,
		&job.Payload,
		&job.Result,
		&job.Attempts,
		&job.MaxAttempts,
		&job.IdempotencyKey,
		&job.LockedBy,
		&job.LeaseExpiresAt,
		&job.NextRunAt,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
