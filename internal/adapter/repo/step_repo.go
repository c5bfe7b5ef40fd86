package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/sqlinline"
)

// StepRepositoryPG implements domain.StepStore over PostgreSQL.
type StepRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewStepRepository creates a step store backed by PostgreSQL.
func NewStepRepository(sql infra.SQLExecutor) *StepRepositoryPG {
	return &StepRepositoryPG{sql: sql}
}

func (r *StepRepositoryPG) InsertPlan(ctx context.Context, steps []domain.JobStep) error {
	for _, step := range steps {
		if _, err := r.sql.Exec(ctx, sqlinline.QInsertStep,
			step.ID,
			step.JobID,
			step.StepType,
			step.StepIndex,
			nullableBytes(step.Input),
		); err != nil {
			return fmt.Errorf("insert step %d: %w", step.StepIndex, err)
		}
	}
	return nil
}

func (r *StepRepositoryPG) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.JobStep, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStepsByJob, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []domain.JobStep
	for rows.Next() {
		var step domain.JobStep
		if err := rows.Scan(
			&step.ID,
			&step.JobID,
			&step.StepType,
			&step.StepIndex,
			&step.Status,
			&step.Attempt,
			&step.Input,
			&step.Output,
			&step.Error,
			&step.StartedAt,
			&step.FinishedAt,
			&step.CreatedAt,
			&step.UpdatedAt,
		); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (r *StepRepositoryPG) Get(ctx context.Context, stepID uuid.UUID) (*domain.JobStep, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectStepByID, stepID)
	var step domain.JobStep
	if err := row.Scan(
		&step.ID,
		&step.JobID,
		&step.StepType,
		&step.StepIndex,
		&step.Status,
		&step.Attempt,
		&step.Input,
		&step.Output,
		&step.Error,
		&step.StartedAt,
		&step.FinishedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &step, nil
}

func (r *StepRepositoryPG) MarkRunning(ctx context.Context, stepID uuid.UUID) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkStepRunning, stepID)
	return err
}

func (r *StepRepositoryPG) MarkCompleted(ctx context.Context, stepID uuid.UUID, output []byte) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkStepCompleted, stepID, nullableBytes(output))
	return err
}

func (r *StepRepositoryPG) MarkFailed(ctx context.Context, stepID uuid.UUID, errMsg string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkStepFailed, stepID, domain.TruncateError(errMsg))
	return err
}

func (r *StepRepositoryPG) MarkSkipped(ctx context.Context, stepID uuid.UUID) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkStepSkipped, stepID)
	return err
}

func (r *StepRepositoryPG) Requeue(ctx context.Context, stepID uuid.UUID) error {
	_, err := r.sql.Exec(ctx, sqlinline.QRequeueStep, stepID)
	return err
}

func (r *StepRepositoryPG) ResetForRetry(ctx context.Context, stepID uuid.UUID) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QResetStepForRetry, stepID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStepNotRetryable
	}
	return nil
}

var _ domain.StepStore = (*StepRepositoryPG)(nil)
