package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/pipeline"
)

// WorkerConfig tunes one polling loop.
type WorkerConfig struct {
	WorkerID     string
	PollInterval time.Duration
	LeaseTTL     time.Duration
	Backoff      BackoffPolicy
}

// JobExecutor produces the result document of a simple job. *Executor is
// the production implementation.
type JobExecutor interface {
	Execute(ctx context.Context, job *domain.Job) ([]byte, error)
}

// StepDriver runs a composite job's step pipeline. *pipeline.Runner is the
// production implementation.
type StepDriver interface {
	Run(ctx context.Context, job *domain.Job) ([]byte, error)
}

// Worker repeatedly claims the oldest runnable job and drives it to a
// terminal or retriable state. Claims are atomic at the row level, so any
// number of workers can run this loop against the same store.
type Worker struct {
	jobs     domain.JobStore
	executor JobExecutor
	runner   StepDriver
	progress ProgressSink
	cfg      WorkerConfig
	log      zerolog.Logger
}

// NewWorker wires a polling worker.
func NewWorker(jobs domain.JobStore, executor JobExecutor, runner StepDriver, progress ProgressSink, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}
	return &Worker{jobs: jobs, executor: executor, runner: runner, progress: progress, cfg: cfg, log: log}
}

// Run polls until the context is canceled. A single job's failure never
// escapes the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Str("worker_id", w.cfg.WorkerID).Msg("queue: worker started")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := w.jobs.ClaimNext(ctx, w.cfg.WorkerID, w.cfg.LeaseTTL)
		switch {
		case err == nil:
			w.Handle(ctx, job)
			continue
		case errors.Is(err, domain.ErrNoJobAvailable):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			w.log.Error().Err(err).Msg("queue: claim failed")
		}

		select {
		case <-ctx.Done():
			w.log.Info().Str("worker_id", w.cfg.WorkerID).Msg("queue: worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handle drives one claimed job. Exported so tests can exercise the retry
// ladder without the polling loop.
func (w *Worker) Handle(ctx context.Context, job *domain.Job) {
	log := w.log.With().Str("job_id", job.ID.String()).Str("kind", string(job.Kind)).Logger()
	log.Info().Int("attempt", job.Attempts+1).Msg("queue: job claimed")
	w.progress.Publish(ctx, job.ID, nil, domain.EventJobClaimed,
		fmt.Sprintf("claimed by %s", w.cfg.WorkerID), map[string]any{"worker_id": w.cfg.WorkerID, "attempt": job.Attempts + 1})

	result, err := w.dispatch(ctx, job)
	if err != nil {
		w.settleFailure(ctx, job, err, log)
		return
	}

	// Cancellation wins the persist race: a job canceled mid-flight is
	// never silently completed.
	status, statusErr := w.jobs.Status(ctx, job.ID)
	if statusErr != nil {
		log.Error().Err(statusErr).Msg("queue: status re-check failed")
		return
	}
	if status == domain.JobStatusCanceled {
		log.Info().Msg("queue: dropping result of canceled job")
		return
	}

	if err := w.jobs.MarkDone(ctx, job.ID, result); err != nil {
		log.Error().Err(err).Msg("queue: mark done failed")
		return
	}
	w.progress.Publish(ctx, job.ID, nil, domain.EventJobCompleted, "job completed", nil)
	log.Info().Msg("queue: job completed")
}

func (w *Worker) dispatch(ctx context.Context, job *domain.Job) ([]byte, error) {
	// Checkpoint before any work: an unblock-then-cancel sequence can leave
	// a canceled job claimable.
	status, err := w.jobs.Status(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if status == domain.JobStatusCanceled {
		return nil, domain.ErrJobCanceled
	}
	if job.Kind.Composite() {
		return w.runner.Run(ctx, job)
	}
	return w.executor.Execute(ctx, job)
}

// settleFailure sorts a handler error into its bucket: canceled jobs keep
// their status, a failed pipeline step terminates the job (step retry is the
// recovery path), and transient errors return the job to the queue with
// exponential backoff until the attempt budget runs out.
func (w *Worker) settleFailure(ctx context.Context, job *domain.Job, cause error, log zerolog.Logger) {
	if errors.Is(cause, domain.ErrJobCanceled) {
		log.Info().Msg("queue: job canceled before completion")
		return
	}

	attempts := job.Attempts + 1
	msg := domain.TruncateError(cause.Error())

	if pipeline.IsStepFailure(cause) {
		if err := w.jobs.MarkError(ctx, job.ID, attempts, msg); err != nil {
			log.Error().Err(err).Msg("queue: mark error failed")
			return
		}
		w.progress.Publish(ctx, job.ID, nil, domain.EventJobFailed, msg, map[string]any{"attempts": attempts, "step_failure": true})
		log.Warn().Str("error", msg).Msg("queue: job halted on failed step")
		return
	}

	if attempts < job.MaxAttempts {
		nextRun := w.cfg.Backoff.NextRun(time.Now(), attempts)
		if err := w.jobs.MarkRetrying(ctx, job.ID, attempts, msg, nextRun); err != nil {
			log.Error().Err(err).Msg("queue: mark retrying failed")
			return
		}
		w.progress.Publish(ctx, job.ID, nil, domain.EventJobRetrying, msg,
			map[string]any{"attempts": attempts, "next_run_at": nextRun})
		log.Warn().Int("attempt", attempts).Time("next_run_at", nextRun).Str("error", msg).Msg("queue: job will retry")
		return
	}

	if err := w.jobs.MarkError(ctx, job.ID, attempts, msg); err != nil {
		log.Error().Err(err).Msg("queue: mark error failed")
		return
	}
	w.progress.Publish(ctx, job.ID, nil, domain.EventJobFailed, msg, map[string]any{"attempts": attempts})
	log.Error().Int("attempts", attempts).Str("error", msg).Msg("queue: job failed terminally")
}

// RunPool runs n identical polling loops until the context is canceled.
func (w *Worker) RunPool(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", w.cfg.WorkerID, i+1)
		cfg := w.cfg
		cfg.WorkerID = id
		peer := &Worker{jobs: w.jobs, executor: w.executor, runner: w.runner, progress: w.progress, cfg: cfg, log: w.log}
		g.Go(func() error { return peer.Run(ctx) })
	}
	return g.Wait()
}
