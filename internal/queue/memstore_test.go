package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
)

// memJobStore mirrors the single-statement semantics of the SQL job store:
// every method takes the lock once, so the claim is atomic the same way the
// conditional UPDATE is.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
	seq  int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[uuid.UUID]*domain.Job{}}
}

func (s *memJobStore) InsertIdempotent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.TenantID == job.TenantID && existing.IdempotencyKey == job.IdempotencyKey {
			copied := *existing
			return &copied, false, nil
		}
	}
	stored := *job
	stored.Status = domain.JobStatusQueued
	s.seq++
	stored.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Microsecond)
	stored.UpdatedAt = stored.CreatedAt
	stored.NextRunAt = time.Now().Add(-time.Second)
	s.jobs[stored.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (s *memJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memJobStore) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memJobStore) ClaimNext(ctx context.Context, workerID string, leaseTTL time.Duration) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var candidates []*domain.Job
	for _, job := range s.jobs {
		runnable := (job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying) && !job.NextRunAt.After(now)
		expired := job.Status == domain.JobStatusProcessing && job.LeaseExpiresAt != nil && !job.LeaseExpiresAt.After(now)
		if runnable || expired {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoJobAvailable
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	job := candidates[0]
	job.Status = domain.JobStatusProcessing
	job.LockedBy = &workerID
	expiry := now.Add(leaseTTL)
	job.LeaseExpiresAt = &expiry
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (s *memJobStore) MarkDone(ctx context.Context, id uuid.UUID, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return nil
	}
	job.Status = domain.JobStatusDone
	job.Result = result
	job.LockedBy = nil
	job.LeaseExpiresAt = nil
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memJobStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusRetrying
	job.Attempts = attempts
	job.ErrorMessage = errMsg
	job.NextRunAt = nextRunAt
	job.LockedBy = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memJobStore) MarkError(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusError
	job.Attempts = attempts
	job.ErrorMessage = errMsg
	job.LockedBy = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memJobStore) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.TenantID != tenantID || job.Status.Terminal() {
		return false, nil
	}
	job.Status = domain.JobStatusCanceled
	job.LockedBy = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *memJobStore) Status(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return job.Status, nil
}

func (s *memJobStore) Unblock(ctx context.Context, tenantID string, ids []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []uuid.UUID
	for _, id := range ids {
		job, ok := s.jobs[id]
		if !ok || job.TenantID != tenantID {
			continue
		}
		job.Status = domain.JobStatusQueued
		job.Attempts = 0
		job.ErrorMessage = ""
		job.NextRunAt = time.Now().Add(-time.Second)
		job.LockedBy = nil
		job.LeaseExpiresAt = nil
		job.UpdatedAt = time.Now()
		updated = append(updated, id)
	}
	return updated, nil
}

func (s *memJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.JobStatus]int{}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *memJobStore) OldestQueuedAge(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest time.Time
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if oldest.IsZero() || job.CreatedAt.Before(oldest) {
			oldest = job.CreatedAt
		}
	}
	if oldest.IsZero() {
		return 0, nil
	}
	return time.Since(oldest), nil
}

func (s *memJobStore) CountStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	count := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing && job.UpdatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *memJobStore) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []domain.Job
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

var _ domain.JobStore = (*memJobStore)(nil)

// memStepStore keeps planned steps in memory.
type memStepStore struct {
	mu    sync.Mutex
	steps map[uuid.UUID]*domain.JobStep
}

func newMemStepStore() *memStepStore {
	return &memStepStore{steps: map[uuid.UUID]*domain.JobStep{}}
}

func (s *memStepStore) InsertPlan(ctx context.Context, steps []domain.JobStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range steps {
		copied := steps[i]
		s.steps[copied.ID] = &copied
	}
	return nil
}

func (s *memStepStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobStep
	for _, step := range s.steps {
		if step.JobID == jobID {
			out = append(out, *step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (s *memStepStore) Get(ctx context.Context, stepID uuid.UUID) (*domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[stepID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *step
	return &copied, nil
}

func (s *memStepStore) MarkRunning(ctx context.Context, stepID uuid.UUID) error {
	return s.update(stepID, func(step *domain.JobStep) {
		step.Status = domain.StepStatusRunning
		step.Attempt++
		step.Error = ""
	})
}

func (s *memStepStore) MarkCompleted(ctx context.Context, stepID uuid.UUID, output []byte) error {
	return s.update(stepID, func(step *domain.JobStep) {
		step.Status = domain.StepStatusCompleted
		step.Output = output
	})
}

func (s *memStepStore) MarkFailed(ctx context.Context, stepID uuid.UUID, errMsg string) error {
	return s.update(stepID, func(step *domain.JobStep) {
		step.Status = domain.StepStatusFailed
		step.Error = errMsg
	})
}

func (s *memStepStore) MarkSkipped(ctx context.Context, stepID uuid.UUID) error {
	return s.update(stepID, func(step *domain.JobStep) {
		step.Status = domain.StepStatusSkipped
	})
}

func (s *memStepStore) Requeue(ctx context.Context, stepID uuid.UUID) error {
	return s.update(stepID, func(step *domain.JobStep) {
		if step.Status == domain.StepStatusRunning {
			step.Status = domain.StepStatusQueued
		}
	})
}

func (s *memStepStore) ResetForRetry(ctx context.Context, stepID uuid.UUID) error {
	return s.update(stepID, func(step *domain.JobStep) {
		if step.Status == domain.StepStatusCompleted {
			return
		}
		step.Status = domain.StepStatusQueued
		step.Attempt = 0
		step.Error = ""
		step.Output = nil
	})
}

func (s *memStepStore) update(stepID uuid.UUID, fn func(*domain.JobStep)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[stepID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(step)
	return nil
}

var _ domain.StepStore = (*memStepStore)(nil)

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.EventType
}

func (r *recordingSink) Publish(ctx context.Context, jobID uuid.UUID, stepID *uuid.UUID, eventType domain.EventType, message string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingSink) has(t domain.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == t {
			return true
		}
	}
	return false
}
