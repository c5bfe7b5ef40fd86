package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/pipeline"
)

type stubExecutor struct {
	mu      sync.Mutex
	calls   int
	results []error
	output  []byte
	onCall  func(call int)
}

func (s *stubExecutor) Execute(ctx context.Context, job *domain.Job) ([]byte, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	var err error
	if call < len(s.results) {
		err = s.results[call]
	}
	onCall := s.onCall
	s.mu.Unlock()
	if onCall != nil {
		onCall(call)
	}
	if err != nil {
		return nil, err
	}
	if s.output != nil {
		return s.output, nil
	}
	return []byte(`{"asset_key":"generated/images/x/asset.png"}`), nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubDriver struct {
	err error
}

func (s *stubDriver) Run(ctx context.Context, job *domain.Job) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(`{"asset_key":"generated/videos/x/deliver.mp4"}`), nil
}

func newWorkerFixture(t *testing.T, exec JobExecutor, driver StepDriver) (*Worker, *memJobStore, *recordingSink) {
	t.Helper()
	jobs := newMemJobStore()
	sink := &recordingSink{}
	w := NewWorker(jobs, exec, driver, sink, WorkerConfig{
		WorkerID:     "test-worker",
		PollInterval: 10 * time.Millisecond,
		LeaseTTL:     time.Minute,
		Backoff:      BackoffPolicy{Base: time.Millisecond, Max: 10 * time.Millisecond},
	}, zerolog.Nop())
	return w, jobs, sink
}

func seedJob(t *testing.T, jobs *memJobStore, kind domain.JobKind, key string) *domain.Job {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"prompt": "p"})
	job, created, err := jobs.InsertIdempotent(context.Background(), &domain.Job{
		ID:             uuid.New(),
		TenantID:       "brand-1",
		Kind:           kind,
		Payload:        raw,
		MaxAttempts:    3,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func TestConcurrentClaimExactlyOneWinner(t *testing.T) {
	jobs := newMemJobStore()
	seedJob(t, jobs, domain.JobKindImage, "k-race")

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			if _, err := jobs.ClaimNext(context.Background(), fmt.Sprintf("w-%d", n), time.Minute); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestWorkerCompletesJob(t *testing.T) {
	exec := &stubExecutor{}
	w, jobs, sink := newWorkerFixture(t, exec, &stubDriver{})
	job := seedJob(t, jobs, domain.JobKindImage, "k-ok")

	claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.NoError(t, err)
	w.Handle(context.Background(), claimed)

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusDone, stored.Status)
	require.NotEmpty(t, stored.Result)
	require.True(t, sink.has(domain.EventJobClaimed))
	require.True(t, sink.has(domain.EventJobCompleted))
}

func TestWorkerRetryBound(t *testing.T) {
	boom := errors.New("provider unavailable")
	exec := &stubExecutor{results: []error{boom, boom, boom, boom}}
	w, jobs, sink := newWorkerFixture(t, exec, &stubDriver{})
	job := seedJob(t, jobs, domain.JobKindImage, "k-retry")

	// Three handler failures exhaust max_attempts=3; there is never a
	// fourth attempt.
	for i := 0; i < 3; i++ {
		time.Sleep(5 * time.Millisecond) // let the backoff window pass
		claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
		require.NoError(t, err, "attempt %d should be claimable", i+1)
		w.Handle(context.Background(), claimed)
	}

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusError, stored.Status)
	require.Equal(t, 3, stored.Attempts)
	require.Contains(t, stored.ErrorMessage, "provider unavailable")
	require.Equal(t, 3, exec.callCount())
	require.True(t, sink.has(domain.EventJobRetrying))
	require.True(t, sink.has(domain.EventJobFailed))

	_, err = jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.ErrorIs(t, err, domain.ErrNoJobAvailable)
}

func TestWorkerBacksOffBetweenRetries(t *testing.T) {
	boom := errors.New("transient")
	exec := &stubExecutor{results: []error{boom}}
	w, jobs, _ := newWorkerFixture(t, exec, &stubDriver{})
	w.cfg.Backoff = BackoffPolicy{Base: time.Hour, Max: 2 * time.Hour}
	job := seedJob(t, jobs, domain.JobKindImage, "k-backoff")

	claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.NoError(t, err)
	w.Handle(context.Background(), claimed)

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRetrying, stored.Status)
	require.True(t, stored.NextRunAt.After(time.Now().Add(30*time.Minute)))

	// Not claimable until the backoff window passes.
	_, err = jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.ErrorIs(t, err, domain.ErrNoJobAvailable)
}

func TestWorkerTruncatesLongErrors(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	exec := &stubExecutor{results: []error{errors.New(string(long)), errors.New(string(long)), errors.New(string(long))}}
	w, jobs, _ := newWorkerFixture(t, exec, &stubDriver{})
	job := seedJob(t, jobs, domain.JobKindImage, "k-longerr")

	for i := 0; i < 3; i++ {
		time.Sleep(5 * time.Millisecond)
		claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
		require.NoError(t, err)
		w.Handle(context.Background(), claimed)
	}

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, len(stored.ErrorMessage), domain.MaxErrorMessageLen)
}

func TestWorkerStepFailureIsTerminal(t *testing.T) {
	driver := &stubDriver{err: fmt.Errorf("%w: step 1 (animate_clip): timeout", pipeline.ErrStepFailed)}
	w, jobs, sink := newWorkerFixture(t, &stubExecutor{}, driver)
	raw, _ := json.Marshal(map[string]any{"brief": "b"})
	job, _, err := jobs.InsertIdempotent(context.Background(), &domain.Job{
		ID: uuid.New(), TenantID: "brand-1", Kind: domain.JobKindVideo,
		Payload: raw, MaxAttempts: 3, IdempotencyKey: "k-step",
	})
	require.NoError(t, err)

	claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.NoError(t, err)
	w.Handle(context.Background(), claimed)

	// A failed step halts the job immediately; the recovery path is an
	// operator step retry, not the attempt ladder.
	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusError, stored.Status)
	require.True(t, sink.has(domain.EventJobFailed))
}

func TestWorkerDropsResultOfCanceledJob(t *testing.T) {
	jobs := newMemJobStore()
	sink := &recordingSink{}
	job := seedJob(t, jobs, domain.JobKindImage, "k-cancel")

	exec := &stubExecutor{}
	var w *Worker
	exec.onCall = func(int) {
		// Cancellation races the in-flight call and must win.
		_, err := jobs.Cancel(context.Background(), "brand-1", job.ID)
		require.NoError(t, err)
	}
	w = NewWorker(jobs, exec, &stubDriver{}, sink, WorkerConfig{WorkerID: "test-worker"}, zerolog.Nop())

	claimed, err := jobs.ClaimNext(context.Background(), "test-worker", time.Minute)
	require.NoError(t, err)
	w.Handle(context.Background(), claimed)

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCanceled, stored.Status)
	require.Empty(t, stored.Result)
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	w, _, _ := newWorkerFixture(t, &stubExecutor{}, &stubDriver{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestMonitorStats(t *testing.T) {
	jobs := newMemJobStore()
	seedJob(t, jobs, domain.JobKindImage, "k-m1")
	errored := seedJob(t, jobs, domain.JobKindImage, "k-m2")
	require.NoError(t, jobs.MarkError(context.Background(), errored.ID, 3, "boom"))

	stats, err := NewMonitor(jobs).Stats(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, stats.CountsByStatus[domain.JobStatusQueued])
	require.Equal(t, 1, stats.CountsByStatus[domain.JobStatusError])
	require.Len(t, stats.RecentJobs, 2)
	require.GreaterOrEqual(t, stats.OldestQueuedAgeS, 0.0)
}
