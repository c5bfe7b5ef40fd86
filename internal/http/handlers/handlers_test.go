package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/http/handlers"
	"github.com/pawpress/server/internal/http/httpapi"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/middleware"
	"github.com/pawpress/server/internal/pipeline"
	"github.com/pawpress/server/internal/progress"
	"github.com/pawpress/server/internal/queue"
	"github.com/pawpress/server/internal/quota"
	"github.com/pawpress/server/internal/scorer"
)

const testSecret = "test-secret"

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
	byKey map[string]uuid.UUID
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job), byKey: make(map[string]uuid.UUID)}
}

func (s *fakeJobStore) InsertIdempotent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := job.TenantID + "/" + job.IdempotencyKey
	if id, ok := s.byKey[key]; ok {
		dup := *s.jobs[id]
		return &dup, false, nil
	}
	stored := *job
	stored.Status = domain.JobStatusQueued
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[stored.ID] = &stored
	s.byKey[key] = stored.ID
	out := stored
	return &out, true, nil
}

func (s *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	dup := *job
	return &dup, nil
}

func (s *fakeJobStore) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobStore) ClaimNext(ctx context.Context, workerID string, leaseTTL time.Duration) (*domain.Job, error) {
	return nil, domain.ErrNoJobAvailable
}

func (s *fakeJobStore) MarkDone(ctx context.Context, id uuid.UUID, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = domain.JobStatusDone
		job.Result = result
	}
	return nil
}

func (s *fakeJobStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, nextRunAt time.Time) error {
	return nil
}

func (s *fakeJobStore) MarkError(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = domain.JobStatusError
		job.ErrorMessage = errMsg
	}
	return nil
}

func (s *fakeJobStore) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.TenantID != tenantID {
		return false, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = domain.JobStatusCanceled
	return true, nil
}

func (s *fakeJobStore) Status(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (s *fakeJobStore) Unblock(ctx context.Context, tenantID string, ids []uuid.UUID) ([]uuid.UUID, error) {
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
		updated = append(updated, id)
	}
	return updated, nil
}

func (s *fakeJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *fakeJobStore) OldestQueuedAge(ctx context.Context) (time.Duration, error) { return 0, nil }

func (s *fakeJobStore) CountStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (s *fakeJobStore) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		out = append(out, *job)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeStepStore struct {
	mu    sync.Mutex
	steps map[uuid.UUID]*domain.JobStep
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{steps: make(map[uuid.UUID]*domain.JobStep)}
}

func (s *fakeStepStore) InsertPlan(ctx context.Context, steps []domain.JobStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range steps {
		dup := steps[i]
		s.steps[dup.ID] = &dup
	}
	return nil
}

func (s *fakeStepStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobStep
	for _, step := range s.steps {
		if step.JobID == jobID {
			out = append(out, *step)
		}
	}
	return out, nil
}

func (s *fakeStepStore) Get(ctx context.Context, stepID uuid.UUID) (*domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[stepID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	dup := *step
	return &dup, nil
}

func (s *fakeStepStore) MarkRunning(ctx context.Context, stepID uuid.UUID) error   { return nil }
func (s *fakeStepStore) MarkCompleted(ctx context.Context, stepID uuid.UUID, output []byte) error {
	return nil
}
func (s *fakeStepStore) MarkFailed(ctx context.Context, stepID uuid.UUID, errMsg string) error {
	return nil
}
func (s *fakeStepStore) MarkSkipped(ctx context.Context, stepID uuid.UUID) error { return nil }
func (s *fakeStepStore) Requeue(ctx context.Context, stepID uuid.UUID) error     { return nil }

func (s *fakeStepStore) ResetForRetry(ctx context.Context, stepID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step, ok := s.steps[stepID]; ok {
		step.Status = domain.StepStatusQueued
		step.Attempt = 0
		step.Error = ""
	}
	return nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (s *fakeEventStore) Append(ctx context.Context, event *domain.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *event
	dup.ID = uuid.New()
	dup.CreatedAt = time.Now()
	s.events = append(s.events, dup)
	return nil
}

func (s *fakeEventStore) ListRecent(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].JobID == jobID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

type fakeQuotaStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.QuotaAccount
}

func (s *fakeQuotaStore) Get(ctx context.Context, tenantID string) (*domain.QuotaAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	dup := *acc
	return &dup, nil
}

func (s *fakeQuotaStore) Consume(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[tenantID]
	if !ok {
		// no account, no limits
		return nil
	}
	if !acc.Admits(res, amount) {
		return domain.ErrQuotaExceeded
	}
	s.apply(acc, res, amount)
	return nil
}

func (s *fakeQuotaStore) Release(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[tenantID]; ok {
		s.apply(acc, res, -amount)
	}
	return nil
}

func (s *fakeQuotaStore) apply(acc *domain.QuotaAccount, res domain.QuotaResource, delta int) {
	switch res {
	case domain.QuotaResourceImages:
		acc.ImagesUsed += delta
	case domain.QuotaResourceVideos:
		acc.VideosUsed += delta
	case domain.QuotaResourceCredits:
		acc.CreditsUsed += delta
	}
}

func (s *fakeQuotaStore) Reset(ctx context.Context, tenantID string, next time.Time) (bool, error) {
	return false, nil
}

func (s *fakeQuotaStore) TenantsDue(ctx context.Context, now time.Time) ([]string, error) {
	return nil, nil
}

type fakeProviderStore struct {
	list []domain.Provider
}

func (s *fakeProviderStore) ListEnabled(ctx context.Context) ([]domain.Provider, error) {
	var out []domain.Provider
	for _, p := range s.list {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeProviderStore) List(ctx context.Context) ([]domain.Provider, error) {
	return s.list, nil
}

func (s *fakeProviderStore) Get(ctx context.Context, id string) (*domain.Provider, error) {
	for _, p := range s.list {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeMetricsStore struct{}

func (fakeMetricsStore) ForUseCase(ctx context.Context, useCase, format string) (map[string]domain.ProviderMetrics, error) {
	return map[string]domain.ProviderMetrics{}, nil
}

func (fakeMetricsStore) RecordOutcome(ctx context.Context, providerID, useCase, format string, reward float64) error {
	return nil
}

type fixture struct {
	router http.Handler
	jobs   *fakeJobStore
	steps  *fakeStepStore
	quotas *fakeQuotaStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	jobs := newFakeJobStore()
	steps := newFakeStepStore()
	events := &fakeEventStore{}
	quotas := &fakeQuotaStore{accounts: map[string]*domain.QuotaAccount{
		"brand-1": {TenantID: "brand-1", QuotaImages: 100, QuotaVideos: 10, QuotaCredits: 1000, ResetsOn: time.Now().AddDate(0, 1, 0)},
		"brand-2": {TenantID: "brand-2", QuotaImages: 1, QuotaVideos: 1, QuotaCredits: 10, ResetsOn: time.Now().AddDate(0, 1, 0)},
	}}
	catalog := &fakeProviderStore{list: []domain.Provider{
		{ID: "pix-basic", Name: "Pix Basic", Modalities: []domain.Modality{domain.ModalityImage}, Cost: domain.CostModel{BaseUnitCost: 2}, QualityScore: 0.8, Enabled: true},
		{ID: "clip-pro", Name: "Clip Pro", Modalities: []domain.Modality{domain.ModalityVideo}, Cost: domain.CostModel{BaseUnitCost: 40, ChunkSeconds: 5}, Enabled: true},
	}}

	ledger := quota.NewLedger(quotas, log)
	publisher := progress.NewPublisher(events, jobs, steps, nil, log)
	service := queue.NewService(jobs, steps, ledger, pipeline.NewPlanner(), publisher, log)
	selector := scorer.NewSelector(catalog, fakeMetricsStore{}, log)

	app := &handlers.App{
		Queue:     service,
		Monitor:   queue.NewMonitor(jobs),
		Progress:  publisher,
		Ledger:    ledger,
		Selector:  selector,
		Jobs:      jobs,
		Providers: catalog,
		Config: &infra.Config{
			JWTSecret:       testSecret,
			DefaultLocale:   "en",
			RateLimitPerMin: 0,
		},
		Log: log,
	}

	return &fixture{
		router: httpapi.NewRouter(app, nil),
		jobs:   jobs,
		steps:  steps,
		quotas: quotas,
	}
}

func bearerToken(t *testing.T, tenant string) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub:    "user-1",
		Tenant: tenant,
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if tenant != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken(t, tenant))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func imageBody() map[string]any {
	return map[string]any{
		"kind": "image",
		"payload": map[string]any{
			"prompt":       "storefront banner with a corgi",
			"aspect_ratio": "1:1",
			"quality":      "standard",
		},
	}
}

func TestEnqueueJobAccepted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID          string `json:"job_id"`
		Status         string `json:"status"`
		Created        bool   `json:"created"`
		RemainingQuota int    `json:"remaining_quota"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Created)
	require.Equal(t, "queued", resp.Status)
	require.Equal(t, 99, resp.RemainingQuota)

	// The identical request maps onto the stored job.
	rec2 := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())
	require.Equal(t, http.StatusOK, rec2.Code)
	var resp2 struct {
		JobID   string `json:"job_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
	require.False(t, resp2.Created)
	require.Equal(t, resp.JobID, resp2.JobID)
}

func TestEnqueueJobRequiresAuth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/jobs", "", imageBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEnqueueJobValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", map[string]any{"kind": "hologram", "payload": map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/jobs", "brand-1", map[string]any{
		"kind":    "image",
		"payload": map[string]any{"prompt": ""},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueJobQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.quotas.accounts["brand-2"].ImagesUsed = 2

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-2", imageBody())
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "quota_exceeded")
}

func TestEnqueueJobWithoutQuotaAccountIsAdmitted(t *testing.T) {
	f := newFixture(t)

	// A tenant that was never provisioned with limits is unrestricted.
	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-9", imageBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestJobStatusScopedToTenant(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID, "brand-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID, "brand-2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := uuid.MustParse(resp.JobID)

	rec = f.do(t, http.MethodPost, "/v1/jobs/"+resp.JobID+"/cancel", "brand-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.jobs.MarkDone(context.Background(), jobID, []byte(`{}`)))
	rec = f.do(t, http.MethodPost, "/v1/jobs/"+resp.JobID+"/cancel", "brand-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnblockSkipsForeignJobs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodPost, "/v1/jobs/unblock", "brand-2", map[string]any{"job_ids": []string{resp.JobID}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"unblocked":[]`)
}

func TestSelectProviderKOSuggestions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/providers/select", "brand-1", map[string]any{
		"use_case":         "product_video",
		"modality":         "video",
		"format":           "mp4",
		"duration_seconds": 30,
		"budget_units":     50,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK          bool     `json:"ok"`
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Suggestions)
}

func TestSelectProviderOK(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/providers/select", "brand-1", map[string]any{
		"use_case": "image",
		"modality": "image",
		"format":   "png",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK           bool    `json:"ok"`
		ProviderID   string  `json:"provider_id"`
		CostUnits    float64 `json:"cost_units"`
		QualityScore float64 `json:"quality_score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.Equal(t, "pix-basic", resp.ProviderID)
	require.Equal(t, 2.0, resp.CostUnits)
	require.Equal(t, 0.8, resp.QualityScore)
}

func TestQuotaStatus(t *testing.T) {
	f := newFixture(t)
	f.quotas.accounts["brand-1"].ImagesUsed = 25

	rec := f.do(t, http.MethodGet, "/v1/quota", "brand-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Images struct {
			Limit     int `json:"limit"`
			Used      int `json:"used"`
			Remaining int `json:"remaining"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 100, resp.Images.Limit)
	require.Equal(t, 25, resp.Images.Used)
	require.Equal(t, 75, resp.Images.Remaining)
}

func TestQueueStats(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/jobs", "brand-1", imageBody())

	rec := f.do(t, http.MethodGet, "/v1/admin/queue", "brand-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"counts_by_status"`)
	require.Contains(t, rec.Body.String(), `"queued":1`)
}

func TestHealthEndpointsArePublic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
