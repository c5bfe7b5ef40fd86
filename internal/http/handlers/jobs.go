package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/progress"
	"github.com/pawpress/server/internal/quota"
)

type enqueueJobRequest struct {
	Kind    string          `json:"kind"`
	OrderID string          `json:"order_id"`
	Payload json.RawMessage `json:"payload"`
}

type jobResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Created        bool   `json:"created"`
	RemainingQuota int    `json:"remaining_quota"`
}

// EnqueueJob admits one generation job. Retrying the same request with an
// unchanged payload returns the job created the first time with
// created=false instead of a second job.
func (a *App) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", a.localized(r, "bad_request"))
		return
	}
	owner.OrderID = req.OrderID

	kind := domain.JobKind(req.Kind)
	job, created, err := a.Queue.Enqueue(r.Context(), owner, kind, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			a.error(w, http.StatusForbidden, "quota_exceeded", a.localized(r, "quota_exceeded"))
		case errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidPayload):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, domain.ErrMissingTenant):
			a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		default:
			a.Log.Error().Err(err).Str("tenant_id", owner.TenantID).Msg("http: enqueue failed")
			a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		}
		return
	}

	remaining := 0
	if acc, accErr := a.Ledger.Account(r.Context(), owner.TenantID); accErr == nil {
		remaining = acc.Remaining(quota.ResourceForKind(job.Kind))
	}

	code := http.StatusAccepted
	if !created {
		code = http.StatusOK
	}
	a.json(w, code, jobResponse{
		JobID:          job.ID.String(),
		Status:         string(job.Status),
		Created:        created,
		RemainingQuota: remaining,
	})
}

// JobStatus returns the caller's live progress snapshot for one job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	snap, err := a.Progress.SnapshotForTenant(r.Context(), owner.TenantID, jobID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
		return
	}
	a.json(w, http.StatusOK, snap)
}

// WaitJob blocks until the job reaches a terminal status or the wait budget
// runs out, then returns the snapshot either way.
func (a *App) WaitJob(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	if _, err := a.Jobs.GetForTenant(r.Context(), owner.TenantID, jobID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
		return
	}

	cfg := progress.DefaultWatchConfig()
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 && d < cfg.MaxDuration {
			cfg.MaxDuration = d
		}
	}
	snap, err := a.Progress.WaitTerminal(r.Context(), jobID, cfg)
	if errors.Is(err, progress.ErrWatchExhausted) {
		// Budget ran out first: report whatever state the job is in now.
		snap, err = a.Progress.SnapshotForTenant(r.Context(), owner.TenantID, jobID)
	}
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", jobID.String()).Msg("http: wait failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	a.json(w, http.StatusOK, snap)
}

// CancelJob requests cancellation. The worker honors it at its next
// checkpoint, so a completed result may still land if the flip arrives too
// late, but a canceled job never reports completed afterwards.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	err := a.Queue.Cancel(r.Context(), owner.TenantID, jobID)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"job_id": jobID.String(), "status": string(domain.JobStatusCanceled)})
	case errors.Is(err, domain.ErrJobTerminal):
		a.error(w, http.StatusConflict, "job_terminal", a.localized(r, "job_terminal"))
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
	default:
		a.Log.Error().Err(err).Str("job_id", jobID.String()).Msg("http: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
	}
}

type unblockRequest struct {
	JobIDs []string `json:"job_ids"`
}

// UnblockJobs resets the caller's stuck jobs back to queued. IDs that do not
// belong to the caller are silently skipped.
func (a *App) UnblockJobs(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", a.localized(r, "bad_request"))
		return
	}
	ids := make([]uuid.UUID, 0, len(req.JobIDs))
	for _, raw := range req.JobIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid job id: "+raw)
			return
		}
		ids = append(ids, id)
	}
	updated, err := a.Queue.Unblock(r.Context(), owner.TenantID, ids)
	if err != nil {
		a.Log.Error().Err(err).Str("tenant_id", owner.TenantID).Msg("http: unblock failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	out := make([]string, 0, len(updated))
	for _, id := range updated {
		out = append(out, id.String())
	}
	a.json(w, http.StatusOK, map[string]any{"unblocked": out})
}

// RetryJobStep resets one failed step and requeues the job so the pipeline
// resumes from that step.
func (a *App) RetryJobStep(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	stepID, err := uuid.Parse(chi.URLParam(r, "step_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "step_id must be a uuid")
		return
	}
	err = a.Queue.RetryStep(r.Context(), owner.TenantID, jobID, stepID)
	switch {
	case err == nil:
		a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID.String(), "status": string(domain.JobStatusQueued)})
	case errors.Is(err, domain.ErrStepNotRetryable):
		a.error(w, http.StatusConflict, "step_not_retryable", a.localized(r, "step_not_retryable"))
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
	default:
		a.Log.Error().Err(err).Str("job_id", jobID.String()).Msg("http: step retry failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
	}
}

func (a *App) jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
