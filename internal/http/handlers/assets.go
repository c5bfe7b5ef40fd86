package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pawpress/server/internal/domain"
)

var mimeByFormat = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"zip":  "application/zip",
}

// DownloadResult streams the final artifact of a completed job. Carousel
// jobs serve their bundled archive, everything else the single asset.
func (a *App) DownloadResult(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := a.Jobs.GetForTenant(r.Context(), owner.TenantID, jobID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
		return
	}
	if job.Status != domain.JobStatusDone || len(job.Result) == 0 {
		a.error(w, http.StatusConflict, "not_ready", "job has no result yet")
		return
	}

	var result struct {
		AssetKey string `json:"asset_key"`
		Format   string `json:"format"`
	}
	if err := json.Unmarshal(job.Result, &result); err != nil || result.AssetKey == "" {
		a.error(w, http.StatusNotFound, "not_found", "result has no downloadable asset")
		return
	}

	data, err := a.Store.Read(r.Context(), result.AssetKey)
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", jobID.String()).Str("asset_key", result.AssetKey).Msg("http: artifact read failed")
		a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
		return
	}

	mime, ok := mimeByFormat[result.Format]
	if !ok {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.%s", jobID, result.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
