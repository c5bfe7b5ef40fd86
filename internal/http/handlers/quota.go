package handlers

import (
	"errors"
	"net/http"

	"github.com/pawpress/server/internal/domain"
)

type quotaLine struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

type quotaResponse struct {
	TenantID string    `json:"tenant_id"`
	Images   quotaLine `json:"images"`
	Videos   quotaLine `json:"videos"`
	Credits  quotaLine `json:"credits"`
	ResetsOn string    `json:"resets_on"`
}

// QuotaStatus reports the caller's consumption against the current cycle.
func (a *App) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	acc, err := a.Ledger.Account(r.Context(), owner.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", a.localized(r, "not_found"))
			return
		}
		a.Log.Error().Err(err).Str("tenant_id", owner.TenantID).Msg("http: quota lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	a.json(w, http.StatusOK, quotaResponse{
		TenantID: acc.TenantID,
		Images: quotaLine{
			Limit:     acc.QuotaImages,
			Used:      acc.ImagesUsed,
			Remaining: acc.Remaining(domain.QuotaResourceImages),
		},
		Videos: quotaLine{
			Limit:     acc.QuotaVideos,
			Used:      acc.VideosUsed,
			Remaining: acc.Remaining(domain.QuotaResourceVideos),
		},
		Credits: quotaLine{
			Limit:     acc.QuotaCredits,
			Used:      acc.CreditsUsed,
			Remaining: acc.Remaining(domain.QuotaResourceCredits),
		},
		ResetsOn: acc.ResetsOn.Format("2006-01-02"),
	})
}
