package handlers

import (
	"net/http"
)

// ListProviders returns the provider catalog, enabled entries first the way
// the store orders them.
func (a *App) ListProviders(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	providers, err := a.Providers.List(r.Context())
	if err != nil {
		a.Log.Error().Err(err).Msg("http: provider list failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	items := make([]map[string]any, 0, len(providers))
	for _, p := range providers {
		items = append(items, map[string]any{
			"id":             p.ID,
			"name":           p.Name,
			"modalities":     p.Modalities,
			"formats":        p.Formats,
			"base_unit_cost": p.Cost.BaseUnitCost,
			"quality_score":  p.QualityScore,
			"avg_latency_s":  p.AvgLatencyS,
			"enabled":        p.Enabled,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
