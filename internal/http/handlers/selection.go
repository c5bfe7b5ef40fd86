package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/scorer"
)

type selectionRequest struct {
	UseCase         string  `json:"use_case"`
	Modality        string  `json:"modality"`
	Format          string  `json:"format"`
	Quality         string  `json:"quality"`
	Resolution      string  `json:"resolution"`
	DurationSeconds int     `json:"duration_seconds"`
	BudgetUnits     float64 `json:"budget_units"`
}

type selectionResponse struct {
	OK           bool           `json:"ok"`
	ProviderID   string         `json:"provider_id,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	CostUnits    float64        `json:"cost_units,omitempty"`
	ETASeconds   float64        `json:"eta_seconds,omitempty"`
	QualityScore float64        `json:"quality_score,omitempty"`
	Suggestions  []string       `json:"suggestions,omitempty"`
}

// SelectProvider runs a dry selection against the live catalog and metrics.
// A request no provider can serve within budget is a 200 with ok=false and
// suggestions, not an error.
func (a *App) SelectProvider(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", a.localized(r, "bad_request"))
		return
	}
	modality := domain.Modality(req.Modality)
	switch modality {
	case domain.ModalityImage, domain.ModalityVideo, domain.ModalityAudio:
	case "":
		modality = domain.ModalityImage
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported modality: "+req.Modality)
		return
	}

	decision, err := a.Selector.Select(r.Context(), scorer.Request{
		UseCase:         req.UseCase,
		Modality:        modality,
		Format:          req.Format,
		Quality:         req.Quality,
		Resolution:      req.Resolution,
		DurationSeconds: req.DurationSeconds,
		BudgetUnits:     req.BudgetUnits,
	})
	if err != nil {
		a.Log.Error().Err(err).Str("use_case", req.UseCase).Msg("http: selection failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	if !decision.OK {
		a.json(w, http.StatusOK, selectionResponse{OK: false, Suggestions: decision.Suggestions})
		return
	}
	a.json(w, http.StatusOK, selectionResponse{
		OK:           true,
		ProviderID:   decision.Selection.ProviderID,
		Params:       decision.Selection.Params,
		CostUnits:    decision.Selection.CostUnits,
		ETASeconds:   decision.Selection.ETASeconds,
		QualityScore: decision.Selection.QualityScore,
	})
}
