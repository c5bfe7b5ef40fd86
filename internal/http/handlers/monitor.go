package handlers

import (
	"net/http"
	"strconv"
)

// QueueStats is the operator diagnostic view: counts per status, oldest
// queued age, stuck-processing count, and the most recent jobs.
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	stats, err := a.Monitor.Stats(r.Context(), limit)
	if err != nil {
		a.Log.Error().Err(err).Msg("http: queue stats failed")
		a.error(w, http.StatusInternalServerError, "internal", a.localized(r, "internal"))
		return
	}
	a.json(w, http.StatusOK, stats)
}
