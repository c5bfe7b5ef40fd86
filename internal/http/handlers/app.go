package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/middleware"
	"github.com/pawpress/server/internal/progress"
	"github.com/pawpress/server/internal/queue"
	"github.com/pawpress/server/internal/quota"
	"github.com/pawpress/server/internal/scorer"
	"github.com/pawpress/server/internal/storage"
)

// Pinger is the slice of the database pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App bundles the services the HTTP handlers dispatch into.
type App struct {
	Queue     *queue.Service
	Monitor   *queue.Monitor
	Progress  *progress.Publisher
	Ledger    *quota.Ledger
	Selector  *scorer.Selector
	Jobs      domain.JobStore
	Providers domain.ProviderStore
	Store     *storage.FileStore
	DB        Pinger
	Config    *infra.Config
	Log       zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// currentOwner resolves the caller identity injected by the auth middleware.
func (a *App) currentOwner(r *http.Request) queue.Owner {
	return queue.Owner{
		TenantID: middleware.TenantIDFromContext(r.Context()),
		UserID:   middleware.UserIDFromContext(r.Context()),
		Region:   middleware.CountryFromContext(r.Context()),
	}
}

var localizedMessages = map[string]map[string]string{
	"en": {
		"unauthorized":       "missing user context",
		"quota_exceeded":     "monthly quota exceeded",
		"bad_request":        "invalid payload",
		"not_found":          "not found",
		"job_terminal":       "job already finished",
		"step_not_retryable": "step cannot be retried",
		"internal":           "something went wrong",
	},
	"id": {
		"unauthorized":       "konteks pengguna tidak ditemukan",
		"quota_exceeded":     "kuota bulanan terlampaui",
		"bad_request":        "payload tidak valid",
		"not_found":          "tidak ditemukan",
		"job_terminal":       "job sudah selesai",
		"step_not_retryable": "langkah tidak dapat diulang",
		"internal":           "terjadi kesalahan",
	},
}

// localized returns the message for a code in the request locale, falling
// back to English.
func (a *App) localized(r *http.Request, code string) string {
	locale := middleware.LocaleFromContext(r.Context())
	if msgs, ok := localizedMessages[locale]; ok {
		if m, ok := msgs[code]; ok {
			return m
		}
	}
	return localizedMessages["en"][code]
}
