package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pawpress/server/internal/http/handlers"
	"github.com/pawpress/server/internal/middleware"
)

// NewRouter assembles the public API surface. The probe and docs routes stay
// outside the auth fence; everything else requires a bearer token.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Log),
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.I18N(app.Config.DefaultLocale, lookup),
	)
	if app.Config.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.EnqueueJob)
			r.Post("/unblock", app.UnblockJobs)
			r.Get("/{job_id}", app.JobStatus)
			r.Get("/{job_id}/wait", app.WaitJob)
			r.Get("/{job_id}/download", app.DownloadResult)
			r.Post("/{job_id}/cancel", app.CancelJob)
			r.Post("/{job_id}/steps/{step_id}/retry", app.RetryJobStep)
		})

		r.Route("/v1/providers", func(r chi.Router) {
			r.Get("/", app.ListProviders)
			r.Post("/select", app.SelectProvider)
		})

		r.Get("/v1/quota", app.QuotaStatus)
		r.Get("/v1/admin/queue", app.QueueStats)
	})

	return r
}
