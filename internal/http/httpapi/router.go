package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	mw "server/internal/middleware"
)

// NewRouter wires the HTTP surface: health unauthenticated, everything under
// /api/v1 behind gateway identity and per-user rate limiting.
func NewRouter(app *handlers.App, logger infra.Logger, rateLimitPerMin int, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.CORS(allowedOrigins),
		mw.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Identity)
		r.Use(mw.RateLimit(rateLimitPerMin))

		r.Route("/videos", func(r chi.Router) {
			r.Post("/generate", app.VideosGenerate)
			r.Get("/", app.VideosList)
			r.Get("/{video_id}/status", app.VideoStatus)
			r.Delete("/{video_id}", app.VideoCancel)
		})

		r.Get("/providers", app.ProvidersList)
		r.Get("/providers/{provider_type}", app.ProviderGet)

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Get("/transactions", app.CreditsTransactions)
		})
	})

	return r
}
