package httpapi

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tutor/internal/http/handlers"
	"tutor/internal/metrics"
	"tutor/internal/middleware"
)

// Options carries the cross-cutting pieces the router wires around App.
type Options struct {
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	RateLimiter   *middleware.RateLimiter
	JWTSecret     string
	DefaultPlan   string
	DefaultLocale string
	CORSOrigins   []string
	CountryLookup middleware.CountryLookup
	// Static serves stored attachments under /static/. Nil disables the route.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		opts.Metrics.Middleware,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Readiness)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	if opts.Static != nil {
		r.Method(http.MethodGet, "/static/*", http.StripPrefix("/static", opts.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret, opts.DefaultPlan))
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}

		r.Get("/v1/plans", app.PlansList)
		r.Get("/v1/usage", app.UsageGet)
		r.Post("/v1/conversations/messages", app.ConverseMessage)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/", app.SessionsList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.SessionGet)
				r.Get("/messages", app.SessionMessages)
				r.Post("/end", app.SessionEnd)
				r.Get("/export", app.SessionExport)
				r.Patch("/messages/{messageID}", app.MessageEdit)
				r.Delete("/messages/{messageID}", app.MessageDelete)
			})
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/usage/{userID}/reset", app.AdminUsageReset)
		})
	})

	return r
}
