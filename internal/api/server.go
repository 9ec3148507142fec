package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/albapepper/scoracle-projections/internal/api/handler"
	"github.com/albapepper/scoracle-projections/internal/cache"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/history"
)

// Deps are the router's collaborators. Ledger and Pinger may be nil.
type Deps struct {
	Store  *history.Store
	Ledger handler.RunLedger
	Pinger handler.Pinger
	Cache  *cache.Cache
	Logger *slog.Logger
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps Deps, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS: the downstream HTML tools fetch CSVs cross-origin.
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag", "Last-Modified", "Content-Disposition"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	appCache := deps.Cache
	if appCache == nil {
		appCache = cache.New(false)
	}
	h := handler.New(deps.Store, deps.Ledger, deps.Pinger, appCache, cfg)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Current projections
		r.Get("/projections", h.ListProjections)
		r.Get("/projections/{name}", h.GetProjection)

		// History
		r.Get("/history/{base}", h.ListHistory)
		r.Get("/history/file/{name}", h.GetHistoryFile)

		// Run ledger
		r.Get("/runs", h.GetRuns)
		r.Get("/runs/{runID}", h.GetRunTargets)
	})

	return r
}
