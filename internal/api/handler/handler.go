// Package handler provides HTTP handlers for all API endpoints.
// Projection CSVs are served straight from the history store; run outcomes
// come from the Postgres ledger when one is configured.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-projections/internal/api/respond"
	"github.com/albapepper/scoracle-projections/internal/cache"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/db"
	"github.com/albapepper/scoracle-projections/internal/history"
)

// RunLedger is the read side of the run ledger.
type RunLedger interface {
	RecentRuns(ctx context.Context, limit int) ([]db.RunRow, error)
	RunTargets(ctx context.Context, runID string) ([]db.TargetRow, error)
}

// Pinger reports database reachability.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store  *history.Store
	ledger RunLedger
	pinger Pinger
	cache  *cache.Cache
	cfg    *config.Config
}

// New creates a Handler with shared dependencies. ledger and pinger may be nil.
func New(store *history.Store, ledger RunLedger, pinger Pinger, c *cache.Cache, cfg *config.Config) *Handler {
	return &Handler{store: store, ledger: ledger, pinger: pinger, cache: c, cfg: cfg}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Scoracle Projections API",
		"version": "1.0.0",
		"status":  "running",
		"ledger":  h.ledger != nil,
		"endpoints": []string{
			"/api/v1/projections",
			"/api/v1/projections/{name}",
			"/api/v1/history/{base}",
			"/api/v1/history/file/{name}",
			"/api/v1/runs",
			"/api/v1/runs/{runID}",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "not configured",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.pinger.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
