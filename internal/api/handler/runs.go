package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-projections/internal/api/respond"
)

// GetRuns returns recent scrape runs, newest first. ?limit= caps the count.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "LEDGER_DISABLED", "Run ledger is not configured")
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	runs, err := h.ledger.RecentRuns(r.Context(), limit)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not load runs", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRunTargets returns the per-target outcomes of one run.
func (h *Handler) GetRunTargets(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "LEDGER_DISABLED", "Run ledger is not configured")
		return
	}
	runID := chi.URLParam(r, "runID")
	targets, err := h.ledger.RunTargets(r.Context(), runID)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not load run", err.Error())
		return
	}
	if len(targets) == 0 {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Run not found")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"run_id": runID, "targets": targets})
}
