package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-projections/internal/cache"
	"github.com/albapepper/scoracle-projections/internal/config"
	"github.com/albapepper/scoracle-projections/internal/db"
	"github.com/albapepper/scoracle-projections/internal/history"
	"github.com/albapepper/scoracle-projections/internal/normalize"
)

type fakeLedger struct{}

func (fakeLedger) RecentRuns(context.Context, int) ([]db.RunRow, error) {
	return []db.RunRow{{RunID: "run-1", Succeeded: 2, PublishStatus: "published"}}, nil
}

func (fakeLedger) RunTargets(_ context.Context, runID string) ([]db.TargetRow, error) {
	if runID != "run-1" {
		return nil, nil
	}
	return []db.TargetRow{{Target: "stokastic/nba", Status: "success", Records: 2}}, nil
}

func newServer(t *testing.T, ledger bool) (*httptest.Server, *history.Store) {
	t.Helper()
	store := history.NewStore(t.TempDir(), nil)
	schema, err := normalize.SchemaFor("nba")
	require.NoError(t, err)
	records, err := normalize.Normalize("nba", []byte("Player,Salary,Pts\nA,5000,20.5\nB,4000,11.0\n"))
	require.NoError(t, err)
	_, err = store.Write(history.Snapshot{
		SourceID: "stokastic", Sport: "nba",
		Timestamp: time.Date(2025, 1, 5, 18, 30, 0, 0, time.UTC),
		Schema:    schema, Records: records,
	})
	require.NoError(t, err)

	c := cache.New(true)
	t.Cleanup(c.Close)
	deps := Deps{Store: store, Cache: c}
	if ledger {
		deps.Ledger = fakeLedger{}
	}
	srv := httptest.NewServer(NewRouter(deps, &config.Config{CORSAllowOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, url string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestListAndGetProjection(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := get(t, srv.URL+"/api/v1/projections")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Files []history.FileInfo `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Files, 1)
	require.Equal(t, "stokastic_nba.csv", list.Files[0].Name)

	resp = get(t, srv.URL+"/api/v1/projections/stokastic_nba")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	require.NotEmpty(t, resp.Header.Get("Last-Modified"))
	require.Equal(t, `inline; filename="stokastic_nba.csv"`, resp.Header.Get("Content-Disposition"))
	require.Empty(t, resp.Header.Get("X-Cache"))

	resp = get(t, srv.URL+"/api/v1/projections/stokastic_nba.csv", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/projections/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProjectionAsJSON(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := get(t, srv.URL+"/api/v1/projections/stokastic_nba?format=json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	var body struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "player", body.Columns[0])
	require.Len(t, body.Rows, 2)
	require.Equal(t, "20.5", body.Rows[0]["pts"])

	resp = get(t, srv.URL+"/api/v1/projections/stokastic_nba?format=json")
	require.Equal(t, "HIT", resp.Header.Get("X-Cache"))
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := get(t, srv.URL+"/api/v1/history/stokastic_nba")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Files []history.FileInfo `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Files, 1)
	require.Equal(t, "stokastic_nba_2025-01-05_18-30.csv", list.Files[0].Name)

	resp = get(t, srv.URL+"/api/v1/history/file/"+list.Files[0].Name)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Cache-Control"), "immutable")

	// Path tricks resolve inside the history dir only.
	resp = get(t, srv.URL+"/api/v1/history/file/..%2Fstokastic_nba.csv")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsEndpoints(t *testing.T) {
	srv, _ := newServer(t, false)
	resp := get(t, srv.URL+"/api/v1/runs")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv, _ = newServer(t, true)
	resp = get(t, srv.URL+"/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/runs?limit=500")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/runs/run-2")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	h := RateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// Burst is half the window budget.
	require.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
