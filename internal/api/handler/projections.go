package handler

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-projections/internal/api/respond"
	"github.com/albapepper/scoracle-projections/internal/cache"
	"github.com/albapepper/scoracle-projections/internal/history"
)

// ListProjections lists the current projection files.
func (h *Handler) ListProjections(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListCurrent()
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LIST_FAILED", "Could not list projections", err.Error())
		return
	}
	if files == nil {
		files = []history.FileInfo{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"files": files})
}

// GetProjection serves a current file, e.g. /projections/stokastic_nba.
// ?format=json returns rows as objects keyed by column.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	data, info, err := h.store.ReadCurrent(chi.URLParam(r, "name"))
	h.serveFile(w, r, data, info, err, cache.TTLCurrent)
}

// ListHistory lists history files for a base name, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListHistory(chi.URLParam(r, "base"))
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LIST_FAILED", "Could not list history", err.Error())
		return
	}
	if files == nil {
		files = []history.FileInfo{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"files": files})
}

// GetHistoryFile serves one history file.
func (h *Handler) GetHistoryFile(w http.ResponseWriter, r *http.Request) {
	data, info, err := h.store.ReadHistory(chi.URLParam(r, "name"))
	h.serveFile(w, r, data, info, err, cache.TTLHistory)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, data []byte, info history.FileInfo, err error, ttl time.Duration) {
	if errors.Is(err, history.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Projection file not found")
		return
	}
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "READ_FAILED", "Could not read projection file", err.Error())
		return
	}

	etag := cache.ComputeETag(data)
	inm := r.Header.Get("If-None-Match")
	if r.URL.Query().Get("format") != "json" {
		if cache.CheckETagMatch(inm, etag) {
			respond.WriteNotModified(w, etag, info.ModTime)
			return
		}
		respond.WriteCSV(w, respond.Payload{Body: data, Name: info.Name, ETag: etag, Modified: info.ModTime, TTL: ttl})
		return
	}

	// JSON renderings are cached by content.
	cacheKey := "json:" + info.Name + ":" + etag
	body, jsonETag, hit := h.cache.Get(cacheKey)
	if !hit {
		if body, err = csvToJSON(data); err != nil {
			respond.WriteErrorDetail(w, http.StatusInternalServerError, "DECODE_FAILED", "Could not decode projection file", err.Error())
			return
		}
		jsonETag = h.cache.Set(cacheKey, body, ttl)
	}
	if cache.CheckETagMatch(inm, jsonETag) {
		respond.WriteNotModified(w, jsonETag, info.ModTime)
		return
	}
	respond.WriteJSON(w, respond.Payload{Body: body, ETag: jsonETag, Modified: info.ModTime, TTL: ttl, Cached: &hit})
}

// csvToJSON renders a canonical CSV as {"columns": [...], "rows": [{...}]}.
func csvToJSON(data []byte) ([]byte, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	out := struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	}{Columns: []string{}, Rows: []map[string]string{}}
	if len(rows) > 0 {
		out.Columns = rows[0]
		for _, row := range rows[1:] {
			m := make(map[string]string, len(out.Columns))
			for i, col := range out.Columns {
				if i < len(row) {
					m[col] = row[i]
				}
			}
			out.Rows = append(out.Rows, m)
		}
	}
	return json.Marshal(out)
}
