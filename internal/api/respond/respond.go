// Package respond writes projection files, JSON documents and errors for the
// API handlers.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrorResponse is the error body of every non-2xx response.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

// Payload is a rendered projection file plus its HTTP validators.
type Payload struct {
	Body     []byte
	Name     string // file name, sent as Content-Disposition when set
	ETag     string
	Modified time.Time
	TTL      time.Duration
	// Cached is set for bodies served from the render cache; it drives
	// X-Cache. Raw CSV reads leave it nil.
	Cached *bool
}

// WriteCSV sends a canonical CSV file.
func WriteCSV(w http.ResponseWriter, p Payload) {
	writePayload(w, "text/csv; charset=utf-8", p)
}

// WriteJSON sends a pre-rendered JSON projection document.
func WriteJSON(w http.ResponseWriter, p Payload) {
	writePayload(w, "application/json", p)
}

func writePayload(w http.ResponseWriter, contentType string, p Payload) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	if p.Name != "" {
		h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", p.Name))
	}
	setValidators(w, p.ETag, p.Modified)
	h.Set("Vary", "Accept-Encoding")
	h.Set("Cache-Control", cacheControl(p.TTL))
	if p.Cached != nil {
		if *p.Cached {
			h.Set("X-Cache", "HIT")
		} else {
			h.Set("X-Cache", "MISS")
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write(p.Body)
}

// WriteNotModified sends a 304 carrying the same validators as the 200.
func WriteNotModified(w http.ResponseWriter, etag string, modified time.Time) {
	setValidators(w, etag, modified)
	w.WriteHeader(http.StatusNotModified)
}

func setValidators(w http.ResponseWriter, etag string, modified time.Time) {
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	if !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
}

// History files never change once written; a day-long TTL marks them immutable.
func cacheControl(ttl time.Duration) string {
	maxAge := int(ttl.Seconds())
	if ttl >= 24*time.Hour {
		return fmt.Sprintf("public, max-age=%d, immutable", maxAge)
	}
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAge, maxAge/2)
}

// WriteError sends an error body without detail.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetail(w, status, code, message, "")
}

// WriteErrorDetail sends an error body. Errors are never cached.
func WriteErrorDetail(w http.ResponseWriter, status int, code, message, detail string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Detail = detail
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	WriteJSONObject(w, status, resp)
}

// WriteJSONObject encodes v: listings, runs and health checks.
func WriteJSONObject(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
