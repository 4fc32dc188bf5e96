// Package handler implements the read-only HTTP API serving cached refresh
// views and snapshot history.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// writeJSON marshals v and writes it with the given status code. A marshal
// failure degrades to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// historyOpts are the query parameters accepted by the history endpoint.
type historyOpts struct {
	Since time.Time
	Limit int
}

// parseHistoryOpts extracts since (RFC 3339 or unix seconds) and limit from
// the query string. Defaults: last 7 days, limit 500 (max 2000).
func parseHistoryOpts(r *http.Request, now time.Time) historyOpts {
	q := r.URL.Query()

	since := now.Add(-7 * 24 * time.Hour)
	if v := q.Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			since = ts
		} else if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.Unix(unix, 0).UTC()
		}
	}

	limit := 500
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 2000 {
		limit = 2000
	}

	return historyOpts{Since: since, Limit: limit}
}
