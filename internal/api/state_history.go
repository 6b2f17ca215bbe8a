package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/history"
)

const maxHistoryLimit = 500

// handleGetDeviceHistory returns recorded states of a unit, newest first.
//
// Query parameters:
//   - since: RFC 3339 lower bound
//   - limit: max results (default 50, max 500)
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, "state history not configured")
		return
	}

	id, ok := parseDeviceID(r)
	if !ok {
		writeBadRequest(w, "invalid device ID")
		return
	}

	q := history.Query{DeviceID: id}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid since timestamp")
			return
		}
		q.Since = since
	}

	entries, err := s.history.List(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to list state history", "device_id", id, "error", err)
		writeInternalError(w, "failed to list state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}
