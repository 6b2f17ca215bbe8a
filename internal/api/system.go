package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
)

// refreshTimeout bounds POST /refresh when the client keeps the
// connection open longer than a cycle should take.
const refreshTimeout = 60 * time.Second

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	coordinator.Status

	Devices       int        `json:"devices"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Version       string     `json:"version"`
}

// RefreshResponse is returned by POST /refresh.
type RefreshResponse struct {
	Outcome    coordinator.State `json:"outcome"`
	Devices    int               `json:"devices"`
	Skipped    int               `json:"skipped_groups,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

// ReauthRequest carries replacement account credentials.
type ReauthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleStatus reports the refresh coordinator's connectivity state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.coordinator.Snapshot()
	resp := StatusResponse{
		Status:        s.coordinator.Status(),
		Devices:       len(snap.Devices),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Version:       s.version,
	}
	if !snap.FetchedAt.IsZero() {
		t := snap.FetchedAt.UTC()
		resp.FetchedAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs a refresh cycle and reports its outcome.
//
// A cycle that fails still answers 200 with the outcome; only a suspended
// account (409) or an abandoned wait (503) is an HTTP error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	res, err := s.coordinator.Refresh(ctx)
	if err != nil {
		writeServiceUnavailable(w, "refresh did not complete: "+err.Error())
		return
	}
	if errors.Is(res.Err, coordinator.ErrReauthRequired) {
		writeError(w, http.StatusConflict, ErrCodeReauthRequired,
			"account credentials were rejected; POST /api/v1/account/reauth")
		return
	}

	resp := RefreshResponse{
		Outcome: res.Outcome,
		Devices: res.Devices,
		Skipped: res.SkippedGroups,
	}
	if !res.Started.IsZero() && !res.Finished.IsZero() {
		resp.DurationMS = res.Finished.Sub(res.Started).Milliseconds()
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReauth replaces the account credentials after an auth failure.
// The credentials are checked with a sign-in before anything is swapped.
func (s *Server) handleReauth(w http.ResponseWriter, r *http.Request) {
	if s.reauth == nil {
		writeServiceUnavailable(w, "re-authentication not configured")
		return
	}

	var req ReauthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "email and password are required")
		return
	}

	err := s.reauth(r.Context(), aircloud.Credentials{Email: req.Email, Password: req.Password})
	switch {
	case err == nil:
	case errors.Is(err, aircloud.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, control.CodeAuthFailed, "credentials rejected by AirCloud")
		return
	case errors.Is(err, aircloud.ErrCommunication):
		writeError(w, http.StatusServiceUnavailable, control.CodeVendorUnreachable, "AirCloud unreachable")
		return
	default:
		s.logger.Error("re-authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, control.CodeVendorError, "re-authentication failed")
		return
	}

	s.logger.Info("account credentials replaced", "email", req.Email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
