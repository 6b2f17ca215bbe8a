package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
)

// DeviceView is a unit as returned by the API.
type DeviceView struct {
	climate.DeviceState

	// HVACMode is "off" when the unit is powered off.
	HVACMode climate.Mode `json:"hvac_mode"`

	// Available is false when the unit is offline or its last command failed.
	Available bool `json:"available"`

	CommandFailed bool `json:"command_failed"`
}

func newDeviceView(snap coordinator.Snapshot, d climate.DeviceState) DeviceView {
	return DeviceView{
		DeviceState:   d,
		HVACMode:      d.HVACMode(),
		Available:     snap.Available(d.ID),
		CommandFailed: snap.CommandFailed(d.ID),
	}
}

// parseDeviceID reads the {id} URL parameter.
func parseDeviceID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// handleListDevices returns every unit in the current snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.coordinator.Snapshot()
	devices := make([]DeviceView, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, newDeviceView(snap, d))
	}
	resp := map[string]any{
		"devices": devices,
		"count":   len(devices),
	}
	if !snap.FetchedAt.IsZero() {
		resp["fetched_at"] = snap.FetchedAt.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetDevice returns a single unit.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(r)
	if !ok {
		writeBadRequest(w, "invalid device ID")
		return
	}

	snap := s.coordinator.Snapshot()
	d, found := snap.Device(id)
	if !found {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(snap, d))
}

// handleSetDeviceState sends a control intent to a unit.
//
// The body is a partial intent, e.g. {"power": true, "temperature": 23.5}.
// The response is 202 Accepted with the command id once the cloud has
// accepted the command; the unit's reported state follows on the next
// refresh.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(r)
	if !ok {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var in control.Intent
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := control.WithSource(r.Context(), audit.SourceAPI)
	res, err := s.controller.Apply(ctx, id, in)
	if err != nil {
		s.logger.Debug("control command rejected", "device_id", id, "error", err)
		writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}
