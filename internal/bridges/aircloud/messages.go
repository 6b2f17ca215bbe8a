package aircloud

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
)

// BridgeID identifies this bridge in health messages.
const BridgeID = "aircloud"

// StateMessage is the retained state of one unit.
// Topic: {prefix}/state/{device_id}
// QoS: configured, Retained: Yes
type StateMessage struct {
	DeviceID int64 `json:"device_id"`

	// Timestamp is when the state was fetched from the cloud.
	Timestamp time.Time `json:"timestamp"`

	// Available is false after a command to the unit failed and until the
	// next successful refresh.
	Available bool `json:"available"`

	// HVACMode is "off" when the unit is powered off, otherwise its mode.
	HVACMode climate.Mode `json:"hvac_mode"`

	State climate.DeviceState `json:"state"`
}

// NewStateMessage builds the state message for d.
func NewStateMessage(d climate.DeviceState, available bool, fetchedAt time.Time) StateMessage {
	return StateMessage{
		DeviceID:  d.ID,
		Timestamp: fetchedAt.UTC(),
		Available: available,
		HVACMode:  d.HVACMode(),
		State:     d,
	}
}

// CommandMessage is a control intent for one unit.
// Topic: {prefix}/command/{device_id}
type CommandMessage struct {
	// ID is an optional client correlation id echoed in the ack.
	ID string `json:"id,omitempty"`

	control.Intent
}

// ParseCommand decodes a command payload.
func ParseCommand(payload []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return cmd, nil
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the cloud accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or could not be delivered.
	AckFailed AckStatus = "failed"
)

// AckMessage answers one command.
// Topic: {prefix}/ack/{device_id}
// QoS: configured, Retained: No
type AckMessage struct {
	// RequestID echoes CommandMessage.ID.
	RequestID string `json:"request_id,omitempty"`

	// CommandID is the bridge's id for the command, also used in the
	// command log. Empty when the command never reached the controller.
	CommandID string `json:"command_id,omitempty"`

	DeviceID  int64     `json:"device_id"`
	Status    AckStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	// State is the unit's state after an accepted command.
	State *climate.DeviceState `json:"state,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError carries the stable error code of a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage builds the ack for an accepted command.
func NewAckMessage(requestID string, res control.Result) AckMessage {
	state := res.State
	return AckMessage{
		RequestID: requestID,
		CommandID: res.CommandID,
		DeviceID:  res.DeviceID,
		Status:    AckAccepted,
		Timestamp: time.Now().UTC(),
		State:     &state,
	}
}

// NewAckError builds the ack for a failed command.
func NewAckError(requestID string, deviceID int64, code string, err error) AckMessage {
	return AckMessage{
		RequestID: requestID,
		DeviceID:  deviceID,
		Status:    AckFailed,
		Timestamp: time.Now().UTC(),
		Error: &AckError{
			Code:    code,
			Message: err.Error(),
		},
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy means the last refresh succeeded and MQTT is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means the last refresh failed but the session is valid.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy means the cloud rejected the credentials; refreshes
	// are suspended until the account is re-authenticated.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting is published before the first refresh completes.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published during graceful shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: {prefix}/health
// QoS: configured, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// DevicesManaged is the number of units in the current snapshot.
	DevicesManaged int `json:"devices_managed"`

	LastUpdateSuccess bool       `json:"last_update_success"`
	LastSuccess       *time.Time `json:"last_success,omitempty"`
	ReauthRequired    bool       `json:"reauth_required"`

	// Reason explains a degraded or unhealthy status.
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage builds a health message from the coordinator status.
func NewHealthMessage(status HealthStatus, version string, started time.Time, devices int, st coordinator.Status) HealthMessage {
	msg := HealthMessage{
		Bridge:            BridgeID,
		Timestamp:         time.Now().UTC(),
		Status:            status,
		Version:           version,
		UptimeSeconds:     int64(time.Since(started).Seconds()),
		DevicesManaged:    devices,
		LastUpdateSuccess: st.LastUpdateSuccess,
		ReauthRequired:    st.ReauthRequired,
		Reason:            st.LastError,
	}
	if !st.LastSuccess.IsZero() {
		t := st.LastSuccess.UTC()
		msg.LastSuccess = &t
	}
	return msg
}
