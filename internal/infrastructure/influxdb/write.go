package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/aircloud-bridge/internal/climate"
)

// Measurement names.
const (
	MeasurementClimate = "aircloud_climate"
	MeasurementRefresh = "aircloud_refresh"
	MeasurementCommand = "aircloud_command"
)

// WriteClimateState records one unit's state as observed at t.
//
// Tags identify the unit; fields carry its settings. The current room
// temperature and target humidity are only written when the unit reported
// them.
func (c *Client) WriteClimateState(d climate.DeviceState, available bool, t time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(ClimatePoint(d, available, t))
}

// ClimatePoint builds the point written by WriteClimateState.
func ClimatePoint(d climate.DeviceState, available bool, t time.Time) *write.Point {
	tags := map[string]string{
		"device_id": strconv.FormatInt(d.ID, 10),
		"family_id": strconv.FormatInt(d.FamilyID, 10),
	}
	if d.Name != "" {
		tags["name"] = d.Name
	}
	fields := map[string]interface{}{
		"on":                 d.On,
		"online":             d.Online,
		"available":          available,
		"hvac_mode":          string(d.HVACMode()),
		"mode":               string(d.Mode),
		"fan_speed":          string(d.FanSpeed),
		"swing":              string(d.Swing),
		"target_temperature": d.TargetTemperature,
	}
	if d.CurrentTemperature != nil {
		fields["room_temperature"] = *d.CurrentTemperature
	}
	if d.TargetHumidity != nil {
		fields["target_humidity"] = int64(*d.TargetHumidity)
	}
	return write.NewPoint(MeasurementClimate, tags, fields, t)
}

// WriteRefresh records the outcome of one refresh cycle.
func (c *Client) WriteRefresh(outcome string, devices int, duration time.Duration, t time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementRefresh,
		map[string]string{"outcome": outcome},
		map[string]interface{}{
			"devices":     int64(devices),
			"duration_ms": duration.Milliseconds(),
		},
		t,
	))
}

// WriteCommand records one control command.
func (c *Client) WriteCommand(deviceID int64, outcome string, duration time.Duration, t time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementCommand,
		map[string]string{
			"device_id": strconv.FormatInt(deviceID, 10),
			"outcome":   outcome,
		},
		map[string]interface{}{"duration_ms": duration.Milliseconds()},
		t,
	))
}
