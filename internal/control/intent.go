package control

import (
	"fmt"
	"math"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
)

// Intent is a partial change requested for one unit. Nil fields keep the
// unit's last known value.
//
// A Mode of off means "power off" and leaves the operating mode as it was.
type Intent struct {
	Power       *bool             `json:"power,omitempty"`
	Mode        *climate.Mode     `json:"mode,omitempty"`
	FanSpeed    *climate.FanSpeed `json:"fan_speed,omitempty"`
	Swing       *climate.Swing    `json:"swing,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Humidity    *float64          `json:"humidity,omitempty"`
}

// Empty reports whether the intent changes nothing.
func (in Intent) Empty() bool {
	return in.Power == nil && in.Mode == nil && in.FanSpeed == nil &&
		in.Swing == nil && in.Temperature == nil && in.Humidity == nil
}

// Validate rejects intents with unknown enum values, non-finite numbers
// or a contradictory power/mode pair.
func (in Intent) Validate() error {
	if in.Empty() {
		return ErrEmptyIntent
	}
	if in.Mode != nil {
		if _, err := climate.ParseMode(string(*in.Mode)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
		if *in.Mode == climate.ModeOff && in.Power != nil && *in.Power {
			return fmt.Errorf("%w: mode off with power on", ErrInvalidIntent)
		}
	}
	if in.FanSpeed != nil {
		if _, err := climate.ParseFanSpeed(string(*in.FanSpeed)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
	}
	if in.Swing != nil {
		if _, err := climate.ParseSwing(string(*in.Swing)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
	}
	if in.Temperature != nil && !isFinite(*in.Temperature) {
		return fmt.Errorf("%w: temperature must be a number", ErrInvalidIntent)
	}
	if in.Humidity != nil && !isFinite(*in.Humidity) {
		return fmt.Errorf("%w: humidity must be a number", ErrInvalidIntent)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// build merges in over the unit's last known state and returns the full
// command to send plus the patch to apply once the vendor accepts it.
// The patch carries only the fields the intent touched.
//
// Fields the unit never reported are filled from what is presented for
// it, so a command never changes a setting the intent did not name. Mode
// is the exception: an unreported mode presents as off, which is not a
// settable wire mode, so it falls back to AUTO. Targets taken from the
// unit are snapped like user input.
func build(d climate.DeviceState, in Intent) (aircloud.ControlCommand, climate.Patch) {
	cmd := aircloud.ControlCommand{
		Power:          orWire(d.Wire.Power, climate.PowerToWire(d.On)),
		Mode:           orWire(d.Wire.Mode, aircloud.DefaultMode),
		FanSpeed:       orWire(d.Wire.FanSpeed, climate.FanSpeedToWire(d.FanSpeed)),
		FanSwing:       orWire(d.Wire.FanSwing, climate.SwingToWire(d.Swing)),
		IDUTemperature: climate.SnapTemperature(d.TargetTemperature),
	}
	if d.Wire.IDUTemperature != nil {
		cmd.IDUTemperature = climate.SnapTemperature(*d.Wire.IDUTemperature)
	}
	if d.Wire.Humidity != nil {
		h := climate.SnapHumidity(float64(*d.Wire.Humidity))
		cmd.Humidity = &h
	}

	var p climate.Patch

	if in.Power != nil {
		power := climate.PowerToWire(*in.Power)
		cmd.Power = power
		p.Power = &power
	}
	if in.Mode != nil {
		if *in.Mode == climate.ModeOff {
			power := climate.PowerOff
			cmd.Power = power
			p.Power = &power
		} else {
			mode := climate.ModeToWire(*in.Mode)
			cmd.Mode = mode
			p.Mode = &mode
		}
	}
	if in.FanSpeed != nil {
		fan := climate.FanSpeedToWire(*in.FanSpeed)
		cmd.FanSpeed = fan
		p.FanSpeed = &fan
	}
	if in.Swing != nil {
		swing := climate.SwingToWire(*in.Swing)
		cmd.FanSwing = swing
		p.FanSwing = &swing
	}
	if in.Temperature != nil {
		t := climate.SnapTemperature(*in.Temperature)
		cmd.IDUTemperature = t
		p.IDUTemperature = &t
	}
	if in.Humidity != nil {
		h := climate.SnapHumidity(*in.Humidity)
		cmd.Humidity = &h
		p.Humidity = &h
	}

	return cmd, p
}

func orWire(v, presented string) string {
	if v == "" {
		return presented
	}
	return v
}
