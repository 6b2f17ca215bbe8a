package climate

// Mode is the canonical operating mode of an indoor unit.
type Mode string

// Canonical operating modes. ModeOff also stands for "unknown": a unit
// reporting a mode we cannot interpret is presented as off.
const (
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
	ModeDry  Mode = "dry"
	ModeFan  Mode = "fan"
	ModeAuto Mode = "auto"
	ModeOff  Mode = "off"
)

// FanSpeed is the canonical fan speed.
type FanSpeed string

// Canonical fan speeds.
const (
	FanAuto   FanSpeed = "auto"
	FanLevel1 FanSpeed = "level_1"
	FanLevel2 FanSpeed = "level_2"
	FanLevel3 FanSpeed = "level_3"
	FanLevel4 FanSpeed = "level_4"
	FanLevel5 FanSpeed = "level_5"
)

// Swing is the canonical louvre swing mode.
type Swing string

// Canonical swing modes.
const (
	SwingOff        Swing = "off"
	SwingVertical   Swing = "vertical"
	SwingHorizontal Swing = "horizontal"
	SwingBoth       Swing = "both"
	SwingContinuous Swing = "continuous"
)

// Wire power values.
const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// Target ranges accepted by the indoor units.
const (
	MinTemperature  = 16.0
	MaxTemperature  = 32.0
	TemperatureStep = 0.5

	MinHumidity  = 40
	MaxHumidity  = 60
	HumidityStep = 5

	// DefaultTemperature is presented when a unit reports no target.
	DefaultTemperature = 22.0
)

// Info is manufacturer metadata for a unit.
type Info struct {
	Model         string `json:"model,omitempty"`
	SerialNumber  string `json:"serial_number,omitempty"`
	VendorThingID string `json:"vendor_thing_id,omitempty"`
}

// Wire holds the vendor values exactly as the last payload carried them.
// Empty strings and nil pointers mean the field was absent; defaults are
// never written here.
type Wire struct {
	Power          string   `json:"power,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	FanSpeed       string   `json:"fanSpeed,omitempty"`
	FanSwing       string   `json:"fanSwing,omitempty"`
	IDUTemperature *float64 `json:"iduTemperature,omitempty"`
	Humidity       *int     `json:"humidity,omitempty"`
}

// DeviceState is the canonical state of one indoor unit.
//
// It is rebuilt wholesale on every refresh. Between refreshes a control
// command may patch individual fields optimistically; the next refresh
// replaces them again.
type DeviceState struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FamilyID int64  `json:"family_id"`

	On                 bool     `json:"on"`
	Mode               Mode     `json:"mode"`
	FanSpeed           FanSpeed `json:"fan_speed"`
	Swing              Swing    `json:"swing"`
	TargetTemperature  float64  `json:"target_temperature"`
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	TargetHumidity     *int     `json:"target_humidity,omitempty"`
	Online             bool     `json:"online"`
	Info               Info     `json:"info"`

	Wire Wire `json:"wire"`
}

// HVACMode is the mode presented to users: a powered-off unit is off
// whatever its operating mode.
func (d DeviceState) HVACMode() Mode {
	if !d.On {
		return ModeOff
	}
	return d.Mode
}

// Clone returns a deep copy so snapshots can be patched without aliasing.
func (d DeviceState) Clone() DeviceState {
	c := d
	if d.CurrentTemperature != nil {
		v := *d.CurrentTemperature
		c.CurrentTemperature = &v
	}
	if d.TargetHumidity != nil {
		v := *d.TargetHumidity
		c.TargetHumidity = &v
	}
	if d.Wire.IDUTemperature != nil {
		v := *d.Wire.IDUTemperature
		c.Wire.IDUTemperature = &v
	}
	if d.Wire.Humidity != nil {
		v := *d.Wire.Humidity
		c.Wire.Humidity = &v
	}
	return c
}
