package climate

import (
	"fmt"
	"math"
)

// Wire operating modes.
const (
	WireModeHeating = "HEATING"
	WireModeCooling = "COOLING"
	WireModeDry     = "DRY"
	WireModeFan     = "FAN"
	WireModeAuto    = "AUTO"
	WireModeDryCool = "DRY_COOL"
	WireModeUnknown = "UNKNOWN"
)

// modeToWire is the authoritative table. Every canonical mode has exactly
// one wire value.
var modeToWire = map[Mode]string{
	ModeHeat: WireModeHeating,
	ModeCool: WireModeCooling,
	ModeDry:  WireModeDry,
	ModeFan:  WireModeFan,
	ModeAuto: WireModeAuto,
	ModeOff:  WireModeUnknown,
}

// modeFromWire is the inverse of modeToWire plus lossy aliases.
// DRY_COOL collapses onto cool and must stay that way.
var modeFromWire = map[string]Mode{
	WireModeHeating: ModeHeat,
	WireModeCooling: ModeCool,
	WireModeDry:     ModeDry,
	WireModeFan:     ModeFan,
	WireModeAuto:    ModeAuto,
	WireModeUnknown: ModeOff,
	WireModeDryCool: ModeCool,
}

var fanToWire = map[FanSpeed]string{
	FanAuto:   "AUTO",
	FanLevel1: "LV1",
	FanLevel2: "LV2",
	FanLevel3: "LV3",
	FanLevel4: "LV4",
	FanLevel5: "LV5",
}

var fanFromWire = invert(fanToWire)

var swingToWire = map[Swing]string{
	SwingOff:        "OFF",
	SwingVertical:   "VERTICAL",
	SwingHorizontal: "HORIZONTAL",
	SwingBoth:       "ALL",
	SwingContinuous: "AUTO",
}

var swingFromWire = invert(swingToWire)

func invert[K ~string](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// ModeToWire maps a canonical mode to its wire value. Unknown modes
// are sent as AUTO.
func ModeToWire(m Mode) string {
	if w, ok := modeToWire[m]; ok {
		return w
	}
	return WireModeAuto
}

// ModeFromWire maps a wire mode to the canonical vocabulary. Unknown or
// missing values become ModeOff.
func ModeFromWire(w string) Mode {
	if m, ok := modeFromWire[w]; ok {
		return m
	}
	return ModeOff
}

// FanSpeedToWire maps a canonical fan speed to its wire value. Unknown
// speeds are sent as AUTO.
func FanSpeedToWire(f FanSpeed) string {
	if w, ok := fanToWire[f]; ok {
		return w
	}
	return fanToWire[FanAuto]
}

// FanSpeedFromWire maps a wire fan speed to the canonical vocabulary.
// Unknown or missing values become FanAuto.
func FanSpeedFromWire(w string) FanSpeed {
	if f, ok := fanFromWire[w]; ok {
		return f
	}
	return FanAuto
}

// SwingToWire maps a canonical swing mode to its wire value. Unknown
// modes are sent as OFF, matching what the vendor app does.
func SwingToWire(s Swing) string {
	if w, ok := swingToWire[s]; ok {
		return w
	}
	return swingToWire[SwingOff]
}

// SwingFromWire maps a wire swing value to the canonical vocabulary.
// Unknown or missing values become SwingOff.
func SwingFromWire(w string) Swing {
	if s, ok := swingFromWire[w]; ok {
		return s
	}
	return SwingOff
}

// PowerFromWire reports whether a wire power value means on. A missing
// value counts as on.
func PowerFromWire(w string) bool {
	return w != PowerOff
}

// PowerToWire maps a power flag to its wire value.
func PowerToWire(on bool) string {
	if on {
		return PowerOn
	}
	return PowerOff
}

// SnapTemperature rounds to the nearest 0.5 degree and clamps to the
// supported target range.
func SnapTemperature(t float64) float64 {
	if math.IsNaN(t) {
		return DefaultTemperature
	}
	snapped := math.Round(t/TemperatureStep) * TemperatureStep
	return math.Min(MaxTemperature, math.Max(MinTemperature, snapped))
}

// SnapHumidity rounds to the nearest 5 % and clamps to the supported range.
func SnapHumidity(h float64) int {
	if math.IsNaN(h) {
		return MinHumidity
	}
	snapped := int(math.Round(h/HumidityStep)) * HumidityStep
	return min(MaxHumidity, max(MinHumidity, snapped))
}

// Modes lists every canonical mode.
func Modes() []Mode {
	return []Mode{ModeHeat, ModeCool, ModeDry, ModeFan, ModeAuto, ModeOff}
}

// FanSpeeds lists every canonical fan speed.
func FanSpeeds() []FanSpeed {
	return []FanSpeed{FanAuto, FanLevel1, FanLevel2, FanLevel3, FanLevel4, FanLevel5}
}

// Swings lists every canonical swing mode.
func Swings() []Swing {
	return []Swing{SwingOff, SwingVertical, SwingHorizontal, SwingBoth, SwingContinuous}
}

// ParseMode validates a canonical mode name supplied by a user.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeToWire[m]; !ok {
		return "", fmt.Errorf("%w: mode %q", ErrUnknownValue, s)
	}
	return m, nil
}

// ParseFanSpeed validates a canonical fan speed name supplied by a user.
func ParseFanSpeed(s string) (FanSpeed, error) {
	f := FanSpeed(s)
	if _, ok := fanToWire[f]; !ok {
		return "", fmt.Errorf("%w: fan speed %q", ErrUnknownValue, s)
	}
	return f, nil
}

// ParseSwing validates a canonical swing name supplied by a user.
func ParseSwing(s string) (Swing, error) {
	sw := Swing(s)
	if _, ok := swingToWire[sw]; !ok {
		return "", fmt.Errorf("%w: swing mode %q", ErrUnknownValue, s)
	}
	return sw, nil
}
