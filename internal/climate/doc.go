// Package climate holds the canonical model of an AirCloud indoor unit and
// the pure functions that move between that model and vendor wire values.
//
// Normalize turns one raw idu-list entry into a DeviceState. It never
// fails: malformed fields fall back to defaults so one bad unit cannot
// hide the others.
//
// The translator tables map canonical modes, fan speeds and swing modes to
// wire values and back. Every canonical value has exactly one wire value;
// some wire values collapse onto the same canonical value (DRY_COOL reads
// as cool). Values missing from a table fall back to conservative
// defaults.
//
//	wire := climate.ModeToWire(climate.ModeCool)     // "COOLING"
//	mode := climate.ModeFromWire("DRY_COOL")         // climate.ModeCool
//	t := climate.SnapTemperature(24.3)               // 24.5
package climate
