package climate

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize converts one raw indoor-unit payload into a DeviceState tagged
// with its owning family group.
//
// It never fails. Fields that are missing or of the wrong type are treated
// as absent: the Wire view keeps them empty and the canonical view shows
// the presentation default. A payload that is not a JSON object yields a
// state with ID 0.
func Normalize(raw json.RawMessage, familyID int64) DeviceState {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		fields = map[string]any{}
	}

	state := DeviceState{
		FamilyID: familyID,
		Wire: Wire{
			Power:          stringField(fields, "power"),
			Mode:           stringField(fields, "mode"),
			FanSpeed:       stringField(fields, "fanSpeed"),
			FanSwing:       stringField(fields, "fanSwing"),
			IDUTemperature: floatField(fields, "iduTemperature"),
			Humidity:       intField(fields, "humidity"),
		},
		Info: Info{
			Model:         stringField(fields, "model"),
			SerialNumber:  stringField(fields, "serialNumber"),
			VendorThingID: stringField(fields, "vendorThingId"),
		},
		CurrentTemperature: floatField(fields, "roomTemperature"),
	}

	if id := intField(fields, "id"); id != nil {
		state.ID = int64(*id)
	}
	state.Name = stringField(fields, "name")
	if state.Name == "" && state.ID != 0 {
		state.Name = "AirCloud " + strconv.FormatInt(state.ID, 10)
	}
	if online, ok := fields["online"].(bool); ok {
		state.Online = online
	}

	state.syncCanonical()
	return state
}

// NormalizeList normalizes every entry of an idu-list response. Entries
// without a usable id are skipped and counted; they never prevent the
// rest of the list from being normalized.
func NormalizeList(raws []json.RawMessage, familyID int64) (states []DeviceState, skipped int) {
	states = make([]DeviceState, 0, len(raws))
	for _, raw := range raws {
		s := Normalize(raw, familyID)
		if s.ID == 0 {
			skipped++
			continue
		}
		states = append(states, s)
	}
	return states, skipped
}

// syncCanonical rebuilds the canonical fields from the Wire view,
// applying presentation defaults for absent values. Targets are snapped
// to their step; Wire keeps what the unit reported.
func (d *DeviceState) syncCanonical() {
	d.On = PowerFromWire(d.Wire.Power)
	d.Mode = ModeFromWire(d.Wire.Mode)
	d.FanSpeed = FanSpeedFromWire(d.Wire.FanSpeed)
	d.Swing = SwingFromWire(d.Wire.FanSwing)

	d.TargetTemperature = DefaultTemperature
	if d.Wire.IDUTemperature != nil {
		d.TargetTemperature = SnapTemperature(*d.Wire.IDUTemperature)
	}

	d.TargetHumidity = nil
	if d.Wire.Humidity != nil {
		h := SnapHumidity(float64(*d.Wire.Humidity))
		d.TargetHumidity = &h
	}
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func floatField(fields map[string]any, key string) *float64 {
	var f float64
	var err error
	switch v := fields[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return nil
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intField(fields map[string]any, key string) *int {
	f := floatField(fields, key)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	n := int(*f)
	return &n
}
