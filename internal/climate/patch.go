package climate

// Patch is a partial update of a unit's wire values. Nil fields are left
// untouched.
type Patch struct {
	Power          *string
	Mode           *string
	FanSpeed       *string
	FanSwing       *string
	IDUTemperature *float64
	Humidity       *int
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Power == nil && p.Mode == nil && p.FanSpeed == nil &&
		p.FanSwing == nil && p.IDUTemperature == nil && p.Humidity == nil
}

// Apply writes the patched wire values and refreshes the canonical view.
// Canonical fields derive from the wire view alone, so fields outside the
// patch keep their values.
func (d *DeviceState) Apply(p Patch) {
	if p.Power != nil {
		d.Wire.Power = *p.Power
	}
	if p.Mode != nil {
		d.Wire.Mode = *p.Mode
	}
	if p.FanSpeed != nil {
		d.Wire.FanSpeed = *p.FanSpeed
	}
	if p.FanSwing != nil {
		d.Wire.FanSwing = *p.FanSwing
	}
	if p.IDUTemperature != nil {
		v := *p.IDUTemperature
		d.Wire.IDUTemperature = &v
	}
	if p.Humidity != nil {
		v := *p.Humidity
		d.Wire.Humidity = &v
	}
	d.syncCanonical()
}
