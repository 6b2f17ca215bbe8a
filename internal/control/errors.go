package control

import "errors"

// Domain-specific errors for the control façade.
var (
	// ErrDeviceNotFound is returned when the unit is not in the current
	// snapshot. No command is sent.
	ErrDeviceNotFound = errors.New("control: device not found")

	// ErrEmptyIntent is returned for an intent that sets no field.
	ErrEmptyIntent = errors.New("control: intent changes nothing")

	// ErrInvalidIntent is returned for unknown enum values or numbers that
	// cannot be snapped.
	ErrInvalidIntent = errors.New("control: invalid intent")

	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("control: missing dependency")
)
