// Package control is the façade through which every surface (REST, MQTT)
// changes an indoor unit.
//
// An Intent names only the fields the caller wants changed. The Controller
// merges it over the unit's last reported wire values, snaps temperature
// and humidity to the steps the unit accepts, and sends the complete
// command. Success patches the shared snapshot immediately; failure marks
// the unit unavailable until the next successful refresh.
package control
