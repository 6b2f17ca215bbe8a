// Package history keeps what the AirCloud cloud forgets: how each unit's
// state changed over time.
//
// A Recorder subscribes to the refresh coordinator. It stores a unit's
// state in SQLite whenever it changes and writes a telemetry point per unit
// on every refresh. Old rows are pruned according to the retention setting.
package history
