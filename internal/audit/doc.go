// Package audit records every control command the bridge sends to the
// AirCloud cloud, successful or not, in the command_log table.
//
// Writes go through a Writer, which buffers entries and stores them on
// its own goroutine so a slow disk never delays a command. When the
// buffer is full, entries are dropped with a warning.
package audit
