// Package logging provides structured logging for the AirCloud bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	aircloud:
//	  enable_debugging: true   # forces level=debug
//
// # Usage
//
//	logger := logging.FromConfig(cfg, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	coordLogger := logger.With("component", "coordinator")
//
// # Security
//
// Attributes whose key contains password, token, secret or authorization
// are written as "[redacted]". aircloud.Credentials also redacts itself
// when passed as a log attribute. Neither is a licence to log secrets.
package logging
