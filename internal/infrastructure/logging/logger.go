package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "aircloud-bridge"

// redacted replaces the value of any attribute that looks like a credential.
const redacted = "[redacted]"

// sensitiveKeys are matched as substrings of lower-cased attribute keys.
var sensitiveKeys = []string{"password", "token", "secret", "authorization"}

// Logger wraps slog.Logger for the bridge daemon.
//
// Every entry carries the service name and version, and attributes whose
// key names a credential are redacted at the handler. The AirCloud
// password, the vendor session tokens and the API signing secret can
// therefore not reach the output even when passed by mistake.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level slog.Level
}

// Option adjusts a Logger built by New.
type Option func(*options)

type options struct {
	debugging bool
	output    io.Writer
}

// WithDebugging forces debug level regardless of the configured level.
// It is how aircloud.enable_debugging takes effect.
func WithDebugging(enabled bool) Option {
	return func(o *options) { o.debugging = enabled }
}

// WithOutput writes entries to w instead of the configured stream.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New creates a Logger.
//
// Parameters:
//   - cfg: logging section of config.yaml (level, format, output)
//   - version: application version for the default field
//   - opts: WithDebugging, WithOutput
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string, opts ...Option) *Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	output := o.output
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			output = os.Stderr
		default:
			output = os.Stdout
		}
	}

	level := parseLevel(cfg.Level)
	if o.debugging {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
	}
}

// FromConfig builds the daemon logger from the whole configuration, so
// that aircloud.enable_debugging applies.
func FromConfig(cfg *config.Config, version string) *Logger {
	return New(cfg.Logging, version, WithDebugging(cfg.AirCloud.EnableDebugging))
}

// redact blanks credential-like attributes. Groups are left alone; their
// members are visited individually.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// parseLevel converts a string log level to slog.Level.
// Unrecognised levels mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Level reports the effective minimum level.
func (l *Logger) Level() slog.Level {
	return l.level
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	coordLogger := logger.With("component", "coordinator")
//	coordLogger.Info("refresh complete") // Includes component=coordinator
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
	}
}

// Default creates the logger used before configuration is loaded: JSON
// on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
