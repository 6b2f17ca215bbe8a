package history

import (
	"context"
	"reflect"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
)

const (
	defaultQueueSize     = 16
	defaultPruneInterval = 6 * time.Hour
	pruneTimeout         = 30 * time.Second
)

// Source publishes snapshots.
type Source interface {
	Subscribe(fn func(coordinator.Snapshot)) (unsubscribe func())
}

// Telemetry receives climate points. *influxdb.Client implements it.
type Telemetry interface {
	WriteClimateState(d climate.DeviceState, available bool, t time.Time)
}

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Source Source     // required
	Repo   Repository // optional; nil skips SQLite history
	// Telemetry is optional; nil skips time-series points.
	Telemetry Telemetry

	// Retention prunes history older than this. Zero keeps everything.
	Retention     time.Duration
	PruneInterval time.Duration
	QueueSize     int
	Logger        Logger
}

// Recorder persists published snapshots off the coordinator's goroutine.
//
// A unit's state is stored in SQLite only when it differs from the last
// stored state. Every snapshot produced by a refresh also writes one
// telemetry point per unit, so dashboards see a steady series.
type Recorder struct {
	opts   RecorderOptions
	logger Logger
	queue  chan coordinator.Snapshot

	// Owned by the Run goroutine.
	last        map[int64]climate.DeviceState
	lastFetched time.Time
}

// NewRecorder creates a Recorder. Nothing is recorded until Run.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		opts:   opts,
		logger: logger,
		queue:  make(chan coordinator.Snapshot, opts.QueueSize),
		last:   make(map[int64]climate.DeviceState),
	}
}

// Run subscribes to the source and records snapshots until ctx is
// cancelled. Snapshots already queued at cancellation are still recorded.
func (r *Recorder) Run(ctx context.Context) error {
	unsubscribe := r.opts.Source.Subscribe(r.enqueue)
	defer unsubscribe()

	var pruneC <-chan time.Time
	if r.opts.Repo != nil && r.opts.Retention > 0 {
		ticker := time.NewTicker(r.opts.PruneInterval)
		defer ticker.Stop()
		pruneC = ticker.C
		r.prune()
	}

	for {
		select {
		case snap := <-r.queue:
			r.handle(snap)
		case <-pruneC:
			r.prune()
		case <-ctx.Done():
			for {
				select {
				case snap := <-r.queue:
					r.handle(snap)
				default:
					return nil
				}
			}
		}
	}
}

// enqueue runs on the coordinator's goroutine and never blocks. When the
// queue is full the oldest pending snapshot is discarded; later snapshots
// supersede it.
func (r *Recorder) enqueue(snap coordinator.Snapshot) {
	for {
		select {
		case r.queue <- snap:
			return
		default:
		}
		select {
		case <-r.queue:
			r.logger.Warn("history queue full, dropping oldest snapshot")
		default:
		}
	}
}

func (r *Recorder) handle(snap coordinator.Snapshot) {
	source := SourceCommand
	if !snap.FetchedAt.Equal(r.lastFetched) {
		source = SourceRefresh
		r.lastFetched = snap.FetchedAt
	}
	now := time.Now()

	for _, d := range snap.Devices {
		if source == SourceRefresh && r.opts.Telemetry != nil {
			r.opts.Telemetry.WriteClimateState(d, snap.Available(d.ID), snap.FetchedAt)
		}

		if prev, ok := r.last[d.ID]; ok && reflect.DeepEqual(prev, d) {
			continue
		}
		r.last[d.ID] = d.Clone()

		if r.opts.Repo == nil {
			continue
		}
		if err := r.opts.Repo.Record(context.Background(), d, source, now); err != nil {
			r.logger.Error("recording state history failed", "device_id", d.ID, "error", err)
		}
	}
}

func (r *Recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := time.Now().Add(-r.opts.Retention)
	n, err := r.opts.Repo.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("pruning state history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned state history", "rows", n, "cutoff", cutoff)
	}
}

// CommandTelemetry receives one point per control command.
// *influxdb.Client implements it.
type CommandTelemetry interface {
	WriteCommand(deviceID int64, outcome string, duration time.Duration, t time.Time)
}

// CommandSink fans control command entries out to the command log and
// telemetry. Either may be nil.
type CommandSink struct {
	Log       *audit.Writer
	Telemetry CommandTelemetry
}

// Record implements control.Recorder.
func (s CommandSink) Record(cmd *audit.Command) {
	if s.Telemetry != nil {
		s.Telemetry.WriteCommand(cmd.DeviceID, string(cmd.Outcome), cmd.Duration, cmd.CreatedAt)
	}
	if s.Log != nil {
		s.Log.Record(cmd)
	}
}
