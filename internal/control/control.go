package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
)

// Vendor sends general control commands to the cloud.
type Vendor interface {
	ControlDevice(ctx context.Context, racID, familyID int64, cmd aircloud.ControlCommand) (aircloud.CommandAck, error)
}

// States is the refresh coordinator as seen by the façade.
type States interface {
	Device(id int64) (climate.DeviceState, bool)
	Patch(id int64, p climate.Patch) error
	MarkUnavailable(id int64)
	RequestRefresh()
}

// Recorder receives one entry per command sent. Record must not block.
type Recorder interface {
	Record(cmd *audit.Command)
}

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Controller.
type Options struct {
	Vendor   Vendor   // required
	States   States   // required
	Recorder Recorder // optional command log
	Logger   Logger
	Metrics  *Metrics
}

// Result describes an accepted command.
type Result struct {
	CommandID       string                  `json:"command_id"`
	DeviceID        int64                   `json:"device_id"`
	VendorCommandID string                  `json:"vendor_command_id,omitempty"`
	Command         aircloud.ControlCommand `json:"-"`
	State           climate.DeviceState     `json:"state"`
}

// Controller turns user intents into vendor control commands.
//
// Every command carries the unit's complete state: the intent is merged
// over the last values the vendor reported, so a single-field change never
// resets the others. On success the coordinator's snapshot is patched at
// once and a refresh is requested to confirm; on failure the unit is
// marked unavailable and its state is left alone.
type Controller struct {
	mu     sync.RWMutex
	vendor Vendor

	states   States
	recorder Recorder
	logger   Logger
	metrics  *Metrics
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Vendor == nil || opts.States == nil {
		return nil, ErrMissingDependency
	}
	c := &Controller{
		vendor:   opts.Vendor,
		states:   opts.States,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// SetVendor replaces the vendor client, used after re-authentication.
func (c *Controller) SetVendor(v Vendor) {
	c.mu.Lock()
	c.vendor = v
	c.mu.Unlock()
}

func (c *Controller) currentVendor() Vendor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vendor
}

// sourceKey carries the origin of a command (api, mqtt) for the log.
type sourceKey struct{}

// WithSource tags ctx with the surface a command came from.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the surface ctx was tagged with, api by default.
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return audit.SourceAPI
}

// Apply validates in and sends it to unit id.
func (c *Controller) Apply(ctx context.Context, id int64, in Intent) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	device, ok := c.states.Device(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}

	cmd, patch := build(device, in)
	commandID := uuid.NewString()
	started := time.Now()

	ack, err := c.currentVendor().ControlDevice(ctx, device.ID, device.FamilyID, cmd)
	elapsed := time.Since(started)

	c.record(ctx, commandID, device, in, cmd, ack, err, elapsed)
	c.metrics.observe(in, err, elapsed)

	if err != nil {
		c.states.MarkUnavailable(id)
		c.logger.Warn("control command failed",
			"device_id", id,
			"command_id", commandID,
			"error", err,
		)
		return Result{}, fmt.Errorf("controlling device %d: %w", id, err)
	}

	if err := c.states.Patch(id, patch); err != nil {
		// The unit left the snapshot while the command was in flight.
		c.logger.Debug("could not patch device after command", "device_id", id, "error", err)
	}
	c.states.RequestRefresh()

	state, _ := c.states.Device(id)
	c.logger.Info("control command accepted",
		"device_id", id,
		"command_id", commandID,
		"power", cmd.Power,
		"mode", cmd.Mode,
		"temperature", cmd.IDUTemperature,
	)

	return Result{
		CommandID:       commandID,
		DeviceID:        id,
		VendorCommandID: ack.CommandID,
		Command:         cmd,
		State:           state,
	}, nil
}

func (c *Controller) record(ctx context.Context, id string, d climate.DeviceState, in Intent,
	cmd aircloud.ControlCommand, ack aircloud.CommandAck, err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}

	intentJSON, _ := json.Marshal(in) //nolint:errcheck // plain struct
	wireJSON, _ := json.Marshal(wireView(cmd))

	entry := &audit.Command{
		ID:              id,
		DeviceID:        d.ID,
		FamilyID:        d.FamilyID,
		Source:          SourceFrom(ctx),
		Intent:          intentJSON,
		Wire:            wireJSON,
		Outcome:         audit.OutcomeSuccess,
		VendorCommandID: ack.CommandID,
		Duration:        elapsed,
		CreatedAt:       time.Now().UTC(),
	}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Error = err.Error()
	}
	c.recorder.Record(entry)
}

// wireView is the command as logged, with the field names the vendor
// uses.
func wireView(cmd aircloud.ControlCommand) map[string]any {
	m := map[string]any{
		"power":          cmd.Power,
		"mode":           cmd.Mode,
		"fanSpeed":       cmd.FanSpeed,
		"fanSwing":       cmd.FanSwing,
		"iduTemperature": cmd.IDUTemperature,
	}
	if cmd.Humidity != nil {
		m["humidity"] = *cmd.Humidity
	}
	return m
}

// SetPower turns the unit on or off.
func (c *Controller) SetPower(ctx context.Context, id int64, on bool) (Result, error) {
	return c.Apply(ctx, id, Intent{Power: &on})
}

// TurnOn powers the unit on with its last settings.
func (c *Controller) TurnOn(ctx context.Context, id int64) (Result, error) {
	return c.SetPower(ctx, id, true)
}

// TurnOff powers the unit off.
func (c *Controller) TurnOff(ctx context.Context, id int64) (Result, error) {
	return c.SetPower(ctx, id, false)
}

// SetMode changes the operating mode without touching power, except that
// off powers the unit down.
func (c *Controller) SetMode(ctx context.Context, id int64, mode climate.Mode) (Result, error) {
	return c.Apply(ctx, id, Intent{Mode: &mode})
}

// SetHVACMode is the user-facing mode switch: off powers the unit down,
// any other mode powers it on in that mode.
func (c *Controller) SetHVACMode(ctx context.Context, id int64, mode climate.Mode) (Result, error) {
	if mode == climate.ModeOff {
		return c.TurnOff(ctx, id)
	}
	on := true
	return c.Apply(ctx, id, Intent{Power: &on, Mode: &mode})
}

// SetFanSpeed changes the fan speed.
func (c *Controller) SetFanSpeed(ctx context.Context, id int64, fan climate.FanSpeed) (Result, error) {
	return c.Apply(ctx, id, Intent{FanSpeed: &fan})
}

// SetSwingMode changes the louvre swing.
func (c *Controller) SetSwingMode(ctx context.Context, id int64, swing climate.Swing) (Result, error) {
	return c.Apply(ctx, id, Intent{Swing: &swing})
}

// SetTemperature sets the target temperature, snapped to 0.5 degrees in
// [16, 32].
func (c *Controller) SetTemperature(ctx context.Context, id int64, celsius float64) (Result, error) {
	return c.Apply(ctx, id, Intent{Temperature: &celsius})
}

// SetHumidity sets the target humidity, snapped to 5 % in [40, 60].
func (c *Controller) SetHumidity(ctx context.Context, id int64, percent float64) (Result, error) {
	return c.Apply(ctx, id, Intent{Humidity: &percent})
}

// Metrics counts control commands.
type Metrics struct {
	commands *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewMetrics creates unregistered control metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aircloud_control_commands_total",
			Help: "Control commands sent, by changed field and outcome",
		}, []string{"field", "outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aircloud_control_command_duration_seconds",
			Help:    "Round-trip time of control commands",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.commands); err != nil {
		return err
	}
	return reg.Register(m.latency)
}

func (m *Metrics) observe(in Intent, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := string(audit.OutcomeSuccess)
	if err != nil {
		outcome = string(audit.OutcomeFailed)
	}
	for _, field := range intentFields(in) {
		m.commands.WithLabelValues(field, outcome).Inc()
	}
	m.latency.Observe(elapsed.Seconds())
}

func intentFields(in Intent) []string {
	var fields []string
	if in.Power != nil {
		fields = append(fields, "power")
	}
	if in.Mode != nil {
		fields = append(fields, "mode")
	}
	if in.FanSpeed != nil {
		fields = append(fields, "fan_speed")
	}
	if in.Swing != nil {
		fields = append(fields, "swing")
	}
	if in.Temperature != nil {
		fields = append(fields, "temperature")
	}
	if in.Humidity != nil {
		fields = append(fields, "humidity")
	}
	return fields
}
