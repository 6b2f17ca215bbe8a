package aircloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/mqtt"
)

// defaultCommandTimeout bounds one command from receipt to vendor ack.
const defaultCommandTimeout = 30 * time.Second

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client implements it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// States is the refresh coordinator as seen by the bridge.
type States interface {
	StatusSource
	Subscribe(fn func(coordinator.Snapshot)) (unsubscribe func())
}

// Controller applies control intents. *control.Controller implements it.
type Controller interface {
	Apply(ctx context.Context, id int64, in control.Intent) (control.Result, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	MQTTClient MQTTClient  // required
	States     States      // required
	Controller Controller  // required
	Topics     mqtt.Topics // zero value uses the default prefix
	QoS        byte

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// CommandTimeout defaults to 30 seconds.
	CommandTimeout time.Duration

	Version string
	Logger  Logger
}

// Bridge publishes unit state to MQTT and executes MQTT commands.
type Bridge struct {
	mqtt       MQTTClient
	states     States
	controller Controller
	topics     mqtt.Topics
	qos        byte
	timeout    time.Duration
	health     *HealthReporter
	logger     Logger

	pending chan coordinator.Snapshot
	resync  chan struct{}

	// ctx is the Run context; commands derive their deadline from it so
	// shutdown aborts them.
	ctx   context.Context
	ctxMu sync.RWMutex

	// published holds the last payload key per unit. Owned by Run.
	published map[int64][]byte
}

// NewBridge creates a new bridge instance. Call Run to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	switch {
	case opts.MQTTClient == nil:
		return nil, fmt.Errorf("%w: MQTT client", ErrMissingDependency)
	case opts.States == nil:
		return nil, fmt.Errorf("%w: states", ErrMissingDependency)
	case opts.Controller == nil:
		return nil, fmt.Errorf("%w: controller", ErrMissingDependency)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		mqtt:       opts.MQTTClient,
		states:     opts.States,
		controller: opts.Controller,
		topics:     opts.Topics,
		qos:        opts.QoS,
		timeout:    opts.CommandTimeout,
		logger:     logger,
		pending:    make(chan coordinator.Snapshot, 1),
		resync:     make(chan struct{}, 1),
		ctx:        context.Background(),
		published:  make(map[int64][]byte),
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		Topic:     opts.Topics.Health(),
		QoS:       opts.QoS,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    opts.States,
		Logger:    logger,
	})
	return b, nil
}

// Run subscribes to command topics, publishes the current state of every
// unit and keeps publishing until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctxMu.Lock()
	b.ctx = ctx
	b.ctxMu.Unlock()

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	unsubscribe := b.states.Subscribe(b.enqueue)
	defer unsubscribe()

	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		b.health.Run(ctx)
	}()

	b.publishSnapshot(b.states.Snapshot())
	b.logger.Info("bridge started", "devices", len(b.published))

	for {
		select {
		case snap := <-b.pending:
			b.publishSnapshot(snap)
			if err := b.health.PublishIfChanged(); err != nil {
				b.logger.Warn("failed to publish health", "error", err)
			}
		case <-b.resync:
			b.published = make(map[int64][]byte)
			b.publishSnapshot(b.states.Snapshot())
		case <-ctx.Done():
			<-healthDone
			b.logger.Info("bridge stopped")
			return nil
		}
	}
}

// Resync republishes the state of every unit. Wire it to the MQTT client's
// OnConnect callback so a restarted broker gets its retained messages back.
func (b *Bridge) Resync() {
	select {
	case b.resync <- struct{}{}:
	default:
	}
}

// enqueue runs on the coordinator's goroutine and never blocks. Only the
// latest snapshot matters.
func (b *Bridge) enqueue(snap coordinator.Snapshot) {
	for {
		select {
		case b.pending <- snap:
			return
		default:
		}
		select {
		case <-b.pending:
		default:
		}
	}
}

// stateKey is the part of a state message that decides whether it needs
// republishing. The timestamp is left out so an unchanged unit is not
// republished on every refresh.
func stateKey(d climate.DeviceState, available bool) []byte {
	b, _ := json.Marshal(struct { //nolint:errcheck // plain struct always marshals
		Available bool                `json:"available"`
		State     climate.DeviceState `json:"state"`
	}{available, d})
	return b
}

// publishSnapshot publishes every unit whose state changed and clears the
// retained state of units that are gone. A snapshot that was never filled
// by a refresh is ignored.
func (b *Bridge) publishSnapshot(snap coordinator.Snapshot) {
	if snap.FetchedAt.IsZero() {
		return
	}

	seen := make(map[int64]bool, len(snap.Devices))
	for _, d := range snap.Devices {
		seen[d.ID] = true
		available := snap.Available(d.ID)
		key := stateKey(d, available)
		if bytes.Equal(b.published[d.ID], key) {
			continue
		}

		payload, err := json.Marshal(NewStateMessage(d, available, snap.FetchedAt))
		if err != nil {
			b.logger.Error("failed to marshal state", "device_id", d.ID, "error", err)
			continue
		}
		if err := b.mqtt.Publish(b.topics.State(d.ID), payload, b.qos, true); err != nil {
			b.logger.Warn("failed to publish state", "device_id", d.ID, "error", err)
			continue
		}
		b.published[d.ID] = key
		b.logger.Debug("published state", "device_id", d.ID, "hvac_mode", d.HVACMode())
	}

	gone := make([]int64, 0)
	for id := range b.published {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, id := range gone {
		if err := b.mqtt.Publish(b.topics.State(id), nil, b.qos, true); err != nil {
			b.logger.Warn("failed to clear state", "device_id", id, "error", err)
			continue
		}
		delete(b.published, id)
		b.logger.Info("cleared state of removed device", "device_id", id)
	}
}

// handleCommand executes one command message and publishes its ack.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	id, ok := b.topics.DeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		b.publishAck(id, NewAckError("", id, CodeInvalidPayload, err))
		return err
	}

	b.logger.Info("received command", "device_id", id, "request_id", cmd.ID)

	b.ctxMu.RLock()
	parent := b.ctx
	b.ctxMu.RUnlock()
	ctx, cancel := context.WithTimeout(control.WithSource(parent, audit.SourceMQTT), b.timeout)
	defer cancel()

	res, err := b.controller.Apply(ctx, id, cmd.Intent)
	if err != nil {
		code := control.ErrorCode(err)
		b.logger.Warn("command failed", "device_id", id, "request_id", cmd.ID, "code", code, "error", err)
		b.publishAck(id, NewAckError(cmd.ID, id, code, err))
		return nil
	}

	b.publishAck(id, NewAckMessage(cmd.ID, res))
	return nil
}

func (b *Bridge) publishAck(id int64, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "device_id", id, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(id), payload, b.qos, false); err != nil {
		b.logger.Error("failed to publish ack", "device_id", id, "error", err)
	}
}
