package aircloud

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
)

const defaultHealthInterval = 30 * time.Second

// StatusSource provides the refresh coordinator's connectivity status and
// the current snapshot.
type StatusSource interface {
	Status() coordinator.Status
	Snapshot() coordinator.Snapshot
}

// HealthReporter publishes the bridge health periodically.
type HealthReporter struct {
	topic     string
	qos       byte
	version   string
	startTime time.Time
	interval  time.Duration
	publisher MQTTClient
	source    StatusSource

	statusMu sync.Mutex
	last     HealthStatus

	logger Logger
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Topic is the retained health topic.
	Topic string

	QoS     byte
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher MQTTClient
	Source    StatusSource
	Logger    Logger
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to run
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &HealthReporter{
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    logger,
	}
}

// Run publishes the health immediately and then every interval until ctx is
// cancelled. A final "stopping" status is published on the way out.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
			h.publish(HealthStopping)
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// PublishNow publishes the current health status.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.determineStatus())
}

// PublishIfChanged publishes only when the derived status differs from the
// last one published. The bridge calls it after every snapshot so a failed
// refresh shows up without waiting for the next tick.
func (h *HealthReporter) PublishIfChanged() error {
	status := h.determineStatus()
	h.statusMu.Lock()
	same := status == h.last
	h.statusMu.Unlock()
	if same {
		return nil
	}
	return h.publish(status)
}

func (h *HealthReporter) determineStatus() HealthStatus {
	st := h.source.Status()
	switch {
	case st.ReauthRequired:
		return HealthUnhealthy
	case st.Cycles == 0:
		return HealthStarting
	case !st.LastUpdateSuccess:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

func (h *HealthReporter) publish(status HealthStatus) error {
	if h.publisher == nil {
		return nil
	}

	msg := NewHealthMessage(status, h.version, h.startTime, len(h.source.Snapshot().Devices), h.source.Status())
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := h.publisher.Publish(h.topic, payload, h.qos, true); err != nil {
		return err
	}

	h.statusMu.Lock()
	h.last = status
	h.statusMu.Unlock()
	return nil
}
