package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
)

// State is the coordinator's position in the refresh cycle.
type State string

// Refresh states. A cycle moves idle -> fetching -> one of the three
// outcomes, then back to idle.
const (
	StateIdle            State = "idle"
	StateFetching        State = "fetching"
	StateSuccess         State = "success"
	StateAuthFailed      State = "auth_failed"
	StateTransientFailed State = "transient_failed"
)

// API is the subset of the AirCloud client the coordinator polls.
type API interface {
	FamilyGroups(ctx context.Context) ([]aircloud.FamilyGroup, error)
	Devices(ctx context.Context, familyID int64) ([]json.RawMessage, error)
}

// Resource is the read side consumed by presentation code: the MQTT
// bridge, the REST API and the history recorder all depend on this rather
// than on the Coordinator type.
type Resource interface {
	Snapshot() Snapshot
	Device(id int64) (climate.DeviceState, bool)
	// Subscribe delivers snapshots in commit order, one at a time. A
	// listener may call back into the coordinator; a snapshot it causes
	// is delivered after it returns.
	Subscribe(fn func(Snapshot)) (unsubscribe func())
	RequestRefresh()
	Status() Status
}

// Logger defines the logging interface used by the Coordinator.
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

// Result describes one completed refresh cycle.
type Result struct {
	Outcome       State
	Err           error
	Devices       int
	SkippedGroups int
	Notified      bool
	Trigger       string
	Started       time.Time
	Finished      time.Time
}

// Status is the connectivity view of the coordinator.
type Status struct {
	State             State         `json:"state"`
	LastOutcome       State         `json:"last_outcome,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	LastAttempt       time.Time     `json:"last_attempt,omitempty"`
	LastSuccess       time.Time     `json:"last_success,omitempty"`
	LastUpdateSuccess bool          `json:"last_update_success"`
	ReauthRequired    bool          `json:"reauth_required"`
	Interval          time.Duration `json:"interval"`
	Cycles            uint64        `json:"cycles"`
}

// Options configures a Coordinator.
type Options struct {
	// API is the account client to poll. Required.
	API API

	// Interval is the periodic refresh interval. Required; bounds are
	// enforced by the caller.
	Interval time.Duration

	// AlwaysNotify notifies listeners after every successful cycle, not
	// only when the devices changed.
	AlwaysNotify bool

	// OnAuthFailed is called once per cycle that ends in auth_failed.
	OnAuthFailed func(err error)

	// OnCycle is called after every cycle that reached an outcome.
	OnCycle func(Result)

	Logger  Logger
	Metrics *Metrics
}

// Trigger names recorded in Result and metrics.
const (
	TriggerScheduled = "scheduled"
	TriggerRequested = "requested"
	TriggerFirst     = "first"
)

// Coordinator polls one AirCloud account and owns its device snapshot.
//
// At most one fetch cycle runs at a time. On-demand requests that arrive
// while a cycle is in flight coalesce into a single follow-up cycle and do
// not move the periodic schedule.
//
// The snapshot changes in exactly two ways: a successful cycle replaces
// it whole, or Patch replaces one device's fields. Both happen under the
// same lock and listeners see them in commit order.
type Coordinator struct {
	interval     time.Duration
	alwaysNotify bool
	onAuthFailed func(error)
	onCycle      func(Result)
	logger       Logger
	metrics      *Metrics

	// cycleMu is held for the whole of a fetch cycle.
	cycleMu sync.Mutex

	// trigger holds at most one pending on-demand request.
	trigger chan struct{}
	running atomic.Bool

	mu       sync.RWMutex
	api      API
	snapshot Snapshot
	loaded   bool
	status   Status

	// deliverMu guards the snapshots waiting for listeners. Snapshots are
	// queued under mu, so listeners see them in commit order.
	deliverMu   sync.Mutex
	pending     []Snapshot
	delivering  bool
	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int

	seqMu      sync.Mutex
	started    uint64
	completed  uint64
	lastResult Result
	cycleDone  chan struct{}
	// leading is set while a Refresh caller runs the follow-up cycle
	// for everyone waiting without Run.
	leading bool
}

var _ Resource = (*Coordinator)(nil)

// New creates a Coordinator. Nothing is fetched until FirstRefresh, Run
// or Refresh is called.
func New(opts Options) (*Coordinator, error) {
	if opts.API == nil {
		return nil, ErrMissingAPI
	}
	if opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	c := &Coordinator{
		interval:     opts.Interval,
		alwaysNotify: opts.AlwaysNotify,
		onAuthFailed: opts.OnAuthFailed,
		onCycle:      opts.OnCycle,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		trigger:      make(chan struct{}, 1),
		api:          opts.API,
		listeners:    make(map[int]func(Snapshot)),
		cycleDone:    make(chan struct{}),
		status: Status{
			State:    StateIdle,
			Interval: opts.Interval,
		},
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// Run drives the periodic schedule and on-demand requests until ctx is
// cancelled. A cycle in flight at cancellation is abandoned without
// publishing anything.
func (c *Coordinator) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("refresh coordinator started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("refresh coordinator stopped")
			return nil
		case <-ticker.C:
			c.runCycle(ctx, TriggerScheduled)
		case <-c.trigger:
			c.runCycle(ctx, TriggerRequested)
		}
	}
}

// FirstRefresh runs one cycle immediately, outside the schedule. Startup
// should abort on an auth_failed result.
func (c *Coordinator) FirstRefresh(ctx context.Context) Result {
	return c.runCycle(ctx, TriggerFirst)
}

// RequestRefresh asks for a cycle outside the schedule and returns at
// once. Requests made while one is already pending are merged into it.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Refresh requests a cycle and waits for the first cycle that starts
// after the call. When Run is not active, one waiting caller runs that
// cycle on its own goroutine and the others share its result.
func (c *Coordinator) Refresh(ctx context.Context) (Result, error) {
	c.seqMu.Lock()
	want := c.started + 1
	c.seqMu.Unlock()

	if c.running.Load() {
		c.RequestRefresh()
	}

	for {
		c.seqMu.Lock()
		if c.completed >= want {
			r := c.lastResult
			c.seqMu.Unlock()
			return r, nil
		}
		if !c.running.Load() && !c.leading {
			c.leading = true
			c.seqMu.Unlock()
			return c.lead(ctx), nil
		}
		done := c.cycleDone
		c.seqMu.Unlock()

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-done:
		}
	}
}

// lead runs the follow-up cycle for Refresh callers, then wakes any
// caller that arrived too late to share it so one of them takes over.
func (c *Coordinator) lead(ctx context.Context) Result {
	r := c.runCycle(ctx, TriggerRequested)

	c.seqMu.Lock()
	c.leading = false
	close(c.cycleDone)
	c.cycleDone = make(chan struct{})
	c.seqMu.Unlock()
	return r
}

// Reauthenticate swaps in a client built from new credentials, lifts the
// auth suspension and requests a cycle.
func (c *Coordinator) Reauthenticate(api API) error {
	if api == nil {
		return ErrMissingAPI
	}
	c.mu.Lock()
	c.api = api
	c.status.ReauthRequired = false
	c.mu.Unlock()

	c.logger.Info("credentials replaced, resuming refresh")
	c.RequestRefresh()
	return nil
}

// runCycle performs one fetch cycle under the single-flight lock.
func (c *Coordinator) runCycle(ctx context.Context, trigger string) Result {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.seqMu.Lock()
	c.started++
	seq := c.started
	c.seqMu.Unlock()

	result := Result{Trigger: trigger, Started: time.Now()}

	c.mu.Lock()
	api := c.api
	suspended := c.status.ReauthRequired
	if !suspended {
		c.status.State = StateFetching
		c.status.LastAttempt = result.Started
	}
	c.mu.Unlock()

	if suspended {
		c.logger.Debug("refresh skipped until credentials are replaced", "trigger", trigger)
		result.Outcome = StateAuthFailed
		result.Err = ErrReauthRequired
		result.Finished = time.Now()
		c.finish(seq, result)
		return result
	}

	devices, skipped, err := c.fetch(ctx, api)
	result.SkippedGroups = skipped
	result.Finished = time.Now()

	switch {
	case ctx.Err() != nil:
		// Teardown: abandon without publishing or recording an outcome.
		c.mu.Lock()
		c.status.State = StateIdle
		c.mu.Unlock()
		result.Outcome = StateIdle
		result.Err = ctx.Err()
		c.logger.Debug("refresh cycle abandoned", "trigger", trigger)
		c.finish(seq, result)
		return result

	case err == nil:
		result.Outcome = StateSuccess
		result.Devices = len(devices)
		result.Notified = c.commit(devices, result.Finished)
		c.logger.Debug("refresh cycle succeeded",
			"trigger", trigger,
			"devices", len(devices),
			"skipped_groups", skipped,
			"notified", result.Notified,
		)

	case aircloud.IsAuthentication(err):
		result.Outcome = StateAuthFailed
		result.Err = err
		c.logger.Error("aircloud rejected the account credentials", "error", err)

	default:
		result.Outcome = StateTransientFailed
		result.Err = err
		if errors.Is(err, aircloud.ErrGeneral) {
			c.logger.Error("refresh cycle failed", "trigger", trigger, "error", err)
		} else {
			c.logger.Warn("refresh cycle failed, retrying on schedule", "trigger", trigger, "error", err)
		}
	}

	c.record(result)
	c.finish(seq, result)

	if result.Outcome == StateAuthFailed && c.onAuthFailed != nil {
		c.onAuthFailed(result.Err)
	}
	if c.onCycle != nil {
		c.onCycle(result)
	}
	return result
}

// fetch lists every family group and its devices. Any client error fails
// the whole cycle, including a communication error on a single group;
// groups without an identifier are skipped.
func (c *Coordinator) fetch(ctx context.Context, api API) ([]climate.DeviceState, int, error) {
	groups, err := api.FamilyGroups(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing family groups: %w", err)
	}

	devices := make([]climate.DeviceState, 0)
	if len(groups) == 0 {
		c.logger.Info("account has no family groups")
		return devices, 0, nil
	}

	skipped := 0
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}
		if group.FamilyID == 0 {
			skipped++
			c.logger.Warn("skipping family group without identifier", "name", group.Name)
			continue
		}

		raws, err := api.Devices(ctx, group.FamilyID)
		if err != nil {
			return nil, skipped, fmt.Errorf("listing devices of family %d: %w", group.FamilyID, err)
		}

		states, bad := climate.NormalizeList(raws, group.FamilyID)
		if bad > 0 {
			c.logger.Warn("skipping devices without identifier", "family_id", group.FamilyID, "count", bad)
		}
		devices = append(devices, states...)
	}

	return devices, skipped, nil
}

// commit replaces the snapshot and notifies listeners when something a
// listener can observe has changed, or always with AlwaysNotify.
func (c *Coordinator) commit(devices []climate.DeviceState, fetchedAt time.Time) bool {
	c.mu.Lock()
	changed := !c.loaded ||
		!devicesEqual(c.snapshot.Devices, devices) ||
		len(c.snapshot.unavailable) > 0
	c.snapshot = Snapshot{Devices: devices, FetchedAt: fetchedAt}
	c.loaded = true
	notify := changed || c.alwaysNotify
	if notify {
		c.queue(c.snapshot)
	}
	c.mu.Unlock()

	c.deliver()
	return notify
}

// record updates the connectivity status after a cycle.
func (c *Coordinator) record(r Result) {
	c.mu.Lock()
	c.status.State = StateIdle
	c.status.LastOutcome = r.Outcome
	c.status.Cycles++
	c.status.LastUpdateSuccess = r.Outcome == StateSuccess
	if r.Outcome == StateSuccess {
		c.status.LastSuccess = r.Finished
		c.status.LastError = ""
	} else if r.Err != nil {
		c.status.LastError = r.Err.Error()
	}
	if r.Outcome == StateAuthFailed {
		c.status.ReauthRequired = true
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.observe(r)
	}
}

// finish publishes a cycle's completion to Refresh waiters.
func (c *Coordinator) finish(seq uint64, r Result) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if seq > c.completed {
		c.completed = seq
	}
	c.lastResult = r
	close(c.cycleDone)
	c.cycleDone = make(chan struct{})
}

// Patch applies an optimistic field patch to one device and notifies
// listeners. A successful patch also clears the device's failed-command
// mark. The next successful cycle replaces the patched values.
func (c *Coordinator) Patch(id int64, p climate.Patch) error {
	c.mu.Lock()
	i := c.snapshot.index(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	d := c.snapshot.Devices[i].Clone()
	d.Apply(p)
	c.snapshot = c.snapshot.withDevice(i, d).withAvailability(id, false)
	c.queue(c.snapshot)
	c.mu.Unlock()

	c.deliver()
	return nil
}

// MarkUnavailable flags a device whose control command failed. The
// device state itself is not touched.
func (c *Coordinator) MarkUnavailable(id int64) {
	c.mu.Lock()
	if c.snapshot.index(id) < 0 {
		c.mu.Unlock()
		return
	}
	c.snapshot = c.snapshot.withAvailability(id, true)
	c.queue(c.snapshot)
	c.mu.Unlock()

	c.deliver()
}

// Snapshot returns the current snapshot. Treat it as read-only.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Device returns a copy of one device from the current snapshot.
func (c *Coordinator) Device(id int64) (climate.DeviceState, bool) {
	return c.Snapshot().Device(id)
}

// Status returns the connectivity status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Subscribe registers fn to receive every published snapshot, in commit
// order and one at a time. fn usually runs on the committing goroutine;
// when another delivery is in progress, that goroutine delivers it
// instead. fn may read the coordinator and may call Patch or
// MarkUnavailable: the resulting snapshot is delivered after fn returns.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// queue appends snap for delivery. The caller holds mu.
func (c *Coordinator) queue(snap Snapshot) {
	c.deliverMu.Lock()
	c.pending = append(c.pending, snap)
	c.deliverMu.Unlock()
}

// deliver hands queued snapshots to listeners until none are left. Only
// one goroutine delivers at a time; the others return at once and their
// snapshots are delivered by the one already delivering.
func (c *Coordinator) deliver() {
	c.deliverMu.Lock()
	if c.delivering {
		c.deliverMu.Unlock()
		return
	}
	c.delivering = true
	c.deliverMu.Unlock()

	// A panicking listener must not leave delivery stuck.
	drained := false
	defer func() {
		if !drained {
			c.deliverMu.Lock()
			c.delivering = false
			c.deliverMu.Unlock()
		}
	}()

	for {
		c.deliverMu.Lock()
		if len(c.pending) == 0 {
			c.delivering = false
			c.deliverMu.Unlock()
			drained = true
			return
		}
		snap := c.pending[0]
		c.pending[0] = Snapshot{}
		c.pending = c.pending[1:]
		c.deliverMu.Unlock()

		c.notify(snap)
	}
}

func (c *Coordinator) notify(snap Snapshot) {
	c.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
