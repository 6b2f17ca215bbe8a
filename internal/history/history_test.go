package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/database"
	"github.com/nerrad567/aircloud-bridge/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db)
}

func unit(raw string) climate.DeviceState {
	return climate.Normalize(json.RawMessage(raw), 10)
}

func TestRepositoryRecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []string{
		`{"id":1,"power":"ON","mode":"COOLING","iduTemperature":24}`,
		`{"id":1,"power":"ON","mode":"COOLING","iduTemperature":23.5}`,
		`{"id":2,"power":"OFF","mode":"HEATING"}`,
		`{"id":1,"power":"OFF","mode":"COOLING","iduTemperature":23.5}`,
	}
	for i, raw := range states {
		if err := repo.Record(ctx, unit(raw), SourceRefresh, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := repo.List(ctx, Query{DeviceID: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].State.On || !entries[0].CreatedAt.Equal(base.Add(3*time.Minute)) {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if entries[2].State.TargetTemperature != 24 {
		t.Errorf("oldest target = %v, want 24", entries[2].State.TargetTemperature)
	}
	if entries[0].State.Wire.Power != "OFF" {
		t.Errorf("wire view lost: %+v", entries[0].State.Wire)
	}

	since, err := repo.List(ctx, Query{DeviceID: 1, Since: base.Add(time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 2 {
		t.Errorf("entries since = %d, want 2", len(since))
	}

	limited, err := repo.List(ctx, Query{DeviceID: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited entries = %d, want 1", len(limited))
	}

	none, err := repo.List(ctx, Query{DeviceID: 42})
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("unknown device entries = %#v, want empty slice", none)
	}
}

func TestRepositoryValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, climate.DeviceState{}, SourceRefresh, time.Now()); err == nil {
		t.Error("Record() without device id should fail")
	}
	if _, err := repo.List(ctx, Query{}); err == nil {
		t.Error("List() without device id should fail")
	}
}

func TestRepositoryPrune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	for _, age := range []time.Duration{0, 10 * 24 * time.Hour, 40 * 24 * time.Hour} {
		if err := repo.Record(ctx, unit(`{"id":1}`), SourceRefresh, now.Add(-age)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.Prune(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}

// fakeSource hands its subscriber to the test.
type fakeSource struct {
	mu sync.Mutex
	fn func(coordinator.Snapshot)
}

func (s *fakeSource) Subscribe(fn func(coordinator.Snapshot)) func() {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) publish(snap coordinator.Snapshot) bool {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(snap)
	return true
}

type memRepo struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memRepo) Record(_ context.Context, d climate.DeviceState, source string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{DeviceID: d.ID, State: d, Source: source, CreatedAt: t})
	return nil
}

func (m *memRepo) List(context.Context, Query) ([]Entry, error) { return nil, nil }

func (m *memRepo) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memRepo) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

type memTelemetry struct {
	mu     sync.Mutex
	points int
}

func (m *memTelemetry) WriteClimateState(climate.DeviceState, bool, time.Time) {
	m.mu.Lock()
	m.points++
	m.mu.Unlock()
}

func (m *memTelemetry) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points
}

func TestRecorderStoresChangesOnly(t *testing.T) {
	src := &fakeSource{}
	repo := &memRepo{}
	tel := &memTelemetry{}
	rec := NewRecorder(RecorderOptions{Source: src, Repo: repo, Telemetry: tel})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	first := coordinator.Snapshot{
		Devices:   []climate.DeviceState{unit(`{"id":1,"power":"ON"}`), unit(`{"id":2,"power":"OFF"}`)},
		FetchedAt: time.Unix(100, 0),
	}
	for !src.publish(first) {
		if time.Now().After(deadline) {
			t.Fatal("recorder never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	// Same states from a later refresh: telemetry only.
	src.publish(coordinator.Snapshot{Devices: first.Devices, FetchedAt: time.Unix(160, 0)})

	// A patch between refreshes: one changed unit, no telemetry.
	patched := []climate.DeviceState{unit(`{"id":1,"power":"OFF"}`), first.Devices[1]}
	src.publish(coordinator.Snapshot{Devices: patched, FetchedAt: time.Unix(160, 0)})

	cancel()
	<-done

	entries := repo.snapshot()
	if len(entries) != 3 {
		t.Fatalf("stored %d entries, want 3", len(entries))
	}
	last := entries[2]
	if last.DeviceID != 1 || last.Source != SourceCommand || last.State.On {
		t.Errorf("patched entry = %+v", last)
	}
	if entries[0].Source != SourceRefresh {
		t.Errorf("first entry source = %s, want refresh", entries[0].Source)
	}
	if tel.count() != 4 {
		t.Errorf("telemetry points = %d, want 4", tel.count())
	}
}

func TestRecorderEnqueueNeverBlocks(t *testing.T) {
	rec := NewRecorder(RecorderOptions{Source: &fakeSource{}, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			rec.enqueue(coordinator.Snapshot{FetchedAt: time.Unix(int64(i), 0)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked with nobody reading")
	}
	if got := <-rec.queue; got.FetchedAt.Unix() != 4 {
		t.Errorf("queued snapshot = %d, want the latest (4)", got.FetchedAt.Unix())
	}
}

type fakeCommandTelemetry struct {
	outcomes []string
}

func (f *fakeCommandTelemetry) WriteCommand(_ int64, outcome string, _ time.Duration, _ time.Time) {
	f.outcomes = append(f.outcomes, outcome)
}

func TestCommandSink(t *testing.T) {
	tel := &fakeCommandTelemetry{}
	sink := CommandSink{Telemetry: tel}
	sink.Record(&audit.Command{DeviceID: 1, Outcome: audit.OutcomeFailed})

	if len(tel.outcomes) != 1 || tel.outcomes[0] != "failed" {
		t.Errorf("outcomes = %v", tel.outcomes)
	}
}
