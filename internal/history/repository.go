package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/database"
)

// Sources of a recorded state.
const (
	SourceRefresh = "refresh"
	SourceCommand = "command"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded state of a unit.
type Entry struct {
	ID        int64               `json:"id"`
	DeviceID  int64               `json:"device_id"`
	FamilyID  int64               `json:"family_id"`
	State     climate.DeviceState `json:"state"`
	Source    string              `json:"source"`
	CreatedAt time.Time           `json:"created_at"`
}

// Query selects history entries for one unit.
type Query struct {
	DeviceID int64
	Since    time.Time // zero means no lower bound
	Limit    int       // default 50, max 500
}

// Repository stores unit states over time.
type Repository interface {
	// Record stores d as observed at t.
	Record(ctx context.Context, d climate.DeviceState, source string, t time.Time) error

	// List returns entries for q.DeviceID, newest first.
	List(ctx context.Context, q Query) ([]Entry, error)

	// Prune deletes entries older than cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository is the state_history table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a history repository on db.
//
// Parameters:
//   - db: migrated bridge database
//
// Returns:
//   - *SQLiteRepository: ready for use
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts one state snapshot.
func (r *SQLiteRepository) Record(ctx context.Context, d climate.DeviceState, source string, t time.Time) error {
	if d.ID == 0 {
		return fmt.Errorf("device id is required")
	}
	if source == "" {
		source = SourceRefresh
	}
	if t.IsZero() {
		t = time.Now()
	}

	stateJSON, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, family_id, state, source, created_at) VALUES (?, ?, ?, ?, ?)",
		d.ID, d.FamilyID, string(stateJSON), source, database.FormatTime(t),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// List returns recorded states for one unit, newest first.
//
// Parameters:
//   - ctx: context for cancellation
//   - q: unit, optional lower time bound, and limit (clamped to [1, 500])
//
// Returns:
//   - []Entry: possibly empty, never nil
//   - error: query or decode failure
func (r *SQLiteRepository) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.DeviceID == 0 {
		return nil, fmt.Errorf("device id is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query := "SELECT id, device_id, family_id, state, source, created_at FROM state_history WHERE device_id = ?"
	args := []any{q.DeviceID}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, database.FormatTime(q.Since))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			stateJSON string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.FamilyID, &stateJSON, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("decoding state history %d: %w", e.ID, err)
		}
		t, err := time.Parse(database.TimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing state history timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.db.PruneBefore(ctx, "state_history", "created_at", cutoff)
}

var _ Repository = (*SQLiteRepository)(nil)

