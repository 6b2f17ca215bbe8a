package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/database"
)

// Outcome of a control command.
type Outcome string

// Command outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Command sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Command is one entry of the command log.
type Command struct {
	ID       string `json:"id"`
	DeviceID int64  `json:"device_id"`
	FamilyID int64  `json:"family_id"`
	Source   string `json:"source"`

	// Intent is what the caller asked for; Wire is the full command body
	// sent to the vendor. Both are stored as JSON.
	Intent json.RawMessage `json:"intent"`
	Wire   json.RawMessage `json:"command"`

	Outcome         Outcome       `json:"outcome"`
	Error           string        `json:"error,omitempty"`
	VendorCommandID string        `json:"vendor_command_id,omitempty"`
	Duration        time.Duration `json:"duration_ms"`
	CreatedAt       time.Time     `json:"created_at"`
}

// MarshalJSON reports Duration in milliseconds.
func (c Command) MarshalJSON() ([]byte, error) {
	type plain Command
	return json.Marshal(struct {
		plain
		Duration int64 `json:"duration_ms"`
	}{plain: plain(c), Duration: c.Duration.Milliseconds()})
}

// Filter selects command log entries. Zero fields match everything.
type Filter struct {
	DeviceID int64
	Source   string
	Outcome  Outcome
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is one page of the command log.
type ListResult struct {
	Commands []Command `json:"commands"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository stores and lists command log entries.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is the command_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a command log repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts cmd, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, cmd *Command) error {
	if cmd.DeviceID == 0 {
		return fmt.Errorf("device id is required")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	if cmd.Outcome == "" {
		cmd.Outcome = OutcomeSuccess
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log
		   (id, device_id, family_id, source, intent, command, outcome, error, vendor_command_id, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.DeviceID, cmd.FamilyID, cmd.Source,
		jsonText(cmd.Intent), jsonText(cmd.Wire),
		string(cmd.Outcome), nullableString(cmd.Error), nullableString(cmd.VendorCommandID),
		cmd.Duration.Milliseconds(),
		database.FormatTime(cmd.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != 0 {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // parameterised conditions only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := `SELECT id, device_id, family_id, source, intent, command, outcome, error, vendor_command_id, duration_ms, created_at
		FROM command_log ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?` //nolint:gosec // parameterised conditions only
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	commands := []Command{}
	for rows.Next() {
		var (
			c                 Command
			intent, wire      string
			outcome           string
			errText, vendorID sql.NullString
			durationMS        int64
			createdAt         string
		)
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.FamilyID, &c.Source, &intent, &wire,
			&outcome, &errText, &vendorID, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		c.Intent = json.RawMessage(intent)
		c.Wire = json.RawMessage(wire)
		c.Outcome = Outcome(outcome)
		c.Error = errText.String
		c.VendorCommandID = vendorID.String
		c.Duration = time.Duration(durationMS) * time.Millisecond

		t, err := time.Parse(database.TimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		c.CreatedAt = t

		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}
