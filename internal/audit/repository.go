// Package audit records door activity and key registrations in the
// audit_logs table and serves them back for GET /api/v1/audit.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions written by the relay.
const (
	ActionToggle   = "toggle"
	ActionFailed   = "toggle_failed"
	ActionRegister = "register"
)

// Entity types written by the relay.
const (
	EntityDoor = "door"
	EntityUser = "user"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timestampFormat is fixed width so created_at sorts lexically.
const timestampFormat = "2006-01-02T15:04:05.000000Z"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: toggle, toggle_failed, register
	EntityType string // optional: door, user
	EntityID   string // optional: pin number or access key
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const insertEntry = `INSERT INTO audit_logs
	(id, action, entity_type, entity_id, source, details, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectEntries = `SELECT id, action, entity_type, entity_id, source, details, created_at
	FROM audit_logs`

// Create inserts entry, filling in ID and CreatedAt when unset.
func (r *SQLiteRepository) Create(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	details, err := encodeDetails(entry.Details)
	if err != nil {
		return err
	}

	var entityID sql.NullString
	if entry.EntityID != "" {
		entityID = sql.NullString{String: entry.EntityID, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, insertEntry,
		entry.ID, entry.Action, entry.EntityType, entityID, entry.Source, details,
		entry.CreatedAt.UTC().Format(timestampFormat),
	); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func encodeDetails(d map[string]any) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding audit details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// clamp applies the page size bounds.
func (f Filter) clamp() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// where renders the optional equality filters as a parameterised clause.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, c := range []struct{ column, value string }{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value != "" {
			clauses = append(clauses, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.clamp()
	where, args := filter.where()

	res := &ListResult{Logs: []AuditLog{}, Limit: filter.Limit, Offset: filter.Offset}

	//nolint:gosec // clause text is fixed; values are bound
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	//nolint:gosec // clause text is fixed; values are bound
	rows, err := r.db.QueryContext(ctx,
		selectEntries+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res.Logs = append(res.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return res, nil
}

func scanEntry(rows *sql.Rows) (AuditLog, error) {
	var (
		e                 AuditLog
		entityID, details sql.NullString
		created           string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &e.Source, &details, &created); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}
	e.EntityID = entityID.String

	// Unreadable details are dropped rather than failing the page.
	if details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &e.Details) //nolint:errcheck // see above
	}

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", created, err)
	}
	e.CreatedAt = t
	return e, nil
}
