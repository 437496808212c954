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

// Entry is one row of the audit trail, derived from a bus event.
type Entry struct {
	ID         string         `json:"id"`
	EventID    uint64         `json:"eventId,omitempty"`
	Level      string         `json:"level"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Source     string         `json:"source"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Filter selects entries for List. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

// normalise clamps the paging fields into range.
func (f Filter) normalise() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// where renders the filter as a parameterised WHERE clause.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, c := range []struct {
		column, value string
	}{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value == "" {
			continue
		}
		clauses = append(clauses, c.column+" = ?")
		args = append(args, c.value)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps entries in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeFormat is fixed width so created_at sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, event_id, level, action, entity_type, entity_id, actor, source, message, details, created_at"

// Create inserts entry, assigning ID, Level and CreatedAt when unset.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating audit id: %w", err)
		}
		entry.ID = id.String()
	}
	if entry.Level == "" {
		entry.Level = "info"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_logs ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.EventID, entry.Level, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Actor),
		entry.Source, entry.Message, details,
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns one page of entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalise()
	where, args := filter.where()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM audit_logs"+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		entityID  sql.NullString
		actor     sql.NullString
		details   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.ID, &e.EventID, &e.Level, &e.Action, &e.EntityType,
		&entityID, &actor, &e.Source, &e.Message, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.EntityID = entityID.String
	e.Actor = actor.String

	// Unreadable details are dropped rather than failing the page.
	if details.Valid {
		_ = json.Unmarshal([]byte(details.String), &e.Details)
	}

	ts, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = ts
	return e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
