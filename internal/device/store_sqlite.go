package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps the registry in the registry_* tables.
// The schema is created by the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads the full snapshot. It returns ErrSnapshotNotFound until the
// first Save has written the registry_meta row.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Devices: []Device{}, Groups: []Group{}}

	err := s.db.QueryRowContext(ctx, "SELECT port FROM registry_meta WHERE id = 1").Scan(&snap.Port)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry meta: %w", err)
	}

	devices, err := s.loadDevices(ctx)
	if err != nil {
		return nil, err
	}
	snap.Devices = devices

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	snap.Groups = groups

	return snap, nil
}

func (s *SQLiteStore) loadDevices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, address, username, secret FROM registry_devices ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Address, &d.Username, &d.Secret); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (s *SQLiteStore) loadGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM registry_groups ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}

	groups := []Group{}
	index := make(map[string]int)
	for rows.Next() {
		g := Group{MemberIDs: []string{}}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating groups: %w", err)
	}
	rows.Close()

	members, err := s.db.QueryContext(ctx,
		"SELECT group_id, device_id FROM registry_group_members ORDER BY group_id, position")
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var groupID, deviceID string
		if err := members.Scan(&groupID, &deviceID); err != nil {
			return nil, fmt.Errorf("scanning group member row: %w", err)
		}
		if i, ok := index[groupID]; ok {
			groups[i].MemberIDs = append(groups[i].MemberIDs, deviceID)
		}
	}
	if err := members.Err(); err != nil {
		return nil, fmt.Errorf("iterating group members: %w", err)
	}
	return groups, nil
}

// Save replaces the stored registry with snap in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, stmt := range []string{
		"DELETE FROM registry_group_members",
		"DELETE FROM registry_groups",
		"DELETE FROM registry_devices",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing registry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registry_meta (id, port, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET port = excluded.port, updated_at = excluded.updated_at`,
		snap.Port, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("writing registry meta: %w", err)
	}

	for i, d := range snap.Devices {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO registry_devices (id, position, name, address, username, secret) VALUES (?, ?, ?, ?, ?, ?)",
			d.ID, i, d.Name, d.Address, d.Username, d.Secret,
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	for i, g := range snap.Groups {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO registry_groups (id, position, name) VALUES (?, ?, ?)",
			g.ID, i, g.Name,
		); err != nil {
			return fmt.Errorf("inserting group %s: %w", g.ID, err)
		}
		for pos, memberID := range g.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO registry_group_members (group_id, position, device_id) VALUES (?, ?, ?)",
				g.ID, pos, memberID,
			); err != nil {
				return fmt.Errorf("inserting member of group %s: %w", g.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registry: %w", err)
	}
	return nil
}
