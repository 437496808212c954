package device_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/database"
	_ "github.com/nerrad567/annunciator-core/migrations" // registers embedded schema
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store := device.NewSQLiteStore(setupTestDB(t).DB)

	if _, err := store.Load(context.Background()); !errors.Is(err, device.ErrSnapshotNotFound) {
		t.Errorf("Load() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSQLiteStore_SaveThenLoad(t *testing.T) {
	store := device.NewSQLiteStore(setupTestDB(t).DB)
	ctx := context.Background()

	snap := &device.Snapshot{
		Port: 9100,
		Devices: []device.Device{
			{ID: "d2", Name: "Yard", Address: "10.0.0.2", Username: "admin", Secret: "pw2"},
			{ID: "d1", Name: "Hall", Address: "10.0.0.1", Username: "admin", Secret: "pw"},
		},
		Groups: []device.Group{
			{ID: "g2", Name: "Second", MemberIDs: []string{}},
			{ID: "g1", Name: "First", MemberIDs: []string{"d1", "ghost", "d1"}},
		},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Port != 9100 {
		t.Errorf("Port = %d, want 9100", got.Port)
	}
	if !slices.Equal(got.Devices, snap.Devices) {
		t.Errorf("Devices = %+v, want insertion order %+v", got.Devices, snap.Devices)
	}
	if len(got.Groups) != 2 || got.Groups[0].ID != "g2" {
		t.Fatalf("Groups = %+v, want g2 then g1", got.Groups)
	}
	if !slices.Equal(got.Groups[1].MemberIDs, []string{"d1", "ghost", "d1"}) {
		t.Errorf("members = %v, want order, dangling ids and duplicates preserved", got.Groups[1].MemberIDs)
	}
	if len(got.Groups[0].MemberIDs) != 0 {
		t.Errorf("empty group members = %v", got.Groups[0].MemberIDs)
	}
}

func TestSQLiteStore_SaveReplacesPrevious(t *testing.T) {
	store := device.NewSQLiteStore(setupTestDB(t).DB)
	ctx := context.Background()

	first := &device.Snapshot{
		Port:    9988,
		Devices: []device.Device{{ID: "d1", Name: "Old", Address: "10.0.0.1", Username: "u", Secret: "p"}},
		Groups:  []device.Group{{ID: "g1", Name: "Old", MemberIDs: []string{"d1"}}},
	}
	second := &device.Snapshot{Port: 9989, Devices: []device.Device{}, Groups: []device.Group{}}

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save(first) error = %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save(second) error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Port != 9989 || len(got.Devices) != 0 || len(got.Groups) != 0 {
		t.Errorf("Load() = %+v, want only the second snapshot", got)
	}
}

func TestSQLiteStore_BacksRegistry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	reg := device.NewRegistry(device.NewSQLiteStore(db.DB))
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	v, err := reg.AddDevice(ctx, device.NewDevice{Name: "Hall", Address: "10.0.0.1", Username: "u", Secret: "p"})
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if _, err := reg.AddGroup(ctx, "All", []string{v.ID}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}

	// A second registry over the same database sees the same state.
	reloaded := device.NewRegistry(device.NewSQLiteStore(db.DB))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	groups := reloaded.ListGroups()
	if len(groups) != 1 || len(groups[0].Members) != 1 || groups[0].Members[0].ID != v.ID {
		t.Errorf("reloaded groups = %+v", groups)
	}
}

func TestSQLiteStore_RegistrySavesAfterCallerCancels(t *testing.T) {
	db := setupTestDB(t)
	store := device.NewSQLiteStore(db.DB)

	reg := device.NewRegistry(store)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// A request context whose client has already gone away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := reg.AddDevice(ctx, device.NewDevice{Name: "Hall", Address: "10.0.0.1", Username: "u", Secret: "p"})
	if err != nil {
		t.Fatalf("AddDevice() error = %v, want nil with a cancelled caller", err)
	}
	if _, err := reg.AddGroup(ctx, "All", []string{v.ID}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	if err := reg.RemoveDevice(ctx, v.ID); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	if len(snap.Devices) != 0 || len(snap.Groups) != 1 || len(snap.Groups[0].MemberIDs) != 0 {
		t.Errorf("stored snapshot = %+v, want one empty group and no devices", snap)
	}
}
