package device

import (
	"context"
	"fmt"
	"testing"
)

// setupBenchRegistry creates a registry pre-populated with n devices and one
// group containing all of them.
func setupBenchRegistry(b *testing.B, n int) (*Registry, string) {
	b.Helper()
	store := NewMockStore()
	ids := make([]string, 0, n)
	snap := &Snapshot{Port: DefaultPort}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("dev-%04d", i)
		ids = append(ids, id)
		snap.Devices = append(snap.Devices, Device{
			ID:       id,
			Name:     fmt.Sprintf("Speaker %d", i),
			Address:  fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			Username: "admin",
			Secret:   "secret",
		})
	}
	snap.Groups = []Group{{ID: "grp-all", Name: "All", MemberIDs: ids}}
	store.snap = snap

	reg := NewRegistry(store)
	if err := reg.Load(context.Background()); err != nil {
		b.Fatalf("loading registry: %v", err)
	}
	return reg, "grp-all"
}

func BenchmarkRegistryResolveDevice(b *testing.B) {
	reg, _ := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.ResolveDevice("dev-0050") //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryResolveGroup(b *testing.B) {
	reg, groupID := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.ResolveGroup(groupID) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryListGroups(b *testing.B) {
	reg, _ := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reg.ListGroups()
	}
}

func BenchmarkRegistryUpdateDevice(b *testing.B) {
	reg, _ := setupBenchRegistry(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.UpdateDevice(ctx, "dev-0050", DeviceUpdate{Name: fmt.Sprintf("n%d", i)}) //nolint:errcheck // benchmark
	}
}
