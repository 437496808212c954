// Package device provides the speaker registry for Annunciator Core.
//
// The registry is the authoritative in-memory catalogue of annunciator
// speakers and the groups they are addressed through. It is the only
// component that mutates persisted configuration.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                        Registry                           │
//	│                                                           │
//	│  ┌──────────────────┐          ┌──────────────────────┐   │
//	│  │  devices/groups  │  save    │        Store         │   │
//	│  │  (registry.go)   │─────────▶│  FileStore (JSON)    │   │
//	│  │                  │          │  SQLiteStore         │   │
//	│  │ • ordered slices │          └──────────────────────┘   │
//	│  │ • write mutex    │                                     │
//	│  │ • RW state lock  │  emit    ┌──────────────────────┐   │
//	│  │                  │─────────▶│     events.Sink      │   │
//	│  └──────────────────┘          └──────────────────────┘   │
//	└───────────────────────────────────────────────────────────┘
//	            │ ResolveDevice / ResolveGroup
//	            ▼
//	      dispatch.Dispatcher
//
// # Key Types
//
//   - Device: one speaker, credential included (internal only)
//   - DeviceView: the credential-free projection returned to callers
//   - Group / GroupView: ordered membership lists, duplicates preserved
//   - GroupTarget: a group resolved against one snapshot, ready for dispatch
//   - Snapshot: the persisted form ({port, speakers, groups})
//
// # Invariants
//
//   - Device and group IDs are unique (UUIDv7, never reused).
//   - RemoveDevice strips the device from every group in the same locked step.
//   - Every mutation is followed by a full Save; a failed save returns
//     ErrPersistence and emits a critical registry.persistence_failed event.
//
// # Usage
//
//	reg := device.NewRegistry(device.NewFileStore("./data/config.json"))
//	reg.SetLogger(logger)
//	reg.SetEventSink(bus)
//	if err := reg.Load(ctx); err != nil {
//	    return err
//	}
//	view, err := reg.AddDevice(ctx, device.NewDevice{Name: "Hall", Address: "10.0.0.5", Username: "admin", Secret: pw})
package device
