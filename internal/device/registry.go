package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/annunciator-core/internal/events"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// saveTimeout bounds one store write.
const saveTimeout = 30 * time.Second

// Registry is the authoritative in-memory set of devices and groups.
//
// Every mutation runs under writeMu: the change is applied to the in-memory
// state and then the whole snapshot is saved to the Store. Readers take
// stateMu and always observe either the state before or after a mutation,
// never a half-applied one.
//
// Saves ignore caller cancellation: once a mutation is applied it is always
// written. When a save fails the mutation stays applied in memory, the
// caller gets an error wrapping ErrPersistence, and a critical
// registry.persistence_failed event is emitted. Mutation events follow the
// save and carry a "persisted" flag.
//
// All public methods are thread-safe.
type Registry struct {
	store Store

	writeMu sync.Mutex // serialises apply + save

	stateMu sync.RWMutex // protects the fields below
	port    int
	devices []Device
	groups  []Group

	logger Logger
	sink   events.Sink
}

// NewRegistry creates an empty registry backed by store. Call Load before use.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:  store,
		port:   DefaultPort,
		logger: noopLogger{},
		sink:   events.Discard,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventSink sets where mutation events are emitted.
func (r *Registry) SetEventSink(sink events.Sink) {
	r.sink = sink
}

// Load populates the registry from the store. When the store has nothing
// saved yet, defaults are installed and persisted immediately.
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap, err := r.store.Load(ctx)
	if errors.Is(err, ErrSnapshotNotFound) {
		snap = &Snapshot{Port: DefaultPort, Devices: []Device{}, Groups: []Group{}}
		r.install(snap)
		if err := r.save(ctx, snap); err != nil {
			return fmt.Errorf("persisting default registry: %w", err)
		}
		r.logger.Info("registry initialised with defaults", "port", snap.Port)
		r.sink.Emit(events.Event{
			Level:   events.LevelInfo,
			Type:    events.TypeRegistryInitialised,
			Message: "created default configuration",
			Data:    map[string]any{"port": snap.Port},
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	changed := r.normalise(snap)
	r.install(snap)
	if changed {
		if err := r.save(ctx, snap); err != nil {
			return fmt.Errorf("persisting normalised registry: %w", err)
		}
	}

	r.logger.Info("registry loaded",
		"devices", len(snap.Devices),
		"groups", len(snap.Groups),
	)
	return nil
}

// normalise repairs hand-edited snapshots: blank IDs get fresh ones and
// duplicate IDs keep only their first occurrence. Reports whether anything changed.
func (r *Registry) normalise(snap *Snapshot) bool {
	changed := false
	if snap.Port == 0 {
		snap.Port = DefaultPort
		changed = true
	}

	seen := make(map[string]struct{}, len(snap.Devices))
	devices := snap.Devices[:0]
	for _, d := range snap.Devices {
		if d.ID == "" {
			d.ID = GenerateID()
			changed = true
		}
		if _, dup := seen[d.ID]; dup {
			r.logger.Warn("dropping device with duplicate id", "id", d.ID, "name", d.Name)
			changed = true
			continue
		}
		seen[d.ID] = struct{}{}
		devices = append(devices, d)
	}
	snap.Devices = devices

	seen = make(map[string]struct{}, len(snap.Groups))
	groups := snap.Groups[:0]
	for _, g := range snap.Groups {
		if g.ID == "" {
			g.ID = GenerateID()
			changed = true
		}
		if _, dup := seen[g.ID]; dup {
			r.logger.Warn("dropping group with duplicate id", "id", g.ID, "name", g.Name)
			changed = true
			continue
		}
		seen[g.ID] = struct{}{}
		groups = append(groups, g.clone())
	}
	snap.Groups = groups

	return changed
}

// install replaces the in-memory state with copies of snap.
func (r *Registry) install(snap *Snapshot) {
	devices := slices.Clone(snap.Devices)
	if devices == nil {
		devices = []Device{}
	}
	groups := make([]Group, len(snap.Groups))
	for i, g := range snap.Groups {
		groups[i] = g.clone()
	}

	r.stateMu.Lock()
	r.port = snap.Port
	r.devices = devices
	r.groups = groups
	r.stateMu.Unlock()
}

// snapshotLocked returns a deep copy of the current state. Caller must hold stateMu.
func (r *Registry) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Port:    r.port,
		Devices: slices.Clone(r.devices),
		Groups:  make([]Group, len(r.groups)),
	}
	for i, g := range r.groups {
		snap.Groups[i] = g.clone()
	}
	return snap
}

// save writes snap detached from the caller's cancellation.
func (r *Registry) save(ctx context.Context, snap *Snapshot) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return r.store.Save(ctx, snap)
}

// commit saves the current state and then emits the mutation event e. It
// must be called with writeMu held and after the in-memory change has been
// applied.
func (r *Registry) commit(ctx context.Context, op, entityID string, e events.Event) error {
	r.stateMu.RLock()
	snap := r.snapshotLocked()
	r.stateMu.RUnlock()

	err := r.save(ctx, snap)
	if err != nil {
		r.logger.Error("registry save failed, memory and storage have diverged",
			"operation", op,
			"entity_id", entityID,
			"error", err,
		)
		r.sink.Emit(events.Event{
			Level:   events.LevelCritical,
			Type:    events.TypePersistenceFailed,
			Message: "configuration change applied but not saved",
			Data: map[string]any{
				"operation": op,
				"entity_id": entityID,
				"error":     err.Error(),
			},
		})
	}

	e.Data["persisted"] = err == nil
	r.sink.Emit(e)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Port returns the listen port recorded in the registry snapshot.
func (r *Registry) Port() int {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.port
}

// Stats returns current registry counts.
func (r *Registry) Stats() Stats {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return Stats{Devices: len(r.devices), Groups: len(r.groups)}
}

// =============================================================================
// Devices
// =============================================================================

// ListDevices returns every device in insertion order, credentials removed.
func (r *Registry) ListDevices() []DeviceView {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	views := make([]DeviceView, len(r.devices))
	for i, d := range r.devices {
		views[i] = d.View()
	}
	return views
}

// GetDevice returns the redacted view of one device.
func (r *Registry) GetDevice(id string) (DeviceView, error) {
	d, err := r.ResolveDevice(id)
	if err != nil {
		return DeviceView{}, err
	}
	return d.View(), nil
}

// ResolveDevice returns a copy of the full device, credential included.
// It is meant for the dispatcher; never render the result to a client.
func (r *Registry) ResolveDevice(id string) (Device, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	i := r.deviceIndexLocked(id)
	if i < 0 {
		return Device{}, ErrDeviceNotFound
	}
	return r.devices[i], nil
}

func (r *Registry) deviceIndexLocked(id string) int {
	return slices.IndexFunc(r.devices, func(d Device) bool { return d.ID == id })
}

// AddDevice registers a new device and returns its redacted view.
func (r *Registry) AddDevice(ctx context.Context, in NewDevice) (DeviceView, error) {
	in, err := validateNewDevice(in)
	if err != nil {
		return DeviceView{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	d := Device{
		ID:       GenerateID(),
		Name:     in.Name,
		Address:  in.Address,
		Username: in.Username,
		Secret:   in.Secret,
	}

	r.stateMu.Lock()
	r.devices = append(r.devices, d)
	r.stateMu.Unlock()

	return d.View(), r.commit(ctx, "add_device", d.ID, deviceEvent(events.TypeDeviceAdded, "speaker added", d))
}

// UpdateDevice applies a partial update. Empty fields are left unchanged.
func (r *Registry) UpdateDevice(ctx context.Context, id string, upd DeviceUpdate) (DeviceView, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Address = strings.TrimSpace(upd.Address)
	upd.Username = strings.TrimSpace(upd.Username)
	if strings.TrimSpace(upd.Secret) == "" {
		upd.Secret = ""
	}

	if upd.Name != "" {
		if err := validateName(upd.Name); err != nil {
			return DeviceView{}, err
		}
	}
	if upd.Address != "" {
		if err := ValidateAddress(upd.Address); err != nil {
			return DeviceView{}, err
		}
	}
	if err := validateCredentials(upd.Username, upd.Secret); err != nil {
		return DeviceView{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.Lock()
	i := r.deviceIndexLocked(id)
	if i < 0 {
		r.stateMu.Unlock()
		return DeviceView{}, ErrDeviceNotFound
	}
	d := r.devices[i]
	if upd.Name != "" {
		d.Name = upd.Name
	}
	if upd.Address != "" {
		d.Address = upd.Address
	}
	if upd.Username != "" {
		d.Username = upd.Username
	}
	if upd.Secret != "" {
		d.Secret = upd.Secret
	}
	r.devices[i] = d
	r.stateMu.Unlock()

	return d.View(), r.commit(ctx, "update_device", d.ID, deviceEvent(events.TypeDeviceUpdated, "speaker updated", d))
}

// RemoveDevice deletes a device and strips its ID from every group's
// membership list in the same step.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.Lock()
	i := r.deviceIndexLocked(id)
	if i < 0 {
		r.stateMu.Unlock()
		return ErrDeviceNotFound
	}
	removed := r.devices[i]
	r.devices = slices.Delete(r.devices, i, i+1)

	affected := 0
	for gi := range r.groups {
		before := len(r.groups[gi].MemberIDs)
		r.groups[gi].MemberIDs = slices.DeleteFunc(r.groups[gi].MemberIDs, func(m string) bool { return m == id })
		if len(r.groups[gi].MemberIDs) != before {
			affected++
		}
	}
	r.stateMu.Unlock()

	e := deviceEvent(events.TypeDeviceRemoved, "speaker removed", removed)
	e.Data["groups_updated"] = affected
	return r.commit(ctx, "remove_device", id, e)
}

func deviceEvent(eventType, msg string, d Device) events.Event {
	return events.Event{
		Level:   events.LevelInfo,
		Type:    eventType,
		Message: fmt.Sprintf("%s: %s", msg, d.Name),
		Data: map[string]any{
			"device_id":   d.ID,
			"device_name": d.Name,
			"ip":          d.Address,
		},
	}
}

// =============================================================================
// Groups
// =============================================================================

// ListGroups returns every group in insertion order with resolved member summaries.
func (r *Registry) ListGroups() []GroupView {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	views := make([]GroupView, len(r.groups))
	for i, g := range r.groups {
		views[i] = r.groupViewLocked(g)
	}
	return views
}

// GetGroup returns one group view.
func (r *Registry) GetGroup(id string) (GroupView, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	i := r.groupIndexLocked(id)
	if i < 0 {
		return GroupView{}, ErrGroupNotFound
	}
	return r.groupViewLocked(r.groups[i]), nil
}

// ResolveGroup returns the group with each membership slot resolved
// against the same snapshot. Order and duplicates are preserved.
func (r *Registry) ResolveGroup(id string) (GroupTarget, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	i := r.groupIndexLocked(id)
	if i < 0 {
		return GroupTarget{}, ErrGroupNotFound
	}
	g := r.groups[i]

	target := GroupTarget{
		ID:      g.ID,
		Name:    g.Name,
		Members: make([]Member, len(g.MemberIDs)),
	}
	for mi, memberID := range g.MemberIDs {
		target.Members[mi] = Member{ID: memberID}
		if di := r.deviceIndexLocked(memberID); di >= 0 {
			d := r.devices[di]
			target.Members[mi].Device = &d
		}
	}
	return target, nil
}

func (r *Registry) groupIndexLocked(id string) int {
	return slices.IndexFunc(r.groups, func(g Group) bool { return g.ID == id })
}

func (r *Registry) groupViewLocked(g Group) GroupView {
	view := GroupView{
		ID:        g.ID,
		Name:      g.Name,
		MemberIDs: slices.Clone(g.MemberIDs),
		Members:   make([]MemberSummary, 0, len(g.MemberIDs)),
	}
	if view.MemberIDs == nil {
		view.MemberIDs = []string{}
	}
	for _, memberID := range g.MemberIDs {
		di := r.deviceIndexLocked(memberID)
		if di < 0 {
			continue
		}
		d := r.devices[di]
		view.Members = append(view.Members, MemberSummary{ID: d.ID, Name: d.Name, Address: d.Address})
	}
	return view
}

// AddGroup creates a group. Member IDs are stored exactly as given.
func (r *Registry) AddGroup(ctx context.Context, name string, memberIDs []string) (GroupView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GroupView{}, fmt.Errorf("%w: required fields missing: name", ErrValidation)
	}
	if err := validateName(name); err != nil {
		return GroupView{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	g := Group{ID: GenerateID(), Name: name, MemberIDs: memberIDs}.clone()

	r.stateMu.Lock()
	r.groups = append(r.groups, g)
	view := r.groupViewLocked(g)
	r.stateMu.Unlock()

	return view, r.commit(ctx, "add_group", g.ID, groupEvent(events.TypeGroupAdded, "group added", g))
}

// UpdateGroup applies a partial update to a group.
func (r *Registry) UpdateGroup(ctx context.Context, id string, upd GroupUpdate) (GroupView, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	if upd.Name != "" {
		if err := validateName(upd.Name); err != nil {
			return GroupView{}, err
		}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.Lock()
	i := r.groupIndexLocked(id)
	if i < 0 {
		r.stateMu.Unlock()
		return GroupView{}, ErrGroupNotFound
	}
	g := r.groups[i]
	if upd.Name != "" {
		g.Name = upd.Name
	}
	if upd.MemberIDs != nil {
		g.MemberIDs = slices.Clone(upd.MemberIDs)
	}
	r.groups[i] = g
	view := r.groupViewLocked(g)
	r.stateMu.Unlock()

	return view, r.commit(ctx, "update_group", g.ID, groupEvent(events.TypeGroupUpdated, "group updated", g))
}

// RemoveGroup deletes a group. Its member devices are untouched.
func (r *Registry) RemoveGroup(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.stateMu.Lock()
	i := r.groupIndexLocked(id)
	if i < 0 {
		r.stateMu.Unlock()
		return ErrGroupNotFound
	}
	removed := r.groups[i]
	r.groups = slices.Delete(r.groups, i, i+1)
	r.stateMu.Unlock()

	return r.commit(ctx, "remove_group", id, groupEvent(events.TypeGroupRemoved, "group removed", removed))
}

func groupEvent(eventType, msg string, g Group) events.Event {
	return events.Event{
		Level:   events.LevelInfo,
		Type:    eventType,
		Message: fmt.Sprintf("%s: %s", msg, g.Name),
		Data: map[string]any{
			"group_id":     g.ID,
			"group_name":   g.Name,
			"member_count": len(g.MemberIDs),
		},
	}
}
