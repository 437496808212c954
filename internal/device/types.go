package device

import "slices"

// DefaultPort is the listen port written to a freshly initialised store.
const DefaultPort = 9988

// Device is one network-addressable annunciator speaker.
//
// JSON field names match the on-disk config.json format (ip, password).
// Device values carry the credential and must never be rendered to API
// callers; use View for that.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"ip"`
	Username string `json:"username"`
	Secret   string `json:"password"`
}

// DeviceView is the credential-redacted projection of a Device.
type DeviceView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"ip"`
	Username string `json:"username"`
}

// View returns the redacted projection of d.
func (d Device) View() DeviceView {
	return DeviceView{
		ID:       d.ID,
		Name:     d.Name,
		Address:  d.Address,
		Username: d.Username,
	}
}

// NewDevice holds the fields required to register a device. All are required.
type NewDevice struct {
	Name     string `json:"name"`
	Address  string `json:"ip"`
	Username string `json:"username"`
	Secret   string `json:"password"`
}

// DeviceUpdate is a partial update. Empty fields leave the stored value untouched.
type DeviceUpdate struct {
	Name     string `json:"name"`
	Address  string `json:"ip"`
	Username string `json:"username"`
	Secret   string `json:"password"`
}

// Group is a named, ordered list of device IDs. Duplicates are kept verbatim.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"speakerIds"`
}

// clone returns a copy of g that shares no memory with it.
func (g Group) clone() Group {
	g.MemberIDs = slices.Clone(g.MemberIDs)
	if g.MemberIDs == nil {
		g.MemberIDs = []string{}
	}
	return g
}

// MemberSummary is the public face of a resolved group member.
type MemberSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"ip"`
}

// GroupView is a group plus summaries of the members that currently resolve.
// MemberIDs is the raw list; Members skips IDs with no matching device.
type GroupView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	MemberIDs []string        `json:"speakerIds"`
	Members   []MemberSummary `json:"speakers"`
}

// GroupUpdate is a partial update. An empty Name is ignored. A nil MemberIDs
// leaves membership untouched; a non-nil empty slice clears it.
type GroupUpdate struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"speakerIds"`
}

// Member is one slot of a group's membership list, resolved against a
// single registry snapshot. Device is nil when the ID no longer resolves.
type Member struct {
	ID     string
	Device *Device
}

// GroupTarget is a group ready for dispatch.
type GroupTarget struct {
	ID      string
	Name    string
	Members []Member
}

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	Port    int      `json:"port"`
	Devices []Device `json:"speakers"`
	Groups  []Group  `json:"groups"`
}

// Stats holds registry counts for health reporting.
type Stats struct {
	Devices int `json:"devices"`
	Groups  int `json:"groups"`
}
