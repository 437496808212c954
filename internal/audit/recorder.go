package audit

import (
	"context"
	"fmt"

	"github.com/nerrad567/annunciator-core/internal/events"
)

// Actions recorded in audit_logs.
const (
	ActionCreate            = "create"
	ActionUpdate            = "update"
	ActionDelete            = "delete"
	ActionCommand           = "command"
	ActionLogin             = "login"
	ActionPersistenceFailed = "persistence_failed"
)

// Entity types recorded in audit_logs.
const (
	EntitySpeaker  = "speaker"
	EntityGroup    = "group"
	EntityRegistry = "registry"
	EntitySession  = "session"
)

// Sources recorded in audit_logs.
const (
	SourceCore = "core"
	SourceAPI  = "api"
)

type mapping struct {
	action     string
	entityType string
	idKey      string
	source     string
}

// recorded lists the audited event types. Anything else (http.*,
// command.issued, registry.initialised) is skipped.
var recorded = map[string]mapping{
	events.TypeDeviceAdded:       {ActionCreate, EntitySpeaker, "device_id", SourceCore},
	events.TypeDeviceUpdated:     {ActionUpdate, EntitySpeaker, "device_id", SourceCore},
	events.TypeDeviceRemoved:     {ActionDelete, EntitySpeaker, "device_id", SourceCore},
	events.TypeGroupAdded:        {ActionCreate, EntityGroup, "group_id", SourceCore},
	events.TypeGroupUpdated:      {ActionUpdate, EntityGroup, "group_id", SourceCore},
	events.TypeGroupRemoved:      {ActionDelete, EntityGroup, "group_id", SourceCore},
	events.TypePersistenceFailed: {ActionPersistenceFailed, EntityRegistry, "entity_id", SourceCore},
	events.TypeCommandCompleted:  {ActionCommand, EntitySpeaker, "device_id", SourceCore},
	events.TypeCommandFailed:     {ActionCommand, EntitySpeaker, "device_id", SourceCore},
	events.TypeGroupCompleted:    {ActionCommand, EntityGroup, "group_id", SourceCore},
	events.TypeLogin:             {ActionLogin, EntitySession, "", SourceAPI},
}

// Recorder is an events.Forwarder that writes audit-worthy events to a
// Repository.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Forward stores e when its type is audited and ignores it otherwise.
func (r *Recorder) Forward(ctx context.Context, e events.Event) error {
	entry, ok := FromEvent(e)
	if !ok {
		return nil
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording %s: %w", e.Type, err)
	}
	return nil
}

// FromEvent converts an event into an audit entry. The boolean is false for
// event types that are not audited.
func FromEvent(e events.Event) (*Entry, bool) {
	m, ok := recorded[e.Type]
	if !ok {
		return nil, false
	}

	entry := &Entry{
		EventID:    e.ID,
		Level:      string(e.Level),
		Action:     m.action,
		EntityType: m.entityType,
		Source:     m.source,
		Message:    e.Message,
		CreatedAt:  e.Timestamp.UTC(),
	}
	entry.Details = make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		entry.Details[k] = v
	}
	entry.Details["event_type"] = e.Type

	if m.idKey != "" {
		entry.EntityID = stringValue(e.Data[m.idKey])
	}
	if e.Type == events.TypeLogin {
		entry.Actor = stringValue(e.Data["username"])
	}
	return entry, true
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
