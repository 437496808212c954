package events

import (
	"context"
	"time"
)

// Level is the severity attached to an Event.
type Level string

// Event levels. Request and response mark HTTP traffic through the service.
const (
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
	LevelRequest  Level = "request"
	LevelResponse Level = "response"
)

// Event types emitted by the core and the HTTP layer.
const (
	TypeRegistryInitialised = "registry.initialised"
	TypeDeviceAdded         = "registry.device_added"
	TypeDeviceUpdated       = "registry.device_updated"
	TypeDeviceRemoved       = "registry.device_removed"
	TypeGroupAdded          = "registry.group_added"
	TypeGroupUpdated        = "registry.group_updated"
	TypeGroupRemoved        = "registry.group_removed"
	TypePersistenceFailed   = "registry.persistence_failed"

	TypeCommandIssued    = "command.issued"
	TypeCommandCompleted = "command.completed"
	TypeCommandFailed    = "command.failed"
	TypeGroupCompleted   = "group.completed"

	TypeHTTPRequest  = "http.request"
	TypeHTTPResponse = "http.response"
	TypeLogin        = "auth.login"
)

// Event is one structured record of something notable happening.
//
// ID and Timestamp are assigned by the Bus when left zero.
type Event struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Forwarder delivers events to a downstream system (audit store, broker,
// metrics). Forwarders run on the bus goroutine, never on the emitter's.
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

// ForwarderFunc adapts a function to the Forwarder interface.
type ForwarderFunc func(ctx context.Context, e Event) error

// Forward calls f(ctx, e).
func (f ForwarderFunc) Forward(ctx context.Context, e Event) error { return f(ctx, e) }
