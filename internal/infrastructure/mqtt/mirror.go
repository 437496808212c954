package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/annunciator-core/internal/events"
)

// Publisher is the part of Client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventMirror is an events.Forwarder that republishes every bus event to
// {prefix}/events/{type}. Messages are never retained.
type EventMirror struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewEventMirror creates a mirror publishing through pub.
func NewEventMirror(pub Publisher, topics Topics, qos byte) *EventMirror {
	return &EventMirror{pub: pub, topics: topics, qos: qos}
}

// Forward implements events.Forwarder.
func (m *EventMirror) Forward(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", e.ID, err)
	}
	return m.pub.Publish(m.topics.Event(e.Type), payload, m.qos, false)
}
