package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/annunciator-core/internal/events"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return f.err
}

func TestEventMirror_Forward(t *testing.T) {
	pub := &fakePublisher{}
	mirror := NewEventMirror(pub, NewTopics("ann"), 1)

	e := events.Event{ID: 7, Level: events.LevelInfo, Type: events.TypeCommandCompleted, Message: "stop on Hall completed"}
	if err := mirror.Forward(context.Background(), e); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "ann/events/command.completed" || msg.qos != 1 || msg.retained {
		t.Errorf("message = %+v", msg)
	}
	var got events.Event
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.ID != 7 || got.Message != e.Message {
		t.Errorf("payload event = %+v", got)
	}
}

func TestEventMirror_PublishError(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	mirror := NewEventMirror(pub, NewTopics(""), 0)

	err := mirror.Forward(context.Background(), events.Event{Type: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Forward() error = %v, want ErrNotConnected", err)
	}
}

func TestEventMirror_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	mirror := NewEventMirror(pub, NewTopics(""), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mirror.Forward(ctx, events.Event{Type: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Forward() error = %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Error("published after cancellation")
	}
}
