package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/annunciator-core/internal/events"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/config"
)

func TestChannelMatches(t *testing.T) {
	tests := []struct {
		channel   string
		eventType string
		want      bool
	}{
		{"*", "command.issued", true},
		{"command.issued", "command.issued", true},
		{"command", "command.completed", true},
		{"command", "commander.x", false},
		{"registry", "command.issued", false},
		{"command.issued", "command.completed", false},
	}
	for _, tt := range tests {
		if got := channelMatches(tt.channel, tt.eventType); got != tt.want {
			t.Errorf("channelMatches(%q, %q) = %v, want %v", tt.channel, tt.eventType, got, tt.want)
		}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"registry": {}},
	}
	other := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"command": {}},
	}
	hub.Register(subscribed)
	hub.Register(other)
	if hub.ClientCount() != 2 {
		t.Fatalf("ClientCount = %d, want 2", hub.ClientCount())
	}

	hub.Broadcast(events.Event{ID: 7, Type: events.TypeDeviceAdded, Timestamp: time.Now()})

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != events.TypeDeviceAdded || msg.ID != "7" {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client got nothing")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client received the event")
	default:
	}

	hub.Unregister(subscribed)
	hub.Unregister(subscribed) // second call must not close twice
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	if hub.cfg.PingInterval <= 0 || hub.cfg.PongTimeout <= 0 || hub.cfg.MaxMessageSize <= 0 {
		t.Errorf("zero config not defaulted: %+v", hub.cfg)
	}
}

// dialHub starts the hub and returns a connected client.
func dialHub(t *testing.T, env *testEnv) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.hub.Run(ctx, env.bus)

	deadline := time.Now().Add(2 * time.Second)
	for env.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("hub never subscribed to the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, ts
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	env := newTestEnv(t)
	sp := env.addSpeaker(t, "Lobby", "10.0.0.5")
	conn, ts := dialHub(t, env)

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"command"}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readWS(t, conn)
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("ack = %+v", ack)
	}

	resp, err := http.Get(ts.URL + "/stop/" + sp.ID)
	if err != nil {
		t.Fatalf("GET stop: %v", err)
	}
	resp.Body.Close()

	// http.* events are filtered out; the first delivery is the command.
	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != events.TypeCommandIssued {
		t.Errorf("first event = %+v, want command.issued", msg)
	}
	msg = readWS(t, conn)
	if msg.EventType != events.TypeCommandCompleted {
		t.Errorf("second event = %s, want command.completed", msg.EventType)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialHub(t, env)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "dance", ID: "d1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "d1" {
		t.Errorf("unknown type reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "s0", Payload: WSSubscribePayload{}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "s0" {
		t.Errorf("empty subscribe reply = %+v", msg)
	}
}

func TestWebSocket_RequiresTokenWhenAuthEnabled(t *testing.T) {
	env := newTestEnv(t, withAuth(t, "pw"))
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	session := decode[struct {
		Token string `json:"token"`
	}](t, env.login(t, "admin", "pw"))

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+session.Token, nil)
	if err != nil {
		t.Fatalf("dial with token: %v (resp %v)", err, resp)
	}
	conn.Close()
}
