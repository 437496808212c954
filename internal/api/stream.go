package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/annunciator-core/internal/events"
)

const (
	// streamReplay is how many buffered events a fresh SSE client receives.
	streamReplay = 100

	// streamHeartbeat keeps idle SSE connections open through proxies.
	streamHeartbeat = 25 * time.Second
)

// handleLogStream serves the event bus as Server-Sent Events.
//
// A client reconnecting with Last-Event-ID (header, or the lastEventId
// query parameter for clients that cannot set headers) receives every
// buffered event after that ID, then the live stream. A fresh client gets
// the most recent events first.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming unsupported")
		return
	}

	sub, backlog := s.subscribeFrom(lastEventID(r))
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Reconnect delay hint for EventSource.
	fmt.Fprint(w, "retry: 3000\n\n") //nolint:errcheck // failure surfaces on the next write
	for _, e := range backlog {
		if err := writeSSE(w, e); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// subscribeFrom attaches a subscriber and returns the backlog to send first.
func (s *Server) subscribeFrom(lastID uint64) (*events.Subscription, []events.Event) {
	if lastID > 0 {
		return s.bus.SubscribeSince(lastID)
	}

	recent := s.bus.Recent(streamReplay)
	if len(recent) == 0 {
		return s.bus.Subscribe(), nil
	}
	// Anything emitted between Recent and the subscription is picked up as
	// backlog after the newest replayed ID.
	sub, more := s.bus.SubscribeSince(recent[len(recent)-1].ID)
	return sub, append(recent, more...)
}

func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func writeSSE(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", e.ID, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", e.ID, data)
	return err
}
