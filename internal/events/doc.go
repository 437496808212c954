// Package events carries structured notifications out of the dispatch core.
//
// The registry and dispatcher write to a Sink; they never know who, if
// anyone, is listening. Bus is the production Sink. It:
//   - logs every event through the structured logger
//   - keeps the most recent events for SSE replay (Last-Event-ID)
//   - fans out to live subscribers (SSE, WebSocket) without blocking
//   - feeds forwarders (audit trail, MQTT mirror, InfluxDB) from one goroutine
//
// Usage:
//
//	bus := events.NewBus(logger, events.Options{BufferSize: 500})
//	bus.AddForwarder("audit", recorder)
//	go bus.Run(ctx)
//	bus.Emit(events.Event{Level: events.LevelInfo, Type: events.TypeCommandIssued, Message: "play"})
package events
