// Package mqtt connects Annunciator Core to an MQTT broker.
//
// The broker link is optional (mqtt.enabled). When present it carries:
//   - a mirror of the event bus on {prefix}/events/{type}
//   - command ingress on {prefix}/command/{device|group}/{id}/{play|stop|status}
//   - command results on {prefix}/result/{device|group}/{id}/{command}
//   - retained online/offline status on {prefix}/status, with an LWT
//
// Command ingress itself lives in the dispatch package; this package only
// provides the connection, topic builders and the EventMirror forwarder.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) whenever the broker is off-host
//   - Credentials are validated against the broker ACL
//   - Command topics can trigger alarms; restrict publish rights to them
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bus.AddForwarder("mqtt", mqtt.NewEventMirror(client, client.Topics(), client.QoS()))
package mqtt
