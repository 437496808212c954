package mqtt

import (
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outgoing messages at 1 MiB, below common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic.
//
// Retain only the service status. Events and command results are
// transient and must not be replayed to late subscribers.
//
// Example:
//
//	topic := client.Topics().Event(events.TypeCommandCompleted)
//	err := client.Publish(topic, payload, client.QoS(), false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return waitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishJSON encodes v and publishes it at the configured QoS, not retained.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload for %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, c.QoS(), false)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, c.QoS(), true)
}

// waitToken waits up to defaultPublishTimeout and wraps failures in kind.
func waitToken(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", kind, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
