package mqtt

import (
	"fmt"
)

// CommandHandler receives one decoded command message.
type CommandHandler func(ct CommandTopic, payload []byte) error

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription is remembered and restored after a reconnect.
// Handlers run on paho's delivery goroutines and must not block for long.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.track(subscription{topic: topic, qos: qos, handler: handler})

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(token, ErrSubscribeFailed); err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Unsubscribe drops topic. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	c.untrack(topic)

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return waitToken(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// SubscribeCommands routes every {prefix}/command/{target}/{id}/{command}
// message to handler at the configured QoS. Topics that do not decode are
// rejected before handler sees them.
func (c *Client) SubscribeCommands(handler CommandHandler) error {
	return c.Subscribe(c.topics.AllCommands(), c.QoS(), commandMessageHandler(c.topics, handler))
}

// UnsubscribeCommands stops command ingress.
func (c *Client) UnsubscribeCommands() error {
	return c.Unsubscribe(c.topics.AllCommands())
}

// PublishResult publishes v as JSON on the result topic paired with ct.
func (c *Client) PublishResult(ct CommandTopic, v any) error {
	return c.PublishJSON(c.topics.Result(ct.Target, ct.ID, ct.Command), v)
}

func commandMessageHandler(topics Topics, handler CommandHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		ct, err := topics.ParseCommand(topic)
		if err != nil {
			return err
		}
		return handler(ct, payload)
	}
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
