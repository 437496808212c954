package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "annunciator"

// Target types addressed by command topics.
const (
	TargetDevice = "device"
	TargetGroup  = "group"
)

// Topics builds the MQTT topic hierarchy under a configurable prefix.
//
//	{prefix}/status                              online/offline (retained, LWT)
//	{prefix}/events/{type}                       mirrored event bus
//	{prefix}/command/{device|group}/{id}/{cmd}   command ingress
//	{prefix}/result/{device|group}/{id}/{cmd}    command results
//
// Using these helpers keeps publishers and subscribers in agreement:
//
//	topics := mqtt.NewTopics("annunciator")
//	topics.Command(mqtt.TargetGroup, "g-1", "play")
//	// Returns: "annunciator/command/group/g-1/play"
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the service status topic.
//
// Example: annunciator/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Event returns the topic an event type is mirrored to.
//
// Example: annunciator/events/command.completed
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/events/%s", t.prefix(), eventType)
}

// Command returns the ingress topic for a command.
//
// Example: annunciator/command/device/0192.../stop
func (t Topics) Command(target, id, command string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", t.prefix(), target, id, command)
}

// Result returns the topic a command result is published to.
//
// Example: annunciator/result/group/0192.../play
func (t Topics) Result(target, id, command string) string {
	return fmt.Sprintf("%s/result/%s/%s/%s", t.prefix(), target, id, command)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: annunciator/command/+/+/+
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+/+/+"
}

// AllEvents returns a pattern matching every mirrored event.
//
// Pattern: annunciator/events/+
func (t Topics) AllEvents() string {
	return t.prefix() + "/events/+"
}

// CommandTopic is a decoded command topic.
type CommandTopic struct {
	Target  string
	ID      string
	Command string
}

// ParseCommand splits a command topic into its parts.
func (t Topics) ParseCommand(topic string) (CommandTopic, error) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !ok {
		return CommandTopic{}, fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return CommandTopic{}, fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}
	if parts[0] != TargetDevice && parts[0] != TargetGroup {
		return CommandTopic{}, fmt.Errorf("%w: unknown target %q", ErrInvalidTopic, parts[0])
	}
	return CommandTopic{Target: parts[0], ID: parts[1], Command: parts[2]}, nil
}
