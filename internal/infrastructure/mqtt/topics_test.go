package mqtt

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("site-a/annunciator/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "site-a/annunciator/status"},
		{"event", topics.Event("command.completed"), "site-a/annunciator/events/command.completed"},
		{"command", topics.Command(TargetGroup, "g1", "play"), "site-a/annunciator/command/group/g1/play"},
		{"result", topics.Result(TargetDevice, "d1", "stop"), "site-a/annunciator/result/device/d1/stop"},
		{"all commands", topics.AllCommands(), "site-a/annunciator/command/+/+/+"},
		{"all events", topics.AllEvents(), "site-a/annunciator/events/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_DefaultPrefix(t *testing.T) {
	if got := NewTopics("").Status(); got != "annunciator/status" {
		t.Errorf("Status() = %q", got)
	}
	if got := (Topics{}).Event("x"); got != "annunciator/events/x" {
		t.Errorf("zero Topics Event() = %q", got)
	}
}

func TestParseCommand(t *testing.T) {
	topics := NewTopics("annunciator")

	tests := []struct {
		topic   string
		want    CommandTopic
		wantErr bool
	}{
		{"annunciator/command/device/abc/play", CommandTopic{TargetDevice, "abc", "play"}, false},
		{"annunciator/command/group/g-1/status", CommandTopic{TargetGroup, "g-1", "status"}, false},
		{"annunciator/command/zone/abc/play", CommandTopic{}, true},
		{"annunciator/command/device/abc", CommandTopic{}, true},
		{"annunciator/command/device//play", CommandTopic{}, true},
		{"annunciator/command/device/abc/play/extra", CommandTopic{}, true},
		{"other/command/device/abc/play", CommandTopic{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := topics.ParseCommand(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("ParseCommand() error = %v, want ErrInvalidTopic", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
