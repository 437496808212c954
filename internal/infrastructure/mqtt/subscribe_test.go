package mqtt

import (
	"errors"
	"testing"
)

func TestCommandMessageHandler(t *testing.T) {
	var got []CommandTopic
	h := commandMessageHandler(NewTopics("ann"), func(ct CommandTopic, payload []byte) error {
		got = append(got, ct)
		if string(payload) != `{"pattern":2}` {
			t.Errorf("payload = %s", payload)
		}
		return nil
	})

	if err := h("ann/command/group/g-1/play", []byte(`{"pattern":2}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	want := CommandTopic{Target: TargetGroup, ID: "g-1", Command: "play"}
	if len(got) != 1 || got[0] != want {
		t.Errorf("decoded = %+v, want [%+v]", got, want)
	}

	for _, topic := range []string{"ann/command/zone/z/play", "other/command/device/d/stop", "ann/command/device/d"} {
		if err := h(topic, nil); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("%s: error = %v, want ErrInvalidTopic", topic, err)
		}
	}
	if len(got) != 1 {
		t.Errorf("handler called for undecodable topics: %+v", got)
	}
}

func TestCommandMessageHandlerPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	h := commandMessageHandler(NewTopics("ann"), func(CommandTopic, []byte) error { return boom })
	if err := h("ann/command/device/d/stop", nil); !errors.Is(err, boom) {
		t.Errorf("error = %v, want handler error", err)
	}
}
