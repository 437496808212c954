package dispatch

import (
	"errors"
	"net/url"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestCommandPath(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"play default pattern", Command{Kind: KindPlay}, "/api/v2/pattern/play?pattern_number=1"},
		{"play pattern", Play(4), "/api/v2/pattern/play?pattern_number=4"},
		{"playcount one omitted", Command{Kind: KindPlay, Pattern: 2, PlayCount: 1}, "/api/v2/pattern/play?pattern_number=2"},
		{"playcount", Command{Kind: KindPlay, Pattern: 2, PlayCount: 3}, "/api/v2/pattern/play?pattern_number=2&playcount=3"},
		{"interval", Command{Kind: KindPlay, Pattern: 2, Interval: 5}, "/api/v2/pattern/play?pattern_number=2&interval=5"},
		{"duration zero kept", Command{Kind: KindPlay, Pattern: 2, Duration: intPtr(0)}, "/api/v2/pattern/play?pattern_number=2&duration=0"},
		{
			"all parameters",
			Command{Kind: KindPlay, Pattern: 7, PlayCount: 2, Interval: 10, Duration: intPtr(30)},
			"/api/v2/pattern/play?pattern_number=7&playcount=2&interval=10&duration=30",
		},
		{"stop", Stop(), "/api/v2/pattern/stop"},
		{"status", Status(), "/api/v2/info/status"},
		{"unknown", Command{Kind: "reboot"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Path(); got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePlay(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    Command
		wantErr bool
	}{
		{"defaults", "", Command{Kind: KindPlay, Pattern: 1, PlayCount: 1}, false},
		{"pattern", "pattern=5", Command{Kind: KindPlay, Pattern: 5, PlayCount: 1}, false},
		{"pattern_number alias", "pattern_number=6", Command{Kind: KindPlay, Pattern: 6, PlayCount: 1}, false},
		{"pattern wins over alias", "pattern=2&pattern_number=6", Command{Kind: KindPlay, Pattern: 2, PlayCount: 1}, false},
		{
			"full",
			"pattern=3&playcount=4&interval=2&duration=60",
			Command{Kind: KindPlay, Pattern: 3, PlayCount: 4, Interval: 2, Duration: intPtr(60)},
			false,
		},
		{"non-integer pattern", "pattern=abc", Command{}, true},
		{"zero pattern", "pattern=0", Command{}, true},
		{"zero playcount", "playcount=0", Command{}, true},
		{"negative interval", "interval=-1", Command{}, true},
		{"negative duration", "duration=-5", Command{}, true},
		{"float duration", "duration=1.5", Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			got, err := ParsePlay(q)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("ParsePlay() error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePlay() error = %v", err)
			}
			if got.Path() != tt.want.Path() || got.Kind != tt.want.Kind || got.PlayCount != tt.want.PlayCount {
				t.Errorf("ParsePlay() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	q := url.Values{"pattern": {"9"}}

	cmd, err := Parse("STOP", q)
	if err != nil || cmd.Kind != KindStop {
		t.Errorf("Parse(STOP) = %+v, %v", cmd, err)
	}
	cmd, err = Parse("play", q)
	if err != nil || cmd.Pattern != 9 {
		t.Errorf("Parse(play) = %+v, %v", cmd, err)
	}
	cmd, err = Parse("status", q)
	if err != nil || cmd.Path() != "/api/v2/info/status" {
		t.Errorf("Parse(status) = %+v, %v", cmd, err)
	}
	if _, err := Parse("reboot", q); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Parse(reboot) error = %v, want ErrInvalidCommand", err)
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"play zero values", Command{Kind: KindPlay}, false},
		{"stop", Stop(), false},
		{"unknown kind", Command{Kind: "x"}, true},
		{"negative pattern", Command{Kind: KindPlay, Pattern: -1}, true},
		{"negative interval", Command{Kind: KindPlay, Interval: -1}, true},
		{"negative duration", Command{Kind: KindPlay, Duration: intPtr(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
