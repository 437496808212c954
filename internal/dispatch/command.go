package dispatch

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidCommand is returned when a command or its parameters cannot be
// decoded.
var ErrInvalidCommand = errors.New("dispatch: invalid command")

// Kind identifies one of the commands a speaker understands.
type Kind string

// Command kinds.
const (
	KindPlay   Kind = "play"
	KindStop   Kind = "stop"
	KindStatus Kind = "status"
)

// Device API paths.
const (
	pathPlay   = "/api/v2/pattern/play"
	pathStop   = "/api/v2/pattern/stop"
	pathStatus = "/api/v2/info/status"
)

// ParseKind validates a command name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPlay, KindStop, KindStatus:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, s)
	}
}

// Command is a logical instruction for a speaker. Only play uses the
// pattern parameters.
type Command struct {
	Kind      Kind `json:"command"`
	Pattern   int  `json:"pattern,omitempty"`
	PlayCount int  `json:"playcount,omitempty"`
	Interval  int  `json:"interval,omitempty"`
	Duration  *int `json:"duration,omitempty"`
}

// Play returns a play command for pattern with default repetition.
func Play(pattern int) Command {
	return Command{Kind: KindPlay, Pattern: pattern}
}

// Stop returns a stop command.
func Stop() Command {
	return Command{Kind: KindStop}
}

// Status returns a status query.
func Status() Command {
	return Command{Kind: KindStatus}
}

// Path encodes the command as a device request path.
//
// play: /api/v2/pattern/play?pattern_number=N with playcount only when
// above 1, interval only when above 0 and duration whenever it is set.
func (c Command) Path() string {
	switch c.Kind {
	case KindPlay:
		pattern := c.Pattern
		if pattern < 1 {
			pattern = 1
		}
		var b strings.Builder
		b.WriteString(pathPlay)
		b.WriteString("?pattern_number=")
		b.WriteString(strconv.Itoa(pattern))
		if c.PlayCount > 1 {
			b.WriteString("&playcount=")
			b.WriteString(strconv.Itoa(c.PlayCount))
		}
		if c.Interval > 0 {
			b.WriteString("&interval=")
			b.WriteString(strconv.Itoa(c.Interval))
		}
		if c.Duration != nil {
			b.WriteString("&duration=")
			b.WriteString(strconv.Itoa(*c.Duration))
		}
		return b.String()
	case KindStop:
		return pathStop
	case KindStatus:
		return pathStatus
	default:
		return ""
	}
}

// Validate checks the command against the ranges the devices accept.
func (c Command) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Kind != KindPlay {
		return nil
	}
	// Zero pattern and playcount select the defaults.
	if c.Pattern < 0 {
		return fmt.Errorf("%w: pattern must not be negative", ErrInvalidCommand)
	}
	if c.PlayCount < 0 {
		return fmt.Errorf("%w: playcount must not be negative", ErrInvalidCommand)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidCommand)
	}
	if c.Duration != nil && *c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidCommand)
	}
	return nil
}

// ParsePlay decodes play parameters from a query string.
//
// Accepted keys are pattern (or its alias pattern_number), playcount,
// interval and duration. Absent keys take defaults: pattern 1, playcount 1,
// interval 0, no duration.
func ParsePlay(q url.Values) (Command, error) {
	cmd := Command{Kind: KindPlay, Pattern: 1, PlayCount: 1}

	raw := q.Get("pattern")
	if raw == "" {
		raw = q.Get("pattern_number")
	}
	if raw != "" {
		n, err := parseInt("pattern", raw, 1)
		if err != nil {
			return Command{}, err
		}
		cmd.Pattern = n
	}
	if raw := q.Get("playcount"); raw != "" {
		n, err := parseInt("playcount", raw, 1)
		if err != nil {
			return Command{}, err
		}
		cmd.PlayCount = n
	}
	if raw := q.Get("interval"); raw != "" {
		n, err := parseInt("interval", raw, 0)
		if err != nil {
			return Command{}, err
		}
		cmd.Interval = n
	}
	if raw := q.Get("duration"); raw != "" {
		n, err := parseInt("duration", raw, 0)
		if err != nil {
			return Command{}, err
		}
		cmd.Duration = &n
	}
	return cmd, nil
}

// Parse builds a command of the named kind. Query parameters are only
// consulted for play.
func Parse(kind string, q url.Values) (Command, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Command{}, err
	}
	switch k {
	case KindPlay:
		return ParsePlay(q)
	case KindStop:
		return Stop(), nil
	default:
		return Status(), nil
	}
}

func parseInt(field, raw string, minimum int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidCommand, field, raw)
	}
	if n < minimum {
		return 0, fmt.Errorf("%w: %s must be at least %d", ErrInvalidCommand, field, minimum)
	}
	return n, nil
}
