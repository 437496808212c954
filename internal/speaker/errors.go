package speaker

import (
	"errors"
	"fmt"
)

// Domain errors for the speaker client package.
var (
	// ErrTransport is matched by every *TransportError. It means no HTTP
	// exchange with the device completed.
	ErrTransport = errors.New("speaker: transport failure")

	// ErrMalformedChallenge is wrapped by a ChallengeError when the device
	// answered 401 with a WWW-Authenticate header the client cannot use.
	ErrMalformedChallenge = errors.New("speaker: malformed digest challenge")
)

// TransportError reports that a request never produced a response:
// DNS failure, refused or reset connection, timeout, or context deadline.
type TransportError struct {
	Address string
	Path    string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("speaker: request to %s%s timed out: %v", e.Address, e.Path, e.Err)
	}
	return fmt.Sprintf("speaker: request to %s%s failed: %v", e.Address, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) succeed for any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ChallengeError is returned by an AuthenticatedHTTPClient when the device
// demanded authentication but no credentials could be computed from its
// challenge. Client.Execute turns it into a failed 401 Outcome.
type ChallengeError struct {
	Err error
}

func (e *ChallengeError) Error() string {
	return "speaker: unusable authentication challenge: " + e.Err.Error()
}

func (e *ChallengeError) Unwrap() error { return e.Err }
