// Package speaker talks to a single annunciator speaker over HTTP.
//
// Every request is a GET protected by HTTP digest authentication. The
// handshake is delegated to github.com/icholy/digest: the first request
// draws a 401 challenge, the transport computes credentials and retries
// exactly once. Whatever the device answers to the retry is final.
//
// Results fall into two shapes:
//
//   - *Outcome: the device answered. Success is true for 2xx; any other
//     status, including a second 401, is a failed Outcome, not an error.
//   - *TransportError: no answer at all (DNS, refused, reset, timeout).
//     It matches ErrTransport and records whether a deadline expired.
//
// A device that sends a challenge the client cannot use yields a failed
// 401 Outcome whose body names the problem.
//
// # Usage
//
//	client := speaker.NewClient(10*time.Second, speaker.WithLogger(logger))
//	defer client.Close()
//
//	out, err := client.Execute(ctx, dev, "/api/v2/info/status")
//	if errors.Is(err, speaker.ErrTransport) {
//	    // unreachable
//	}
//	status := speaker.ParseStatus(out.Body)
package speaker
