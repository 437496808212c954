package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/icholy/digest"

	"github.com/nerrad567/annunciator-core/internal/device"
)

const (
	// DefaultTimeout bounds a single device exchange when none is configured.
	DefaultTimeout = 10 * time.Second

	// MaxBodySize caps how much of a device reply is read.
	MaxBodySize = 1 << 20
)

// Outcome is the normalised result of one completed HTTP exchange.
type Outcome struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
	Body       string `json:"body"`
}

// AuthenticatedHTTPClient performs a request against one device, handling
// the authentication handshake itself.
//
// When the device demands authentication but its challenge is unusable,
// implementations return a *ChallengeError rather than a transport error.
type AuthenticatedHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientFactory builds the AuthenticatedHTTPClient for a device.
type ClientFactory func(dev device.Device, timeout time.Duration) AuthenticatedHTTPClient

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Client issues commands to speakers over HTTP digest authentication.
// It is safe for concurrent use.
type Client struct {
	base    *http.Transport
	factory ClientFactory
	timeout time.Duration
	maxBody int64
	logger  Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClientFactory replaces the default digest client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(c *Client) { c.factory = f }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxBodySize overrides MaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient creates a Client whose exchanges are bounded by timeout.
// A non-positive timeout selects DefaultTimeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := newBaseTransport()
	c := &Client{
		base:    base,
		factory: DigestClientFactory(base),
		timeout: timeout,
		maxBody: MaxBodySize,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newBaseTransport returns the pooled transport shared by every device.
// MaxConnsPerHost stays 0 so a group fan-out is never queued behind a
// per-host ceiling.
func newBaseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 4
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// Timeout returns the per-exchange timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.base.CloseIdleConnections()
}

// Execute performs one authenticated GET of path against dev.
//
// Parameters:
//   - ctx: bounds the exchange together with the client timeout
//   - dev: the target device, credential included
//   - path: command path and query, starting with "/"
//
// Returns:
//   - *Outcome: for every exchange that produced a response, whatever its status
//   - error: *TransportError when no response was obtained
func (c *Client) Execute(ctx context.Context, dev device.Device, path string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target, err := TargetURL(dev.Address, path)
	if err != nil {
		return nil, &TransportError{Address: dev.Address, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{Address: dev.Address, Path: path, Err: err}
	}

	start := time.Now()
	resp, err := c.factory(dev, c.timeout).Do(req)
	if err != nil {
		var chErr *ChallengeError
		if errors.As(err, &chErr) {
			c.logger.Debug("device challenge rejected",
				"device_id", dev.ID, "address", dev.Address, "error", chErr.Err)
			return &Outcome{
				Success:    false,
				StatusCode: http.StatusUnauthorized,
				StatusText: http.StatusText(http.StatusUnauthorized),
				Body:       chErr.Error(),
			}, nil
		}
		return nil, &TransportError{
			Address: dev.Address,
			Path:    path,
			Timeout: isTimeout(ctx, err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		// Headers arrived but the body was cut short. The exchange happened,
		// so the status stands and the partial body is kept.
		c.logger.Debug("device reply truncated",
			"device_id", dev.ID, "address", dev.Address, "error", err)
	}

	out := &Outcome{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Body:       string(body),
	}
	c.logger.Debug("device exchange complete",
		"device_id", dev.ID,
		"address", dev.Address,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return out, nil
}

// TargetURL builds http://{address}{path}. Bare IPv6 literals are bracketed.
func TargetURL(address, path string) (string, error) {
	host := address
	if ip := net.ParseIP(address); ip != nil && ip.To4() == nil {
		host = "[" + address + "]"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse("http://" + host + path)
	if err != nil {
		return "", fmt.Errorf("invalid device url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid device url: empty host in %q", address)
	}
	return u.String(), nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// DigestClientFactory returns the default factory: one digest.Transport per
// exchange layered over the shared base transport.
func DigestClientFactory(base http.RoundTripper) ClientFactory {
	return func(dev device.Device, timeout time.Duration) AuthenticatedHTTPClient {
		return &digestClient{
			base:     base,
			username: dev.Username,
			password: dev.Secret,
			timeout:  timeout,
		}
	}
}

type digestClient struct {
	base     http.RoundTripper
	username string
	password string
	timeout  time.Duration
}

// Do runs the request through digest.Transport, which answers the first 401
// and retries exactly once. A second 401 is returned unchanged.
func (c *digestClient) Do(req *http.Request) (*http.Response, error) {
	var challengeErr error

	tr := &digest.Transport{
		Username:  c.username,
		Password:  c.password,
		Transport: c.base,
		FindChallenge: func(h http.Header) (*digest.Challenge, error) {
			chal, err := digest.FindChallenge(h)
			if err != nil {
				if errors.Is(err, digest.ErrNoChallenge) {
					challengeErr = fmt.Errorf("%w: no digest challenge offered", ErrMalformedChallenge)
				} else {
					challengeErr = fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
				}
				// ErrNoChallenge makes the transport hand back the 401.
				return nil, digest.ErrNoChallenge
			}
			if chal.Nonce == "" {
				challengeErr = fmt.Errorf("%w: challenge has no nonce", ErrMalformedChallenge)
				return nil, digest.ErrNoChallenge
			}
			return chal, nil
		},
		Digest: func(r *http.Request, chal *digest.Challenge, opt digest.Options) (*digest.Credentials, error) {
			cred, err := digest.Digest(chal, opt)
			if err != nil {
				challengeErr = fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
			}
			return cred, err
		},
	}

	hc := &http.Client{Transport: tr, Timeout: c.timeout}
	resp, err := hc.Do(req)
	if challengeErr != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &ChallengeError{Err: challengeErr}
	}
	return resp, err
}
