package speaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/icholy/digest"

	"github.com/nerrad567/annunciator-core/internal/device"
)

const (
	testRealm = "annunciator"
	testNonce = "a1b2c3d4e5f6"
)

// digestServer emulates a speaker that requires digest authentication.
type digestServer struct {
	username string
	password string
	hits     atomic.Int32
	handler  http.HandlerFunc
}

func (s *digestServer) challenge() *digest.Challenge {
	return &digest.Challenge{
		Realm:     testRealm,
		Nonce:     testNonce,
		Algorithm: "MD5",
		QOP:       []string{"auth"},
	}
}

func (s *digestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	if !s.authorised(r) {
		w.Header().Set("WWW-Authenticate", s.challenge().String())
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.handler(w, r)
}

func (s *digestServer) authorised(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		return false
	}
	cred, err := digest.ParseCredentials(header)
	if err != nil || cred.URI != r.URL.RequestURI() {
		return false
	}
	want, err := digest.Digest(s.challenge(), digest.Options{
		Method:   r.Method,
		URI:      cred.URI,
		Username: s.username,
		Password: s.password,
		Cnonce:   cred.Cnonce,
		Count:    cred.Nc,
	})
	if err != nil {
		return false
	}
	return cred.Username == s.username && cred.Response == want.Response
}

func newSpeaker(t *testing.T, handler http.HandlerFunc) (*digestServer, *httptest.Server) {
	t.Helper()
	ds := &digestServer{username: "admin", password: "s3cret", handler: handler}
	srv := httptest.NewServer(ds)
	t.Cleanup(srv.Close)
	return ds, srv
}

func deviceFor(srv *httptest.Server, password string) device.Device {
	return device.Device{
		ID:       "dev-1",
		Name:     "Lobby",
		Address:  strings.TrimPrefix(srv.URL, "http://"),
		Username: "admin",
		Secret:   password,
	}
}

func TestExecute_DigestSuccess(t *testing.T) {
	var gotPath string
	ds, srv := newSpeaker(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":true}`))
	})

	client := NewClient(2 * time.Second)
	defer client.Close()

	out, err := client.Execute(context.Background(), deviceFor(srv, "s3cret"), "/api/v2/pattern/play?pattern_number=3")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.Success || out.StatusCode != http.StatusOK {
		t.Errorf("Outcome = %+v, want success 200", out)
	}
	if out.StatusText != "OK" {
		t.Errorf("StatusText = %q, want OK", out.StatusText)
	}
	if out.Body != `{"result":true}` {
		t.Errorf("Body = %q", out.Body)
	}
	if gotPath != "/api/v2/pattern/play?pattern_number=3" {
		t.Errorf("device saw path %q", gotPath)
	}
	if got := ds.hits.Load(); got != 2 {
		t.Errorf("device hits = %d, want 2 (challenge + retry)", got)
	}
}

func TestExecute_WrongPasswordRetriesOnce(t *testing.T) {
	ds, srv := newSpeaker(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler reached with wrong password")
	})

	client := NewClient(2 * time.Second)
	defer client.Close()

	out, err := client.Execute(context.Background(), deviceFor(srv, "wrong"), "/api/v2/pattern/stop")
	if err != nil {
		t.Fatalf("Execute() error = %v, want failed outcome", err)
	}
	if out.Success || out.StatusCode != http.StatusUnauthorized {
		t.Errorf("Outcome = %+v, want failed 401", out)
	}
	if got := ds.hits.Load(); got != 2 {
		t.Errorf("device hits = %d, want exactly one retry", got)
	}
}

func TestExecute_DeviceErrorStatus(t *testing.T) {
	_, srv := newSpeaker(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "pattern missing", http.StatusInternalServerError)
	})

	client := NewClient(2 * time.Second)
	defer client.Close()

	out, err := client.Execute(context.Background(), deviceFor(srv, "s3cret"), "/api/v2/pattern/play?pattern_number=99")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Success {
		t.Error("Success = true for 500")
	}
	if out.StatusCode != http.StatusInternalServerError || out.StatusText != "Internal Server Error" {
		t.Errorf("status = %d %q", out.StatusCode, out.StatusText)
	}
	if !strings.Contains(out.Body, "pattern missing") {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestExecute_UnusableChallenge(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"unsupported algorithm", `Digest realm="x", nonce="n", algorithm="ROT13", qop="auth"`},
		{"missing nonce", `Digest realm="x", qop="auth"`},
		{"basic only", `Basic realm="x"`},
		{"no header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				if tt.header != "" {
					w.Header().Set("WWW-Authenticate", tt.header)
				}
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer srv.Close()

			client := NewClient(2 * time.Second)
			defer client.Close()

			out, err := client.Execute(context.Background(), deviceFor(srv, "pw"), "/api/v2/info/status")
			if err != nil {
				t.Fatalf("Execute() error = %v, want failed outcome", err)
			}
			if out.Success || out.StatusCode != http.StatusUnauthorized || out.StatusText != "Unauthorized" {
				t.Errorf("Outcome = %+v, want failed 401 Unauthorized", out)
			}
			if !strings.Contains(out.Body, "malformed digest challenge") {
				t.Errorf("Body = %q, want mention of the malformed challenge", out.Body)
			}
			if got := hits.Load(); got != 1 {
				t.Errorf("device hits = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestExecute_Timeout(t *testing.T) {
	_, srv := newSpeaker(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	client := NewClient(100 * time.Millisecond)
	defer client.Close()

	start := time.Now()
	out, err := client.Execute(context.Background(), deviceFor(srv, "s3cret"), "/api/v2/info/status")
	if out != nil {
		t.Errorf("Outcome = %+v, want nil", out)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || !te.Timeout {
		t.Errorf("error = %#v, want timeout TransportError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute took %v, timeout not enforced", elapsed)
	}
}

func TestExecute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	dev := deviceFor(srv, "pw")
	srv.Close()

	client := NewClient(2 * time.Second)
	defer client.Close()

	_, err := client.Execute(context.Background(), dev, "/api/v2/pattern/stop")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.Timeout {
		t.Error("Timeout = true for refused connection")
	}
	if te.Address != dev.Address {
		t.Errorf("Address = %q, want %q", te.Address, dev.Address)
	}
}

func TestExecute_BodyLimit(t *testing.T) {
	_, srv := newSpeaker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	})

	client := NewClient(2*time.Second, WithMaxBodySize(10))
	defer client.Close()

	out, err := client.Execute(context.Background(), deviceFor(srv, "s3cret"), "/api/v2/info/status")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out.Body) != 10 {
		t.Errorf("len(Body) = %d, want 10", len(out.Body))
	}
}

// fakeClient records requests and returns canned results.
type fakeClient struct {
	requests []*http.Request
	resp     *http.Response
	err      error
}

func (f *fakeClient) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func TestExecute_CustomFactory(t *testing.T) {
	fake := &fakeClient{err: &ChallengeError{Err: ErrMalformedChallenge}}
	var gotDevice device.Device
	client := NewClient(time.Second, WithClientFactory(func(dev device.Device, _ time.Duration) AuthenticatedHTTPClient {
		gotDevice = dev
		return fake
	}))

	dev := device.Device{ID: "d", Address: "fe80::1", Username: "u", Secret: "p"}
	out, err := client.Execute(context.Background(), dev, "/api/v2/pattern/stop")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.StatusCode != http.StatusUnauthorized || out.Success {
		t.Errorf("Outcome = %+v", out)
	}
	if gotDevice.Secret != "p" {
		t.Error("factory did not receive the device credential")
	}
	if len(fake.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(fake.requests))
	}
	if got := fake.requests[0].URL.String(); got != "http://[fe80::1]/api/v2/pattern/stop" {
		t.Errorf("URL = %q", got)
	}
	if fake.requests[0].Method != http.MethodGet {
		t.Errorf("Method = %s, want GET", fake.requests[0].Method)
	}
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		address string
		path    string
		want    string
		wantErr bool
	}{
		{"10.0.0.5", "/api/v2/pattern/stop", "http://10.0.0.5/api/v2/pattern/stop", false},
		{"10.0.0.5:8080", "/api/v2/info/status", "http://10.0.0.5:8080/api/v2/info/status", false},
		{"speaker.local", "api/v2/pattern/stop", "http://speaker.local/api/v2/pattern/stop", false},
		{"::1", "/x", "http://[::1]/x", false},
		{"[::1]:80", "/x", "http://[::1]:80/x", false},
		{"", "/x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := TargetURL(tt.address, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TargetURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TargetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
