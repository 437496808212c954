package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/events"
	"github.com/nerrad567/annunciator-core/internal/speaker"
)

// fakeResolver serves devices and groups from maps.
type fakeResolver struct {
	devices map[string]device.Device
	groups  map[string]device.Group
}

func (f *fakeResolver) ResolveDevice(id string) (device.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return device.Device{}, device.ErrDeviceNotFound
	}
	return d, nil
}

func (f *fakeResolver) ResolveGroup(id string) (device.GroupTarget, error) {
	g, ok := f.groups[id]
	if !ok {
		return device.GroupTarget{}, device.ErrGroupNotFound
	}
	target := device.GroupTarget{ID: g.ID, Name: g.Name, Members: []device.Member{}}
	for _, mid := range g.MemberIDs {
		m := device.Member{ID: mid}
		if d, ok := f.devices[mid]; ok {
			m.Device = &d
		}
		target.Members = append(target.Members, m)
	}
	return target, nil
}

type call struct {
	deviceID string
	path     string
}

// fakeExecutor returns a scripted response per device.
type fakeExecutor struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]func(ctx context.Context) (*speaker.Outcome, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, dev device.Device, path string) (*speaker.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{deviceID: dev.ID, path: path})
	respond := f.responses[dev.ID]
	f.mu.Unlock()
	if respond == nil {
		return ok(""), nil
	}
	return respond(ctx)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ok(body string) *speaker.Outcome {
	return &speaker.Outcome{Success: true, StatusCode: 200, StatusText: "OK", Body: body}
}

func unreachable(addr string) func(context.Context) (*speaker.Outcome, error) {
	return func(context.Context) (*speaker.Outcome, error) {
		return nil, &speaker.TransportError{Address: addr, Err: errors.New("connection refused")}
	}
}

func blockUntilDone(ctx context.Context) (*speaker.Outcome, error) {
	<-ctx.Done()
	return nil, &speaker.TransportError{Address: "slow", Timeout: true, Err: ctx.Err()}
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingMetrics captures metrics calls.
type recordingMetrics struct {
	mu        sync.Mutex
	exchanges []string
	groups    int
}

func (m *recordingMetrics) RecordExchange(_, _, outcome string, _ time.Duration, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, outcome)
}

func (m *recordingMetrics) RecordGroup(_, _ string, _, _, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups++
}

func fixture() *fakeResolver {
	return &fakeResolver{
		devices: map[string]device.Device{
			"a": {ID: "a", Name: "Hall", Address: "10.0.0.1", Username: "u", Secret: "p"},
			"b": {ID: "b", Name: "Yard", Address: "10.0.0.2", Username: "u", Secret: "p"},
			"c": {ID: "c", Name: "Gate", Address: "10.0.0.3", Username: "u", Secret: "p"},
		},
		groups: map[string]device.Group{
			"all":   {ID: "all", Name: "All", MemberIDs: []string{"a", "b", "c"}},
			"empty": {ID: "empty", Name: "Empty", MemberIDs: []string{}},
			"stale": {ID: "stale", Name: "Stale", MemberIDs: []string{"a", "gone", "a"}},
		},
	}
}

func TestRunOnDevice_Play(t *testing.T) {
	exec := &fakeExecutor{}
	sink := &recordingSink{}
	d := New(fixture(), exec, WithEventSink(sink))

	res, err := d.RunOnDevice(context.Background(), "a", Command{Kind: KindPlay, Pattern: 3, PlayCount: 2})
	if err != nil {
		t.Fatalf("RunOnDevice() error = %v", err)
	}
	if res.DeviceName != "Hall" || !res.Outcome.Success {
		t.Errorf("Result = %+v", res)
	}
	if res.Status != nil {
		t.Errorf("Status = %v, want nil for play", res.Status)
	}
	if len(exec.calls) != 1 || exec.calls[0].path != "/api/v2/pattern/play?pattern_number=3&playcount=2" {
		t.Errorf("calls = %+v", exec.calls)
	}
	types := sink.types()
	if len(types) != 2 || types[0] != events.TypeCommandIssued || types[1] != events.TypeCommandCompleted {
		t.Errorf("events = %v", types)
	}
}

func TestRunOnDevice_StatusUnwrap(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"a": func(context.Context) (*speaker.Outcome, error) {
			return ok(`{"response":{"power":"on"},"result":true}`), nil
		},
	}}
	d := New(fixture(), exec)

	res, err := d.RunOnDevice(context.Background(), "a", Status())
	if err != nil {
		t.Fatalf("RunOnDevice() error = %v", err)
	}
	status, isMap := res.Status.(map[string]any)
	if !isMap || status["power"] != "on" || len(status) != 1 {
		t.Errorf("Status = %#v, want {power:on}", res.Status)
	}
}

func TestRunOnDevice_Errors(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"b": unreachable("10.0.0.2"),
		"c": func(context.Context) (*speaker.Outcome, error) {
			return &speaker.Outcome{StatusCode: 401, StatusText: "Unauthorized"}, nil
		},
	}}
	sink := &recordingSink{}
	d := New(fixture(), exec, WithEventSink(sink))

	if _, err := d.RunOnDevice(context.Background(), "missing", Stop()); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("missing device error = %v", err)
	}
	if exec.callCount() != 0 {
		t.Error("client called for a missing device")
	}

	_, err := d.RunOnDevice(context.Background(), "b", Stop())
	var te *speaker.TransportError
	if !errors.As(err, &te) {
		t.Errorf("unreachable device error = %v, want TransportError", err)
	}

	res, err := d.RunOnDevice(context.Background(), "c", Stop())
	if err != nil {
		t.Fatalf("401 device error = %v, want failed outcome", err)
	}
	if res.Outcome.Success || res.Outcome.StatusCode != http.StatusUnauthorized {
		t.Errorf("Outcome = %+v", res.Outcome)
	}

	if _, err := d.RunOnDevice(context.Background(), "a", Command{Kind: KindPlay, Interval: -1}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("invalid command error = %v", err)
	}

	failed := 0
	for _, typ := range sink.types() {
		if typ == events.TypeCommandFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("command.failed events = %d, want 2", failed)
	}
}

func TestRunOnGroup_IsolatesFailures(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"b": unreachable("10.0.0.2"),
	}}
	metrics := &recordingMetrics{}
	d := New(fixture(), exec, WithMetrics(metrics))

	agg, err := d.RunOnGroup(context.Background(), "all", Stop())
	if err != nil {
		t.Fatalf("RunOnGroup() error = %v", err)
	}
	if agg.Total != 3 || agg.Succeeded != 2 || agg.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", agg.Total, agg.Succeeded, agg.Failed)
	}
	wantOrder := []string{"a", "b", "c"}
	for i, m := range agg.PerMember {
		if m.DeviceID != wantOrder[i] {
			t.Errorf("PerMember[%d] = %s, want %s", i, m.DeviceID, wantOrder[i])
		}
	}
	if b := agg.PerMember[1]; b.Success || b.Error == "" {
		t.Errorf("member b = %+v, want failure with error", b)
	}
	if a := agg.PerMember[0]; !a.Success || a.StatusCode != 200 || a.DeviceName != "Hall" {
		t.Errorf("member a = %+v", a)
	}
	if agg.Group.Name != "All" {
		t.Errorf("Group = %+v", agg.Group)
	}
	if len(metrics.exchanges) != 3 || metrics.groups != 1 {
		t.Errorf("metrics = %v exchanges, %d groups", metrics.exchanges, metrics.groups)
	}
}

func TestRunOnGroup_Empty(t *testing.T) {
	exec := &fakeExecutor{}
	d := New(fixture(), exec)

	agg, err := d.RunOnGroup(context.Background(), "empty", Play(1))
	if err != nil {
		t.Fatalf("RunOnGroup() error = %v", err)
	}
	if agg.Total != 0 || agg.Succeeded != 0 || agg.Failed != 0 || len(agg.PerMember) != 0 {
		t.Errorf("GroupOutcome = %+v, want all zero", agg)
	}
	if agg.PerMember == nil {
		t.Error("PerMember is nil, want empty slice")
	}
	if exec.callCount() != 0 {
		t.Errorf("client called %d times for an empty group", exec.callCount())
	}
}

func TestRunOnGroup_UnresolvedAndDuplicates(t *testing.T) {
	exec := &fakeExecutor{}
	d := New(fixture(), exec)

	agg, err := d.RunOnGroup(context.Background(), "stale", Stop())
	if err != nil {
		t.Fatalf("RunOnGroup() error = %v", err)
	}
	if agg.Total != 3 || agg.Succeeded != 2 || agg.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", agg.Total, agg.Succeeded, agg.Failed)
	}
	if m := agg.PerMember[1]; m.DeviceID != "gone" || m.Error != "not found" || m.Success {
		t.Errorf("unresolved member = %+v", m)
	}
	if exec.callCount() != 2 {
		t.Errorf("client calls = %d, want 2 (duplicate contacted twice, stale skipped)", exec.callCount())
	}
}

func TestRunOnGroup_NotFound(t *testing.T) {
	d := New(fixture(), &fakeExecutor{})
	if _, err := d.RunOnGroup(context.Background(), "nope", Stop()); !errors.Is(err, device.ErrGroupNotFound) {
		t.Errorf("error = %v, want ErrGroupNotFound", err)
	}
}

func TestRunOnGroup_TimeoutIsolation(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"b": blockUntilDone,
	}}
	d := New(fixture(), exec, WithTimeout(100*time.Millisecond))

	start := time.Now()
	agg, err := d.RunOnGroup(context.Background(), "all", Stop())
	if err != nil {
		t.Fatalf("RunOnGroup() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("group took %v, per-member timeout not applied", elapsed)
	}
	if agg.Succeeded != 2 || agg.Failed != 1 {
		t.Errorf("counts = %d succeeded, %d failed", agg.Succeeded, agg.Failed)
	}
	if !agg.PerMember[0].Success || !agg.PerMember[2].Success {
		t.Error("fast members affected by the slow one")
	}
}

func TestRunOnGroup_DetachedFromCaller(t *testing.T) {
	started := make(chan struct{})
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"a": func(ctx context.Context) (*speaker.Outcome, error) {
			close(started)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return ok(""), nil
			}
		},
	}}
	d := New(fixture(), exec, WithTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	agg, err := d.RunOnGroup(ctx, "all", Stop())
	if err != nil {
		t.Fatalf("RunOnGroup() error = %v", err)
	}
	if !agg.PerMember[0].Success {
		t.Errorf("member a = %+v, caller cancellation leaked into the fan-out", agg.PerMember[0])
	}
}

func TestTestConnection(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]func(context.Context) (*speaker.Outcome, error){
		"a": func(context.Context) (*speaker.Outcome, error) { return ok(`{"response":{"vol":3}}`), nil },
		"b": unreachable("10.0.0.2"),
		"c": func(context.Context) (*speaker.Outcome, error) {
			return &speaker.Outcome{StatusCode: 401, StatusText: "Unauthorized"}, nil
		},
	}}
	d := New(fixture(), exec)

	tests := []struct {
		id          string
		wantSuccess bool
		wantMessage string
	}{
		{"a", true, "connection successful"},
		{"c", false, "HTTP 401 Unauthorized"},
	}
	for _, tt := range tests {
		res, err := d.TestConnection(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("TestConnection(%s) error = %v", tt.id, err)
		}
		if res.Success != tt.wantSuccess || res.Message != tt.wantMessage {
			t.Errorf("TestConnection(%s) = %+v", tt.id, res)
		}
	}

	res, err := d.TestConnection(context.Background(), "b")
	if err != nil || res.Success || res.Message == "" {
		t.Errorf("TestConnection(b) = %+v, %v", res, err)
	}

	if _, err := d.TestConnection(context.Background(), "zzz"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("TestConnection(zzz) error = %v", err)
	}
}
