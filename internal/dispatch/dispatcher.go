package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/events"
	"github.com/nerrad567/annunciator-core/internal/speaker"
)

// Exchange outcome labels reported to the MetricsRecorder.
const (
	OutcomeSuccess          = "success"
	OutcomeHTTPFailure      = "http_failure"
	OutcomeTransportFailure = "transport_failure"
)

// memberNotFound is the error recorded for a group slot whose device no
// longer exists.
const memberNotFound = "not found"

// Resolver looks up dispatch targets. *device.Registry satisfies it.
type Resolver interface {
	ResolveDevice(id string) (device.Device, error)
	ResolveGroup(id string) (device.GroupTarget, error)
}

// Executor performs one device exchange. *speaker.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, dev device.Device, path string) (*speaker.Outcome, error)
}

// MetricsRecorder receives per-exchange and per-group measurements.
type MetricsRecorder interface {
	RecordExchange(deviceID, command, outcome string, latency time.Duration, statusCode int)
	RecordGroup(groupID, command string, total, succeeded, failed int)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Result is the outcome of a command sent to one device.
type Result struct {
	DeviceID   string           `json:"device_id"`
	DeviceName string           `json:"device_name"`
	Command    Command          `json:"command"`
	Outcome    *speaker.Outcome `json:"outcome"`
	Status     any              `json:"status,omitempty"`
}

// GroupRef identifies the group a GroupOutcome belongs to.
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MemberOutcome is the result for one slot of a group's membership list.
// Error is set when the device could not be resolved or reached.
type MemberOutcome struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	Error      string `json:"error,omitempty"`
}

// GroupOutcome aggregates a group dispatch. PerMember follows membership
// order and Succeeded + Failed always equals Total.
type GroupOutcome struct {
	Group     GroupRef        `json:"group"`
	Command   Command         `json:"command"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	PerMember []MemberOutcome `json:"members"`
}

// ConnectionTest reports whether a device answered a status query.
type ConnectionTest struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  any    `json:"status,omitempty"`
}

// Dispatcher resolves targets and drives the speaker client.
type Dispatcher struct {
	resolver Resolver
	client   Executor
	timeout  time.Duration
	sink     events.Sink
	metrics  MetricsRecorder
	logger   Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-member timeout for group fan-out.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithEventSink sets where command events are emitted.
func WithEventSink(s events.Sink) Option {
	return func(dp *Dispatcher) {
		if s != nil {
			dp.sink = s
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(dp *Dispatcher) {
		if l != nil {
			dp.logger = l
		}
	}
}

// New creates a Dispatcher.
func New(resolver Resolver, client Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		client:   client,
		timeout:  speaker.DefaultTimeout,
		sink:     events.Discard,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnDevice sends cmd to one device.
//
// Parameters:
//   - ctx: cancels the exchange when the caller goes away
//   - deviceID: the registry ID of the target
//   - cmd: the command to encode and send
//
// Returns:
//   - *Result: the device's answer, including failed HTTP statuses
//   - error: ErrInvalidCommand, device.ErrDeviceNotFound or a *speaker.TransportError
func (d *Dispatcher) RunOnDevice(ctx context.Context, deviceID string, cmd Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	dev, err := d.resolver.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	d.emitIssued(cmd, "device", dev.ID, dev.Name)
	out, err := d.exchange(ctx, dev, cmd)
	if err != nil {
		return nil, err
	}

	res := &Result{
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Command:    cmd,
		Outcome:    out,
	}
	if cmd.Kind == KindStatus {
		res.Status = speaker.ParseStatus(out.Body)
	}
	return res, nil
}

// RunOnGroup sends cmd to every member of a group concurrently.
//
// Members that no longer resolve are reported as failed with error
// "not found" and never contacted. Each reachable member runs in its own
// goroutine under its own timeout; one slow or failing member never affects
// another. The fan-out is detached from ctx cancellation so a disconnecting
// caller cannot abort a broadcast midway.
func (d *Dispatcher) RunOnGroup(ctx context.Context, groupID string, cmd Command) (*GroupOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	target, err := d.resolver.ResolveGroup(groupID)
	if err != nil {
		return nil, err
	}

	d.emitIssued(cmd, "group", target.ID, target.Name)

	start := time.Now()
	base := context.WithoutCancel(ctx)
	results := make([]MemberOutcome, len(target.Members))

	var wg sync.WaitGroup
	for i, m := range target.Members {
		if m.Device == nil {
			results[i] = MemberOutcome{DeviceID: m.ID, Error: memberNotFound}
			continue
		}
		wg.Add(1)
		go func(i int, dev device.Device) {
			defer wg.Done()
			results[i] = d.runMember(base, dev, cmd)
		}(i, *m.Device)
	}
	wg.Wait()

	agg := &GroupOutcome{
		Group:     GroupRef{ID: target.ID, Name: target.Name},
		Command:   cmd,
		Total:     len(results),
		PerMember: results,
	}
	for _, r := range results {
		if r.Success {
			agg.Succeeded++
		} else {
			agg.Failed++
		}
	}

	if d.metrics != nil {
		d.metrics.RecordGroup(target.ID, string(cmd.Kind), agg.Total, agg.Succeeded, agg.Failed)
	}

	level := events.LevelInfo
	if agg.Failed > 0 {
		level = events.LevelWarn
	}
	d.sink.Emit(events.Event{
		Level:   level,
		Type:    events.TypeGroupCompleted,
		Message: fmt.Sprintf("group %s %s: %d/%d succeeded", target.Name, cmd.Kind, agg.Succeeded, agg.Total),
		Data: map[string]any{
			"group_id":    target.ID,
			"group_name":  target.Name,
			"command":     string(cmd.Kind),
			"total":       agg.Total,
			"succeeded":   agg.Succeeded,
			"failed":      agg.Failed,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	return agg, nil
}

func (d *Dispatcher) runMember(base context.Context, dev device.Device, cmd Command) MemberOutcome {
	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()

	mo := MemberOutcome{DeviceID: dev.ID, DeviceName: dev.Name}
	out, err := d.exchange(ctx, dev, cmd)
	if err != nil {
		mo.Error = err.Error()
		return mo
	}
	mo.Success = out.Success
	mo.StatusCode = out.StatusCode
	mo.StatusText = out.StatusText
	return mo
}

// TestConnection queries device status and reports it for the UI.
// Only device.ErrDeviceNotFound is returned as an error; an unreachable or
// failing device is a ConnectionTest with Success false.
func (d *Dispatcher) TestConnection(ctx context.Context, deviceID string) (*ConnectionTest, error) {
	res, err := d.RunOnDevice(ctx, deviceID, Status())
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, err
		}
		return &ConnectionTest{Success: false, Message: err.Error()}, nil
	}
	if !res.Outcome.Success {
		return &ConnectionTest{
			Success: false,
			Message: fmt.Sprintf("HTTP %d %s", res.Outcome.StatusCode, res.Outcome.StatusText),
			Status:  res.Status,
		}, nil
	}
	return &ConnectionTest{Success: true, Message: "connection successful", Status: res.Status}, nil
}

// exchange runs one device request and reports it to events and metrics.
func (d *Dispatcher) exchange(ctx context.Context, dev device.Device, cmd Command) (*speaker.Outcome, error) {
	start := time.Now()
	out, err := d.client.Execute(ctx, dev, cmd.Path())
	latency := time.Since(start)

	data := map[string]any{
		"device_id":   dev.ID,
		"device_name": dev.Name,
		"address":     dev.Address,
		"command":     string(cmd.Kind),
		"duration_ms": latency.Milliseconds(),
	}

	switch {
	case err != nil:
		d.record(dev.ID, cmd, OutcomeTransportFailure, latency, 0)
		data["error"] = err.Error()
		d.sink.Emit(events.Event{
			Level:   events.LevelError,
			Type:    events.TypeCommandFailed,
			Message: fmt.Sprintf("%s on %s failed: unreachable", cmd.Kind, dev.Name),
			Data:    data,
		})
		d.logger.Warn("device unreachable", "device_id", dev.ID, "command", cmd.Kind, "error", err)
		return nil, err

	case !out.Success:
		d.record(dev.ID, cmd, OutcomeHTTPFailure, latency, out.StatusCode)
		data["status_code"] = out.StatusCode
		data["status_text"] = out.StatusText
		d.sink.Emit(events.Event{
			Level:   events.LevelError,
			Type:    events.TypeCommandFailed,
			Message: fmt.Sprintf("%s on %s failed: HTTP %d", cmd.Kind, dev.Name, out.StatusCode),
			Data:    data,
		})

	default:
		d.record(dev.ID, cmd, OutcomeSuccess, latency, out.StatusCode)
		data["status_code"] = out.StatusCode
		d.sink.Emit(events.Event{
			Level:   events.LevelInfo,
			Type:    events.TypeCommandCompleted,
			Message: fmt.Sprintf("%s on %s completed", cmd.Kind, dev.Name),
			Data:    data,
		})
	}
	return out, nil
}

func (d *Dispatcher) record(deviceID string, cmd Command, outcome string, latency time.Duration, status int) {
	if d.metrics != nil {
		d.metrics.RecordExchange(deviceID, string(cmd.Kind), outcome, latency, status)
	}
}

func (d *Dispatcher) emitIssued(cmd Command, targetType, id, name string) {
	data := map[string]any{
		"target_type": targetType,
		"target_id":   id,
		"target_name": name,
		"command":     string(cmd.Kind),
		"path":        cmd.Path(),
	}
	d.sink.Emit(events.Event{
		Level:   events.LevelInfo,
		Type:    events.TypeCommandIssued,
		Message: fmt.Sprintf("%s requested for %s %s", cmd.Kind, targetType, name),
		Data:    data,
	})
	d.logger.Debug("command issued", "target_type", targetType, "target_id", id, "command", cmd.Kind)
}
