package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/nerrad567/annunciator-core/internal/infrastructure/mqtt"
)

// MessageBus is the broker capability the bridge needs. *mqtt.Client
// satisfies it.
type MessageBus interface {
	SubscribeCommands(handler mqtt.CommandHandler) error
	UnsubscribeCommands() error
	PublishResult(ct mqtt.CommandTopic, v any) error
}

// playParams is the optional JSON payload of a play command.
type playParams struct {
	Pattern   *int `json:"pattern"`
	PlayCount *int `json:"playcount"`
	Interval  *int `json:"interval"`
	Duration  *int `json:"duration"`
}

func (p playParams) values() url.Values {
	q := url.Values{}
	set := func(key string, v *int) {
		if v != nil {
			q.Set(key, strconv.Itoa(*v))
		}
	}
	set("pattern", p.Pattern)
	set("playcount", p.PlayCount)
	set("interval", p.Interval)
	set("duration", p.Duration)
	return q
}

// bridgeResult is published on the result topic.
type bridgeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// CommandBridge executes commands received on
// {prefix}/command/{device|group}/{id}/{play|stop|status} and publishes
// the outcome to the matching result topic.
type CommandBridge struct {
	dispatcher *Dispatcher
	bus        MessageBus
	logger     Logger

	wg sync.WaitGroup
}

// NewCommandBridge creates a bridge. Call Start to subscribe.
func NewCommandBridge(d *Dispatcher, bus MessageBus) *CommandBridge {
	return &CommandBridge{
		dispatcher: d,
		bus:        bus,
		logger:     d.logger,
	}
}

// Start subscribes to every command topic.
func (b *CommandBridge) Start() error {
	if err := b.bus.SubscribeCommands(b.handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Stop unsubscribes from the command topics and waits for in-flight
// commands to publish their results.
func (b *CommandBridge) Stop() {
	if err := b.bus.UnsubscribeCommands(); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		b.logger.Warn("unsubscribing MQTT commands failed", "error", err)
	}
	b.Wait()
}

// Wait blocks until in-flight commands have published their results.
func (b *CommandBridge) Wait() {
	b.wg.Wait()
}

// handle decodes the message and runs the command on its own goroutine so
// a slow group broadcast never stalls the broker's delivery loop.
func (b *CommandBridge) handle(ct mqtt.CommandTopic, payload []byte) error {
	var params playParams
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &params); err != nil {
			b.publish(ct, bridgeResult{Error: fmt.Sprintf("%v: payload is not valid JSON", ErrInvalidCommand)})
			return fmt.Errorf("%w: decoding payload for %s %s: %w", ErrInvalidCommand, ct.Target, ct.ID, err)
		}
	}

	cmd, err := Parse(ct.Command, params.values())
	if err != nil {
		b.publish(ct, bridgeResult{Error: err.Error()})
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publish(ct, b.execute(ct, cmd))
	}()
	return nil
}

func (b *CommandBridge) execute(ct mqtt.CommandTopic, cmd Command) bridgeResult {
	ctx := context.Background()

	if ct.Target == mqtt.TargetGroup {
		agg, err := b.dispatcher.RunOnGroup(ctx, ct.ID, cmd)
		if err != nil {
			return bridgeResult{Error: err.Error()}
		}
		return bridgeResult{Success: agg.Failed == 0, Result: agg}
	}

	res, err := b.dispatcher.RunOnDevice(ctx, ct.ID, cmd)
	if err != nil {
		return bridgeResult{Error: err.Error()}
	}
	out := bridgeResult{Success: res.Outcome.Success, Result: res}
	if !res.Outcome.Success {
		out.Error = fmt.Sprintf("HTTP %d %s", res.Outcome.StatusCode, res.Outcome.StatusText)
	}
	return out
}

func (b *CommandBridge) publish(ct mqtt.CommandTopic, res bridgeResult) {
	if err := b.bus.PublishResult(ct, res); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		b.logger.Warn("publishing MQTT command result failed",
			"target", ct.Target,
			"id", ct.ID,
			"command", ct.Command,
			"error", err,
		)
	}
}
