package influxdb

import (
	"testing"
	"time"
)

func TestExchangePoint(t *testing.T) {
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := exchangePoint("dev-1", "play", "success", 1500*time.Microsecond, 200, ts)

	if p.Name() != MeasurementCommandExchange {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v", p.Time())
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "dev-1" || tags["command"] != "play" || tags["outcome"] != "success" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["latency_ms"] != 1.5 {
		t.Errorf("latency_ms = %v, want 1.5", fields["latency_ms"])
	}
	if fields["status_code"] != int64(200) {
		t.Errorf("status_code = %#v, want int64(200)", fields["status_code"])
	}
}

func TestGroupPoint(t *testing.T) {
	p := groupPoint("grp-1", "stop", 3, 2, 1, time.Now())

	if p.Name() != MeasurementGroupDispatch {
		t.Errorf("Name() = %q", p.Name())
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["total"] != int64(3) || fields["succeeded"] != int64(2) || fields["failed"] != int64(1) {
		t.Errorf("fields = %v", fields)
	}
}

func TestRecord_NilClientIsNoop(t *testing.T) {
	var c *Client
	c.RecordExchange("d", "stop", "success", time.Millisecond, 200)
	c.RecordGroup("g", "stop", 1, 1, 0)
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}
