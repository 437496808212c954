package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommandExchange = "command_exchange"
	MeasurementGroupDispatch   = "group_dispatch"
)

// RecordExchange writes one device exchange.
//
// Parameters:
//   - deviceID: registry ID of the speaker
//   - command: play, stop or status
//   - outcome: success, http_failure or transport_failure
//   - latency: wall time of the exchange, digest retry included
//   - statusCode: HTTP status, 0 when no response arrived
func (c *Client) RecordExchange(deviceID, command, outcome string, latency time.Duration, statusCode int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(exchangePoint(deviceID, command, outcome, latency, statusCode, time.Now()))
}

// RecordGroup writes the aggregate of one group dispatch.
func (c *Client) RecordGroup(groupID, command string, total, succeeded, failed int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(groupPoint(groupID, command, total, succeeded, failed, time.Now()))
}

func exchangePoint(deviceID, command, outcome string, latency time.Duration, statusCode int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommandExchange,
		map[string]string{
			"device_id": deviceID,
			"command":   command,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"latency_ms":  float64(latency.Microseconds()) / 1000,
			"status_code": statusCode,
		},
		ts,
	)
}

func groupPoint(groupID, command string, total, succeeded, failed int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementGroupDispatch,
		map[string]string{
			"group_id": groupID,
			"command":  command,
		},
		map[string]interface{}{
			"total":     total,
			"succeeded": succeeded,
			"failed":    failed,
		},
		ts,
	)
}

