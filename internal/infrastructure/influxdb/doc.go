// Package influxdb records command dispatch metrics in InfluxDB 2.x.
//
// It wraps the official influxdb-client-go v2 library. Client satisfies
// dispatch.MetricsRecorder and writes two measurements:
//
//	command_exchange  tags: device_id, command, outcome
//	                  fields: latency_ms, status_code
//	group_dispatch    tags: group_id, command
//	                  fields: total, succeeded, failed
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//
//	d := dispatch.New(registry, speakers, dispatch.WithMetrics(client))
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures arrive asynchronously through SetOnError. Connection and health
// check errors are returned directly. Every write method is a no-op on a
// disconnected or nil Client.
package influxdb
