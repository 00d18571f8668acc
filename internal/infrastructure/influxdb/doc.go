// Package influxdb provides InfluxDB connectivity for the ATC bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// The bridge does not keep a history of sensor readings. InfluxDB only
// receives the bridge's own operating statistics, written by the health
// reporter:
//   - pipeline_stats: queue depth and record counters per session
//   - task_stats: status, restarts and uptime per supervised task
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTaskStats(influxdb.TaskStats{BridgeID: "shed-bridge", Task: "producer"}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
