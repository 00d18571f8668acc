// Package health reports the bridge's pipeline health.
//
// A Reporter collects a Snapshot every interval: a status derived from the
// supervised tasks, the queue depth and the MQTT connection, together with
// per-task statistics and pipeline counters. Each snapshot is published
// retained to <state_prefix>/bridge/<id>/health when MQTT is connected,
// and written to InfluxDB as pipeline_stats and task_stats points when a
// stats writer is configured. The status API serves the latest snapshot.
//
// Every process start gets a new session id so restarts are visible in
// both MQTT and InfluxDB.
package health
