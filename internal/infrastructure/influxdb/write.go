package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge. Sensor readings are not stored;
// only the bridge's own operating statistics are.
const (
	measurementPipeline = "pipeline_stats"
	measurementTask     = "task_stats"
)

// PipelineStats is one sample of the bridge pipeline's counters.
type PipelineStats struct {
	BridgeID  string
	SessionID string

	// Mode is "log" or "publish".
	Mode string

	QueueDepth       int
	RecordsEnqueued  int64
	RecordsDiscarded int64
	StatesForwarded  int64
	UnitMismatches   int64
	DecodeFailures   int64
	Uptime           time.Duration
}

// TaskStats is one sample of a supervised task's state.
type TaskStats struct {
	BridgeID string
	Task     string
	Status   string
	Restarts int
	Uptime   time.Duration
}

// WritePipelineStats records a pipeline sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WritePipelineStats(influxdb.PipelineStats{BridgeID: "shed-bridge", QueueDepth: 3}, time.Now())
func (c *Client) WritePipelineStats(stats PipelineStats, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pipelinePoint(stats, at))
}

// WriteTaskStats records a supervised task sample.
func (c *Client) WriteTaskStats(stats TaskStats, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(taskPoint(stats, at))
}

func pipelinePoint(stats PipelineStats, at time.Time) *write.Point {
	return write.NewPoint(
		measurementPipeline,
		map[string]string{
			"bridge_id":  stats.BridgeID,
			"session_id": stats.SessionID,
			"mode":       stats.Mode,
		},
		map[string]any{
			"queue_depth":       int64(stats.QueueDepth),
			"records_enqueued":  stats.RecordsEnqueued,
			"records_discarded": stats.RecordsDiscarded,
			"states_forwarded":  stats.StatesForwarded,
			"unit_mismatches":   stats.UnitMismatches,
			"decode_failures":   stats.DecodeFailures,
			"uptime_seconds":    stats.Uptime.Seconds(),
		},
		at,
	)
}

func taskPoint(stats TaskStats, at time.Time) *write.Point {
	return write.NewPoint(
		measurementTask,
		map[string]string{
			"bridge_id": stats.BridgeID,
			"task":      stats.Task,
		},
		map[string]any{
			"status":         stats.Status,
			"restarts":       int64(stats.Restarts),
			"uptime_seconds": stats.Uptime.Seconds(),
		},
		at,
	)
}
