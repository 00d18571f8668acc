package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/atc-bridge/internal/metrics"
	"github.com/nerrad567/atc-bridge/internal/supervisor"
)

// DefaultInterval is used when ReporterConfig.Interval is zero.
const DefaultInterval = 30 * time.Second

// Status is the overall bridge health.
type Status string

const (
	// StatusHealthy means every task is running and nothing is backed up.
	StatusHealthy Status = "healthy"

	// StatusDegraded means a task is restarting, the queue is backed up,
	// or the MQTT connection is down while publishing.
	StatusDegraded Status = "degraded"

	// StatusStarting is published once before the first snapshot.
	StatusStarting Status = "starting"

	// StatusStopping is published during shutdown.
	StatusStopping Status = "stopping"
)

// Snapshot is one health report.
type Snapshot struct {
	Bridge        string             `json:"bridge"`
	SessionID     string             `json:"session_id"`
	Version       string             `json:"version"`
	Mode          string             `json:"mode"`
	Status        Status             `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Devices       int                `json:"devices"`
	QueueDepth    int                `json:"queue_depth"`
	MQTTConnected bool               `json:"mqtt_connected"`
	Tasks         []supervisor.Stats `json:"tasks"`
	Counters      metrics.Totals     `json:"counters"`
}

// TaskSource reports the supervised tasks and queue depth.
type TaskSource interface {
	Tasks() []supervisor.Stats
	QueueDepth() int
}

// CounterSource reports pipeline counters.
type CounterSource interface {
	Totals() metrics.Totals
}

// Publisher sends snapshots over MQTT.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsWriter stores snapshots as time series.
type StatsWriter interface {
	WritePipelineStats(stats influxdb.PipelineStats, at time.Time)
	WriteTaskStats(stats influxdb.TaskStats, at time.Time)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ReporterConfig holds configuration for the health reporter.
type ReporterConfig struct {
	BridgeID string
	Version  string

	// Mode is "log" or "publish".
	Mode string

	// Interval is how often to report. Default: 30 seconds.
	Interval time.Duration

	// QueueWarnDepth marks the bridge degraded when more records than
	// this are waiting. Zero disables the check.
	QueueWarnDepth int

	Devices int

	// Tasks is required.
	Tasks TaskSource

	// Counters, Publisher and Stats are optional.
	Counters  CounterSource
	Publisher Publisher
	Topic     string
	Stats     StatsWriter
}

// Reporter manages periodic health reporting.
type Reporter struct {
	cfg       ReporterConfig
	sessionID string
	startTime time.Time

	mu   sync.RWMutex
	last Snapshot

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter with a fresh session id.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Reporter{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// SessionID returns this process's session id.
func (r *Reporter) SessionID() string {
	return r.sessionID
}

// Start publishes a starting status and begins periodic reporting until
// ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.publish(r.build(StatusStarting, "bridge starting"))

	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop ends reporting and publishes a final stopping status.
// Safe to call multiple times.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.publish(r.build(StatusStopping, "bridge stopping"))
	})
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.ReportNow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.ReportNow()
		}
	}
}

// ReportNow collects, stores and publishes a snapshot immediately.
func (r *Reporter) ReportNow() Snapshot {
	status, reason := r.determineStatus()
	snap := r.build(status, reason)
	if status == StatusDegraded {
		r.logWarn("bridge degraded", "reason", reason)
	}
	r.publish(snap)
	r.writeStats(snap)
	return snap
}

// Snapshot returns the latest snapshot, or a fresh one if none has been
// reported yet.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	last := r.last
	r.mu.RUnlock()

	if last.Timestamp.IsZero() {
		status, reason := r.determineStatus()
		return r.build(status, reason)
	}
	return last
}

// determineStatus evaluates the current bridge status.
func (r *Reporter) determineStatus() (Status, string) {
	for _, task := range r.cfg.Tasks.Tasks() {
		if task.Status != supervisor.StatusRunning {
			return StatusDegraded, fmt.Sprintf("task %s is %s", task.Name, task.Status)
		}
	}

	if warn := r.cfg.QueueWarnDepth; warn > 0 {
		if depth := r.cfg.Tasks.QueueDepth(); depth > warn {
			return StatusDegraded, fmt.Sprintf("queue depth %d exceeds %d", depth, warn)
		}
	}

	if r.cfg.Mode == "publish" && (r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected()) {
		return StatusDegraded, "MQTT disconnected"
	}

	return StatusHealthy, ""
}

func (r *Reporter) build(status Status, reason string) Snapshot {
	snap := Snapshot{
		Bridge:        r.cfg.BridgeID,
		SessionID:     r.sessionID,
		Version:       r.cfg.Version,
		Mode:          r.cfg.Mode,
		Status:        status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
		Devices:       r.cfg.Devices,
		QueueDepth:    r.cfg.Tasks.QueueDepth(),
		Tasks:         r.cfg.Tasks.Tasks(),
	}
	if r.cfg.Publisher != nil {
		snap.MQTTConnected = r.cfg.Publisher.IsConnected()
	}
	if r.cfg.Counters != nil {
		snap.Counters = r.cfg.Counters.Totals()
	}

	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()
	return snap
}

// publish sends snap retained to the health topic when connected.
func (r *Reporter) publish(snap Snapshot) {
	if r.cfg.Publisher == nil || r.cfg.Topic == "" || !r.cfg.Publisher.IsConnected() {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		r.logError("encoding health snapshot", err)
		return
	}
	if err := r.cfg.Publisher.Publish(r.cfg.Topic, payload, 1, true); err != nil {
		r.logError("publishing health snapshot", err)
	}
}

func (r *Reporter) writeStats(snap Snapshot) {
	if r.cfg.Stats == nil {
		return
	}

	uptime := time.Since(r.startTime)
	r.cfg.Stats.WritePipelineStats(influxdb.PipelineStats{
		BridgeID:         snap.Bridge,
		SessionID:        snap.SessionID,
		Mode:             snap.Mode,
		QueueDepth:       snap.QueueDepth,
		RecordsEnqueued:  snap.Counters.RecordsEnqueued,
		RecordsDiscarded: snap.Counters.RecordsDiscarded,
		StatesForwarded:  snap.Counters.StatesForwarded,
		UnitMismatches:   snap.Counters.UnitMismatches,
		DecodeFailures:   snap.Counters.DecodeFailures,
		Uptime:           uptime,
	}, snap.Timestamp)

	for _, task := range snap.Tasks {
		r.cfg.Stats.WriteTaskStats(influxdb.TaskStats{
			BridgeID: snap.Bridge,
			Task:     task.Name,
			Status:   string(task.Status),
			Restarts: task.RestartCount,
			Uptime:   task.Uptime,
		}, snap.Timestamp)
	}
}

func (r *Reporter) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
