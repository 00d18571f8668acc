package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

const namespace = "atcbridge"

// Totals is a snapshot of the pipeline counters.
type Totals struct {
	RecordsEnqueued  int64 `json:"records_enqueued"`
	RecordsConsumed  int64 `json:"records_consumed"`
	RecordsDiscarded int64 `json:"records_discarded"`
	AdvertsSkipped   int64 `json:"adverts_skipped"`
	DecodeFailures   int64 `json:"decode_failures"`
	StatesForwarded  int64 `json:"states_forwarded"`
	UnitMismatches   int64 `json:"unit_mismatches"`
	TaskRestarts     int64 `json:"task_restarts"`
}

// Metrics holds the bridge collectors.
type Metrics struct {
	registry *prometheus.Registry

	recordsEnqueued  *prometheus.CounterVec
	recordsConsumed  *prometheus.CounterVec
	recordsDiscarded prometheus.Counter
	advertsSkipped   *prometheus.CounterVec
	decodeFailures   *prometheus.CounterVec
	statesForwarded  prometheus.Counter
	unitMismatches   *prometheus.CounterVec
	taskRestarts     *prometheus.CounterVec
	lastRSSI         *prometheus.GaugeVec

	enqueued, consumed, discarded, skipped atomic.Int64
	failures, forwarded, mismatches        atomic.Int64
	restarts                               atomic.Int64
}

// New creates and registers the bridge collectors, plus the Go runtime
// and process collectors.
//
// Parameters:
//   - queueDepth: Reports the current delivery queue length; may be nil
func New(queueDepth func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enqueued_total",
			Help:      "Measurement records pushed to the delivery queue, by format.",
		}, []string{"format"}),
		recordsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Measurement records handled by the active consumer.",
		}, []string{"consumer"}),
		recordsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_discarded_total",
			Help:      "Queued records discarded when the publisher started.",
		}),
		advertsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adverts_skipped_total",
			Help:      "Advertisements dropped by the producer, by reason.",
		}, []string{"reason"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Frames from configured sensors that failed to decode.",
		}, []string{"address"}),
		statesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_forwarded_total",
			Help:      "Measurement values forwarded to Home Assistant.",
		}),
		unitMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_mismatches_total",
			Help:      "Measurement values dropped because the unit differed from configuration.",
		}, []string{"key"}),
		taskRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_restarts_total",
			Help:      "Supervised task restarts, by task.",
		}, []string{"task"}),
		lastRSSI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_rssi_dbm",
			Help:      "Signal strength of the last enqueued advertisement per sensor.",
		}, []string{"address"}),
	}

	m.registry.MustRegister(
		m.recordsEnqueued,
		m.recordsConsumed,
		m.recordsDiscarded,
		m.advertsSkipped,
		m.decodeFailures,
		m.statesForwarded,
		m.unitMismatches,
		m.taskRestarts,
		m.lastRSSI,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if queueDepth != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Records waiting in the delivery queue.",
		}, func() float64 { return float64(queueDepth()) }))
	}

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for Prometheus scrapes.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordEnqueued implements ble.Observer.
func (m *Metrics) RecordEnqueued(rec ble.Record, rssi int) {
	m.recordsEnqueued.WithLabelValues(rec.Format).Inc()
	m.lastRSSI.WithLabelValues(rec.Address.String()).Set(float64(rssi))
	m.enqueued.Add(1)
}

// AdvertSkipped implements ble.Observer.
func (m *Metrics) AdvertSkipped(reason string) {
	m.advertsSkipped.WithLabelValues(reason).Inc()
	m.skipped.Add(1)
}

// DecodeFailed implements ble.Observer.
func (m *Metrics) DecodeFailed(addr ble.Address, _ error) {
	m.decodeFailures.WithLabelValues(addr.String()).Inc()
	m.failures.Add(1)
}

// RecordConsumed counts a record handled by the named consumer.
func (m *Metrics) RecordConsumed(consumer string) {
	m.recordsConsumed.WithLabelValues(consumer).Inc()
	m.consumed.Add(1)
}

// RecordsDiscarded counts records dropped by a queue flush.
func (m *Metrics) RecordsDiscarded(n int) {
	if n <= 0 {
		return
	}
	m.recordsDiscarded.Add(float64(n))
	m.discarded.Add(int64(n))
}

// StateForwarded counts a value sent to a state sink.
func (m *Metrics) StateForwarded() {
	m.statesForwarded.Inc()
	m.forwarded.Add(1)
}

// UnitMismatch counts a value dropped for a unit mismatch.
func (m *Metrics) UnitMismatch(key string) {
	m.unitMismatches.WithLabelValues(key).Inc()
	m.mismatches.Add(1)
}

// TaskRestarted counts a supervised restart of task.
func (m *Metrics) TaskRestarted(task string) {
	m.taskRestarts.WithLabelValues(task).Inc()
	m.restarts.Add(1)
}

// Totals returns the counter totals across all labels.
func (m *Metrics) Totals() Totals {
	return Totals{
		RecordsEnqueued:  m.enqueued.Load(),
		RecordsConsumed:  m.consumed.Load(),
		RecordsDiscarded: m.discarded.Load(),
		AdvertsSkipped:   m.skipped.Load(),
		DecodeFailures:   m.failures.Load(),
		StatesForwarded:  m.forwarded.Load(),
		UnitMismatches:   m.mismatches.Load(),
		TaskRestarts:     m.restarts.Load(),
	}
}
