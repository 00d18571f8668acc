package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

var _ ble.Observer = (*Metrics)(nil)

func TestObserverCounters(t *testing.T) {
	m := New(nil)
	addr := ble.Address{0xa4, 0xc1, 0x38, 0x7a, 0xa5, 0x7e}

	m.RecordEnqueued(ble.Record{Address: addr, Format: "custom"}, -70)
	m.RecordEnqueued(ble.Record{Address: addr, Format: "custom"}, -65)
	m.AdvertSkipped(ble.SkipUnknownDevice)
	m.DecodeFailed(addr, errors.New("bad mic"))

	if got := testutil.ToFloat64(m.recordsEnqueued.WithLabelValues("custom")); got != 2 {
		t.Errorf("records_enqueued{custom} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastRSSI.WithLabelValues("A4:C1:38:7A:A5:7E")); got != -65 {
		t.Errorf("sensor_rssi_dbm = %v, want -65", got)
	}
	if got := testutil.ToFloat64(m.advertsSkipped.WithLabelValues(ble.SkipUnknownDevice)); got != 1 {
		t.Errorf("adverts_skipped{unknown_device} = %v, want 1", got)
	}

	totals := m.Totals()
	if totals.RecordsEnqueued != 2 || totals.AdvertsSkipped != 1 || totals.DecodeFailures != 1 {
		t.Errorf("Totals() = %+v", totals)
	}
}

func TestConsumerCounters(t *testing.T) {
	m := New(nil)

	m.RecordConsumed("publisher")
	m.RecordsDiscarded(3)
	m.RecordsDiscarded(0)
	m.StateForwarded()
	m.UnitMismatch("temperature")
	m.TaskRestarted("producer")

	want := Totals{
		RecordsConsumed:  1,
		RecordsDiscarded: 3,
		StatesForwarded:  1,
		UnitMismatches:   1,
		TaskRestarts:     1,
	}
	if got := m.Totals(); got != want {
		t.Errorf("Totals() = %+v, want %+v", got, want)
	}
	if got := testutil.ToFloat64(m.recordsDiscarded); got != 3 {
		t.Errorf("records_discarded = %v, want 3", got)
	}
}

func TestHandlerServesQueueDepth(t *testing.T) {
	depth := 7
	m := New(func() int { return depth })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "atcbridge_queue_depth 7") {
		t.Errorf("metrics output missing queue depth:\n%s", body)
	}
}
