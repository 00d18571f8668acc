package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/atc-bridge/internal/discovery"
	"github.com/nerrad567/atc-bridge/internal/health"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/atc-bridge/internal/sightings"
	"github.com/nerrad567/atc-bridge/internal/supervisor"
)

type fakeHealth struct {
	snap health.Snapshot
}

func (f *fakeHealth) Snapshot() health.Snapshot { return f.snap }

type fakeTasks struct {
	tasks []supervisor.Stats
	depth int
}

func (f *fakeTasks) Tasks() []supervisor.Stats { return f.tasks }
func (f *fakeTasks) QueueDepth() int           { return f.depth }

type fakeSightings struct {
	list []sightings.Sighting
	err  error
}

func (f *fakeSightings) List(context.Context) ([]sightings.Sighting, error) {
	return f.list, f.err
}

type fakeSensors struct {
	sensors []*discovery.Sensor
}

func (f *fakeSensors) Sensors() []*discovery.Sensor { return f.sensors }

type nopTransport struct{}

func (nopTransport) Publish(string, []byte, byte, bool) error          { return nil }
func (nopTransport) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDevices() []config.DeviceConfig {
	return []config.DeviceConfig{
		{
			ID:         "living_room",
			MACAddress: "A4:C1:38:7A:A5:7E",
			BindKey:    "00112233445566778899aabbccddeeff",
			DeviceInfo: config.DeviceInfoConfig{Name: "Living Room"},
			Sensor: config.SensorMap{
				{Key: "temperature", Config: config.SensorConfig{Name: "Temperature", UnitOfMeasurement: "°C"}},
				{Key: "humidity", Config: config.SensorConfig{Name: "Humidity", UnitOfMeasurement: "%"}},
			},
		},
		{
			ID:         "bedroom",
			MACAddress: "A4:C1:38:00:11:22",
			DeviceInfo: config.DeviceInfoConfig{Name: "Bedroom"},
			Sensor: config.SensorMap{
				{Key: "temperature", Config: config.SensorConfig{Name: "Temperature", UnitOfMeasurement: "°C"}},
			},
		},
	}
}

// testServer creates a Server with fake sources and returns its router.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, http.Handler) {
	t.Helper()

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  testLogger(),
		Version: "test",
		Devices: testDevices(),
		Health: &fakeHealth{snap: health.Snapshot{
			Bridge: "hmd",
			Status: health.StatusHealthy,
		}},
		Tasks: &fakeTasks{
			tasks: []supervisor.Stats{{Name: "producer", Status: supervisor.StatusRunning, Starts: 1}},
			depth: 3,
		},
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, srv.buildRouter()
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no health", func(d *Deps) { d.Health = nil }},
		{"no tasks", func(d *Deps) { d.Tasks = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Logger: testLogger(),
				Health: &fakeHealth{},
				Tasks:  &fakeTasks{},
			}
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     health.Status
		wantStatus int
	}{
		{"healthy", health.StatusHealthy, http.StatusOK},
		{"starting", health.StatusStarting, http.StatusOK},
		{"degraded", health.StatusDegraded, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := testServer(t, func(d *Deps) {
				d.Health = &fakeHealth{snap: health.Snapshot{Bridge: "hmd", Status: tt.status}}
			})

			rec := doGet(t, h, "/api/v1/health")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			snap := decode[health.Snapshot](t, rec)
			if snap.Status != tt.status {
				t.Errorf("Status = %q, want %q", snap.Status, tt.status)
			}
			if snap.Version != "test" {
				t.Errorf("Version = %q, want server version fallback", snap.Version)
			}
		})
	}
}

func TestHandleTasks(t *testing.T) {
	_, h := testServer(t, nil)

	rec := doGet(t, h, "/api/v1/tasks")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got := decode[tasksResponse](t, rec)
	if got.QueueDepth != 3 {
		t.Errorf("QueueDepth = %d, want 3", got.QueueDepth)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Name != "producer" {
		t.Errorf("Tasks = %+v, want one producer task", got.Tasks)
	}
}

func TestHandleTasks_EmptyIsArray(t *testing.T) {
	_, h := testServer(t, func(d *Deps) { d.Tasks = &fakeTasks{} })

	rec := doGet(t, h, "/api/v1/tasks")
	if !strings.Contains(rec.Body.String(), `"tasks":[]`) {
		t.Errorf("body = %s, want empty tasks array", rec.Body.String())
	}
}

func TestHandleListDevices(t *testing.T) {
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	reg := discovery.NewRegistry(discovery.Config{
		Transport: nopTransport{},
		Topics:    mqtt.Topics{DiscoveryPrefix: "homeassistant", StatePrefix: "hmd", BridgeID: "hmd"},
	})
	devices := testDevices()
	sensor, err := reg.Register(devices[0], "temperature", devices[0].Sensor[0].Config)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	sensor.SetState(21.5)

	_, h := testServer(t, func(d *Deps) {
		d.Sightings = &fakeSightings{list: []sightings.Sighting{{
			Address:     "A4:C1:38:7A:A5:7E",
			DeviceID:    "living_room",
			FirstSeen:   seen,
			LastSeen:    seen,
			AdvertCount: 4,
			LastFormat:  "atc1441",
			LastRSSI:    -70,
		}}}
		d.Sensors = &fakeSensors{sensors: reg.Sensors()}
	})

	rec := doGet(t, h, "/api/v1/devices")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "00112233445566778899aabbccddeeff") {
		t.Fatal("response leaks the bindkey")
	}

	got := decode[listDevicesResponse](t, rec)
	if got.Count != 2 {
		t.Fatalf("Count = %d, want 2", got.Count)
	}

	living := got.Devices[0]
	if !living.Encrypted {
		t.Error("living_room Encrypted = false, want true")
	}
	if diff := cmp.Diff([]string{"temperature", "humidity"}, living.Keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if living.Sighting == nil || living.Sighting.AdvertCount != 4 {
		t.Errorf("Sighting = %+v, want advert_count 4", living.Sighting)
	}
	if len(living.Sensors) != 1 || living.Sensors[0].UniqueID != "living_room_temperature" {
		t.Errorf("Sensors = %+v, want living_room_temperature", living.Sensors)
	}

	bedroom := got.Devices[1]
	if bedroom.Encrypted || bedroom.Sighting != nil || len(bedroom.Sensors) != 0 {
		t.Errorf("bedroom = %+v, want no bindkey, sighting or sensors", bedroom)
	}
}

func TestHandleListDevices_SightingsError(t *testing.T) {
	_, h := testServer(t, func(d *Deps) {
		d.Sightings = &fakeSightings{err: errors.New("database is locked")}
	})

	rec := doGet(t, h, "/api/v1/devices")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e := decode[Error](t, rec); e.Code != ErrCodeInternal {
		t.Errorf("Code = %q, want %q", e.Code, ErrCodeInternal)
	}
}

func TestHandleGetDevice(t *testing.T) {
	_, h := testServer(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantID     string
	}{
		{"by id", "/api/v1/devices/bedroom", http.StatusOK, "bedroom"},
		{"by mac", "/api/v1/devices/a4:c1:38:7a:a5:7e", http.StatusOK, "living_room"},
		{"unknown", "/api/v1/devices/kitchen", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, h, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantID == "" {
				return
			}
			if got := decode[deviceResponse](t, rec); got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("atcbridge_up 1\n")) //nolint:errcheck // test handler
	})

	t.Run("mounted", func(t *testing.T) {
		_, h := testServer(t, func(d *Deps) { d.Metrics = metrics })
		rec := doGet(t, h, "/metrics")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "atcbridge_up") {
			t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("absent", func(t *testing.T) {
		_, h := testServer(t, nil)
		if rec := doGet(t, h, "/metrics"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestWithRequestID(t *testing.T) {
	_, h := testServer(t, nil)

	rec := doGet(t, h, "/api/v1/tasks")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestRecoverPanics(t *testing.T) {
	srv, _ := testServer(t, nil)

	h := withRequestID(srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	want := Error{Code: ErrCodeInternal, Message: "internal server error", RequestID: "req-7"}
	if diff := cmp.Diff(want, decode[Error](t, rec)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	_, h := testServer(t, nil)

	if rec := doGet(t, h, "/api/v1/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Close() //nolint:errcheck // closed explicitly below

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
