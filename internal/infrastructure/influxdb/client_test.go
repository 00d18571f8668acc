package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers the two endpoints the client uses: /ping and
// /api/v2/write. Written line protocol is kept for assertions.
type fakeInflux struct {
	mu        sync.Mutex
	lines     []string
	query     string
	unhealthy bool
	rejectAll bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		if f.rejectAll {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":"invalid","message":"bucket not found"}`) //nolint:errcheck // test server
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.query = r.URL.RawQuery
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() ([]string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...), f.query
}

func startFake(t *testing.T, f *fakeInflux) config.InfluxDBConfig {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return config.InfluxDBConfig{
		Enabled:   true,
		URL:       srv.URL,
		Token:     "test-token",
		Org:       "home",
		Bucket:    "bridge",
		BatchSize: 50,
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(t *testing.T) config.InfluxDBConfig
		wantErr error
	}{
		{
			name: "disabled",
			cfg: func(*testing.T) config.InfluxDBConfig {
				return config.InfluxDBConfig{URL: "http://127.0.0.1:8086"}
			},
			wantErr: influxdb.ErrDisabled,
		},
		{
			name: "unhealthy server",
			cfg: func(t *testing.T) config.InfluxDBConfig {
				return startFake(t, &fakeInflux{unhealthy: true})
			},
			wantErr: influxdb.ErrConnectionFailed,
		},
		{
			name: "nothing listening",
			cfg: func(*testing.T) config.InfluxDBConfig {
				return config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1"}
			},
			wantErr: influxdb.ErrConnectionFailed,
		},
		{
			name: "healthy",
			cfg: func(t *testing.T) config.InfluxDBConfig {
				return startFake(t, &fakeInflux{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := influxdb.Connect(tt.cfg(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Connect() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer c.Close()
			if !c.IsConnected() {
				t.Error("IsConnected() = false after Connect")
			}
		})
	}
}

func TestWriteAndFlush(t *testing.T) {
	fake := &fakeInflux{}
	c, err := influxdb.Connect(startFake(t, fake))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	at := time.Unix(1760000000, 0)
	c.WritePipelineStats(influxdb.PipelineStats{BridgeID: "shed-bridge", Mode: "publish", QueueDepth: 4}, at)
	c.WriteTaskStats(influxdb.TaskStats{BridgeID: "shed-bridge", Task: "consumer", Status: "running"}, at)
	c.Flush()

	lines, query := fake.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "pipeline_stats,") || !strings.Contains(lines[0], "queue_depth=4i") {
		t.Errorf("pipeline line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "task_stats,") || !strings.HasSuffix(lines[1], " 1760000000") {
		t.Errorf("task line = %q, want second precision timestamp", lines[1])
	}
	for _, want := range []string{"org=home", "bucket=bridge", "precision=s"} {
		if !strings.Contains(query, want) {
			t.Errorf("write query %q missing %q", query, want)
		}
	}
}

func TestOnError(t *testing.T) {
	c, err := influxdb.Connect(startFake(t, &fakeInflux{rejectAll: true}))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	got := make(chan error, 1)
	c.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	c.WriteTaskStats(influxdb.TaskStats{Task: "producer"}, time.Now())
	c.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback got nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestHealthCheck(t *testing.T) {
	fake := &fakeInflux{}
	c, err := influxdb.Connect(startFake(t, fake))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	fake.mu.Lock()
	fake.unhealthy = true
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on unhealthy server = nil, want error")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose(t *testing.T) {
	var zero influxdb.Client
	if err := zero.Close(); err != nil {
		t.Errorf("zero Close() error = %v", err)
	}

	c, err := influxdb.Connect(startFake(t, &fakeInflux{}))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	c.WriteTaskStats(influxdb.TaskStats{}, time.Now())
}
