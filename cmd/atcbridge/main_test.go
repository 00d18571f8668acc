package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/atc-bridge/internal/pipeline"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

// TestRun_MalformedAddress verifies a bad MAC stops startup before scanning.
func TestRun_MalformedAddress(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: test-bridge
devices:
  - id: living_room
    mac_address: "A4:C1:38:ZZ:A5:7E"
    sensor:
      temperature:
        name: Temperature
        unit_of_measurement: "°C"
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: path})
	if !errors.Is(err, ble.ErrMalformedAddress) {
		t.Errorf("run() error = %v, want ErrMalformedAddress", err)
	}
}

// TestRun_DatabaseOpenFailure verifies an unusable sightings database is fatal.
func TestRun_DatabaseOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path := writeConfig(t, `
bridge:
  id: test-bridge
devices:
  - id: living_room
    mac_address: "A4:C1:38:7A:A5:7E"
    sensor:
      temperature:
        unit_of_measurement: "°C"
sightings:
  enabled: true
database:
  path: "`+filepath.Join(blocker, "sub", "test.db")+`"
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}); err == nil {
		t.Fatal("run() should fail when the database cannot be opened")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ATCBRIDGE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("ATCBRIDGE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("ATCBRIDGE_CONFIG", "/etc/atcbridge.yaml")

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			want: options{configPath: "/etc/atcbridge.yaml"},
		},
		{
			name: "all flags",
			args: []string{"-config", "local.yaml", "-id", "garage", "-publish", "-version"},
			want: options{configPath: "local.yaml", bridgeID: "garage", publish: boolPtr(true), showVersion: true},
		},
		{
			name: "publish disabled explicitly",
			args: []string{"-publish=false"},
			want: options{configPath: "/etc/atcbridge.yaml", publish: boolPtr(false)},
		},
		{
			name:    "unknown flag",
			args:    []string{"-adapter", "hci1"},
			wantErr: true,
		},
		{
			name:    "id needs a value",
			args:    []string{"-id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(options{})); diff != "" {
				t.Errorf("parseFlags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestApplyFlags(t *testing.T) {
	base := func() *config.Config {
		cfg := &config.Config{}
		cfg.Bridge.ID = "test-bridge"
		cfg.Bridge.DecodeFailurePolicy = config.DecodePolicyRestart
		cfg.MQTT.Broker.ClientID = "test-bridge"
		cfg.Devices = []config.DeviceConfig{{
			ID:         "living_room",
			MACAddress: "A4:C1:38:7A:A5:7E",
			Sensor:     config.SensorMap{{Key: "temperature"}},
		}}
		return cfg
	}

	tests := []struct {
		name         string
		opts         options
		brokerHost   string
		publish      bool
		wantID       string
		wantClientID string
		wantPublish  bool
		wantErr      bool
	}{
		{
			name:         "no overrides",
			publish:      true,
			brokerHost:   "localhost",
			wantID:       "test-bridge",
			wantClientID: "test-bridge",
			wantPublish:  true,
		},
		{
			name:         "id follows into derived client id",
			opts:         options{bridgeID: "garage"},
			wantID:       "garage",
			wantClientID: "garage",
		},
		{
			name:         "publish switched off",
			opts:         options{publish: boolPtr(false)},
			publish:      true,
			brokerHost:   "localhost",
			wantID:       "test-bridge",
			wantClientID: "test-bridge",
		},
		{
			name:    "publish without broker",
			opts:    options{publish: boolPtr(true)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			cfg.Bridge.Publish = tt.publish
			cfg.MQTT.Broker.Host = tt.brokerHost

			err := applyFlags(cfg, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, config.ErrInvalid) {
					t.Errorf("applyFlags() error = %v, want ErrInvalid", err)
				}
				return
			}
			if cfg.Bridge.ID != tt.wantID {
				t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, tt.wantID)
			}
			if cfg.MQTT.Broker.ClientID != tt.wantClientID {
				t.Errorf("Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, tt.wantClientID)
			}
			if cfg.Bridge.Publish != tt.wantPublish {
				t.Errorf("Bridge.Publish = %v, want %v", cfg.Bridge.Publish, tt.wantPublish)
			}
		})
	}
}

func TestDeviceSpecs(t *testing.T) {
	devices := []config.DeviceConfig{{
		ID:         "living_room",
		MACAddress: "A4:C1:38:7A:A5:7E",
		BindKey:    "00112233445566778899aabbccddeeff",
		Sensor: config.SensorMap{
			{Key: "temperature"},
			{Key: "humidity"},
		},
	}}

	want := []ble.DeviceSpec{{
		ID:      "living_room",
		Address: "A4:C1:38:7A:A5:7E",
		BindKey: "00112233445566778899aabbccddeeff",
		Keys:    []string{"temperature", "humidity"},
	}}
	if diff := cmp.Diff(want, deviceSpecs(devices)); diff != "" {
		t.Errorf("deviceSpecs() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewConsumer_LogMode(t *testing.T) {
	cfg := &config.Config{}

	consumer, err := newConsumer(cfg, nil, nil, logging.Default())
	if err != nil {
		t.Fatalf("newConsumer() error: %v", err)
	}
	if _, ok := consumer.(*pipeline.LogConsumer); !ok {
		t.Errorf("newConsumer() = %T, want *pipeline.LogConsumer", consumer)
	}
}

// TestHealthCheck_AllOptional verifies absent subsystems are skipped.
func TestHealthCheck_AllOptional(t *testing.T) {
	if err := healthCheck(context.Background(), nil, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v, want nil", err)
	}
}
