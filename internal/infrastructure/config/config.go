package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Decode failure policies for bridge.decode_failure_policy.
const (
	// DecodePolicyRestart ends the scanning session on a decode failure so
	// the supervisor restarts the whole producer.
	DecodePolicyRestart = "restart"

	// DecodePolicySkip logs the failure and drops only that advertisement.
	DecodePolicySkip = "skip"
)

// Config is the root configuration structure for the ATC bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Database  DatabaseConfig  `yaml:"database"`
	Sightings SightingsConfig `yaml:"sightings"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains bridge identity and pipeline settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance in MQTT topics and health reports.
	ID string `yaml:"id"`

	// Publish selects the run mode: false logs records only, true publishes
	// reconciled state to Home Assistant over MQTT. Exactly one consumer runs.
	Publish bool `yaml:"publish"`

	// RestartDelay is the fixed back-off before a failed task restarts (seconds).
	// Default: 10
	RestartDelay int `yaml:"restart_delay"`

	// DecodeFailurePolicy is "restart" (default) or "skip".
	DecodeFailurePolicy string `yaml:"decode_failure_policy"`

	// HealthInterval is how often pipeline health is reported (seconds).
	// Default: 30
	HealthInterval int `yaml:"health_interval"`

	// QueueWarnDepth logs a warning when the queue backlog reaches this depth.
	// 0 disables the warning. Default: 1000
	QueueWarnDepth int `yaml:"queue_warn_depth"`
}

// ScannerConfig contains BLE scanning settings.
type ScannerConfig struct {
	// BufferSize is the number of advertisements buffered between the
	// adapter callback and the producer. Default: 256
	BufferSize int `yaml:"buffer_size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// DiscoveryPrefix is the Home Assistant discovery prefix.
	// Default: "homeassistant"
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// StatePrefix is the root of state, availability and health topics.
	// Default: "hmd"
	StatePrefix string `yaml:"state_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String returns a string representation with the password masked.
func (a MQTTAuthConfig) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTAuthConfig{Username:%q, Password:%s}", a.Username, password)
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DeviceConfig describes one tracked sensor.
type DeviceConfig struct {
	// ID is a stable identifier used to build Home Assistant unique IDs.
	ID string `yaml:"id"`

	// MACAddress is the sensor hardware address (e.g., "A4:C1:38:7A:A5:7E").
	MACAddress string `yaml:"mac_address"`

	// BindKey is the optional 32-digit hex key for encrypted advertisements.
	// WARNING: Never log this value.
	BindKey string `yaml:"bindkey"`

	// DeviceInfo groups the sensor's entities in Home Assistant.
	DeviceInfo DeviceInfoConfig `yaml:"device_info"`

	// Sensor maps measurement names to their sink settings, in file order.
	Sensor SensorMap `yaml:"sensor"`
}

// DeviceInfoConfig is the Home Assistant device registry entry.
type DeviceInfoConfig struct {
	Name          string   `yaml:"name" json:"name"`
	Model         string   `yaml:"model" json:"model,omitempty"`
	Manufacturer  string   `yaml:"manufacturer" json:"manufacturer,omitempty"`
	Identifiers   []string `yaml:"identifiers" json:"identifiers,omitempty"`
	SWVersion     string   `yaml:"sw_version" json:"sw_version,omitempty"`
	SuggestedArea string   `yaml:"suggested_area" json:"suggested_area,omitempty"`
}

// SensorConfig describes one measurement of one device.
type SensorConfig struct {
	// Name is the entity display name.
	Name string `yaml:"name"`

	// UnitOfMeasurement is the unit the decoder must report for the value
	// to be forwarded (e.g., "°C", "%").
	UnitOfMeasurement string `yaml:"unit_of_measurement"`

	DeviceClass string `yaml:"device_class"`
	StateClass  string `yaml:"state_class"`
	Icon        string `yaml:"icon"`

	// ExpireAfter marks the entity unavailable after this many seconds
	// without an update. 0 disables expiry.
	ExpireAfter int `yaml:"expire_after"`

	ForceUpdate bool `yaml:"force_update"`
}

// SensorEntry is one key of a SensorMap.
type SensorEntry struct {
	Key    string
	Config SensorConfig
}

// SensorMap is a YAML mapping of measurement name to SensorConfig that
// keeps the order the keys were written in.
type SensorMap []SensorEntry

// UnmarshalYAML implements yaml.Unmarshaler, preserving key order.
func (m *SensorMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: sensor must be a mapping", node.Line)
	}

	entries := make(SensorMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var sc SensorConfig
		if err := node.Content[i+1].Decode(&sc); err != nil {
			return fmt.Errorf("sensor %q: %w", key, err)
		}
		entries = append(entries, SensorEntry{Key: key, Config: sc})
	}
	*m = entries
	return nil
}

// Keys returns the measurement names in configuration order.
func (m SensorMap) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the SensorConfig for key.
func (m SensorMap) Get(key string) (SensorConfig, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Config, true
		}
	}
	return SensorConfig{}, false
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SightingsConfig controls the last-seen device table.
type SightingsConfig struct {
	Enabled bool `yaml:"enabled"`

	// FlushInterval is how often buffered sightings are written (seconds).
	// Default: 30
	FlushInterval int `yaml:"flush_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// File logging is enabled when Path is set.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration in layers: built-in defaults, then the
// YAML file at path, then ATCBRIDGE_* environment variables. A .env file
// beside the YAML file is read first but never overrides variables that
// are already set. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads KEY=value pairs into the process environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:                  "atc-bridge-01",
			RestartDelay:        10,
			DecodeFailurePolicy: DecodePolicyRestart,
			HealthInterval:      30,
			QueueWarnDepth:      1000,
		},
		Scanner: ScannerConfig{
			BufferSize: 256,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			DiscoveryPrefix: "homeassistant",
			StatePrefix:     "hmd",
		},
		Database: DatabaseConfig{
			Path:        "./data/atcbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Sightings: SightingsConfig{
			FlushInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9110,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ATCBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("ATCBRIDGE_PUBLISH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bridge.Publish = b
		}
	}

	// MQTT
	if v := os.Getenv("ATCBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ATCBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ATCBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ATCBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Database
	if v := os.Getenv("ATCBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("ATCBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ATCBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDerivedDefaults fills values that depend on other settings.
func (c *Config) applyDerivedDefaults() {
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = c.Bridge.ID
	}
}

// ErrInvalid wraps every problem reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Validate reports every problem found, not only the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.RestartDelay < 0 {
		errs = append(errs, "bridge.restart_delay must not be negative")
	}
	switch c.Bridge.DecodeFailurePolicy {
	case DecodePolicyRestart, DecodePolicySkip:
	default:
		errs = append(errs, fmt.Sprintf("bridge.decode_failure_policy must be %q or %q", DecodePolicyRestart, DecodePolicySkip))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Bridge.Publish && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when bridge.publish is true")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	ids := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		} else if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		ids[d.ID] = true

		if d.MACAddress == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].mac_address is required", i))
		}
		if len(d.Sensor) == 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].sensor must list at least one measurement", i))
		}
	}

	// Optional subsystems
	if c.Sightings.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when sightings are enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
}

// GetRestartDelay is the pause before a failed task is restarted.
func (c *Config) GetRestartDelay() time.Duration { return seconds(c.Bridge.RestartDelay) }

// GetHealthInterval is the period of health reports.
func (c *Config) GetHealthInterval() time.Duration { return seconds(c.Bridge.HealthInterval) }

// GetSightingsFlushInterval is the period between last-seen table writes.
func (c *Config) GetSightingsFlushInterval() time.Duration { return seconds(c.Sightings.FlushInterval) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ReadTimeout bounds reading a request, headers included.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return seconds(t.Read) }

// WriteTimeout bounds writing a response.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }

// IdleTimeout bounds keep-alive connections between requests.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return seconds(t.Idle) }
