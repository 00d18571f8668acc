package discovery

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/mqtt"
)

// Transport is the subset of the MQTT client the registry needs.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Registry.
type Config struct {
	Transport Transport
	Topics    mqtt.Topics
	QoS       byte
	Logger    Logger
}

// Registry owns the Home Assistant sensor entities of one bridge.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	logger    Logger

	mu      sync.RWMutex
	sensors map[string]*Sensor
	order   []string
}

// NewRegistry creates a registry. Nothing is published until Register.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		transport: cfg.Transport,
		topics:    cfg.Topics,
		qos:       cfg.QoS,
		logger:    logger,
		sensors:   make(map[string]*Sensor),
	}
}

// Start subscribes to Home Assistant's status topic so discovery configs
// are republished whenever Home Assistant comes back online.
func (r *Registry) Start() error {
	topic := r.topics.HomeAssistantStatus()
	if err := r.transport.Subscribe(topic, r.qos, r.handleHomeAssistantStatus); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	r.logger.Info("watching home assistant status", "topic", topic)
	return nil
}

func (r *Registry) handleHomeAssistantStatus(_ string, payload []byte) error {
	if string(payload) != mqtt.PayloadOnline {
		return nil
	}
	r.logger.Info("home assistant online, republishing discovery", "sensors", r.Len())
	return r.RepublishAll()
}

// Register publishes the discovery config for one measurement of one
// device and returns the sensor to push states to.
//
// Registering an existing unique id replaces its config and returns the
// same Sensor, so a restarted consumer can register again.
//
// Parameters:
//   - device: The configured device (id and device_info are used)
//   - key: Measurement key (e.g., "temperature")
//   - sensor: Entity settings from the device's sensor map
//
// Returns:
//   - *Sensor: Handle for state updates
//   - error: ErrInvalidSensor or ErrPublishConfig
func (r *Registry) Register(device config.DeviceConfig, key string, sensor config.SensorConfig) (*Sensor, error) {
	if device.ID == "" || key == "" {
		return nil, fmt.Errorf("%w: device %q key %q", ErrInvalidSensor, device.ID, key)
	}

	uid := UniqueID(device.ID, key)
	payload, err := buildPayload(r.topics, device, key, sensor)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPublishConfig, uid, err)
	}

	r.mu.Lock()
	s, ok := r.sensors[uid]
	if !ok {
		s = &Sensor{
			registry:    r,
			uniqueID:    uid,
			deviceID:    device.ID,
			key:         key,
			configTopic: r.topics.SensorConfig(uid),
			stateTopic:  r.topics.SensorState(uid),
		}
		r.sensors[uid] = s
		r.order = append(r.order, uid)
	}
	s.mu.Lock()
	s.unit = sensor.UnitOfMeasurement
	s.config = payload
	s.mu.Unlock()
	r.mu.Unlock()

	if err := s.publishConfig(); err != nil {
		return nil, err
	}
	r.logger.Info("registered sensor", "unique_id", uid, "config_topic", s.configTopic)
	return s, nil
}

// RepublishAll resends every registered discovery config.
// It attempts every sensor and returns the first error.
func (r *Registry) RepublishAll() error {
	var firstErr error
	for _, s := range r.Sensors() {
		if err := s.publishConfig(); err != nil {
			r.logger.Error("republishing discovery config", "unique_id", s.uniqueID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Sensors returns registered sensors in registration order.
func (r *Registry) Sensors() []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Sensor, 0, len(r.order))
	for _, uid := range r.order {
		out = append(out, r.sensors[uid])
	}
	return out
}

// Lookup returns the sensor with the given unique id.
func (r *Registry) Lookup(uniqueID string) (*Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[uniqueID]
	return s, ok
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// maxPendingStates caps the states a sensor holds while its publisher is
// busy. Further states are dropped and counted as failed.
const maxPendingStates = 32

// Sensor is one Home Assistant sensor entity.
type Sensor struct {
	registry    *Registry
	uniqueID    string
	deviceID    string
	key         string
	configTopic string
	stateTopic  string

	mu        sync.RWMutex
	unit      string
	config    []byte
	state     float64
	updatedAt time.Time
	published int64
	failed    int64
	pending   []float64
	draining  bool
}

// SetState queues a new state value and returns without waiting for the
// broker. States are published in order by one goroutine per sensor that
// exits once the queue is empty. Failures are logged, never returned.
func (s *Sensor) SetState(value float64) {
	s.mu.Lock()
	if len(s.pending) >= maxPendingStates {
		s.failed++
		s.mu.Unlock()
		s.registry.logger.Warn("sensor state backlog full, dropping",
			"unique_id", s.uniqueID,
			"value", value,
		)
		return
	}
	s.pending = append(s.pending, value)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
	s.mu.Unlock()
}

func (s *Sensor) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		value := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.publishState(value)
	}
}

func (s *Sensor) publishState(value float64) {
	payload := strconv.FormatFloat(value, 'f', -1, 64)

	err := s.registry.transport.Publish(s.stateTopic, []byte(payload), s.registry.qos, false)

	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.state = value
		s.updatedAt = time.Now()
		s.published++
	}
	s.mu.Unlock()

	if err != nil {
		s.registry.logger.Warn("publishing sensor state",
			"unique_id", s.uniqueID,
			"topic", s.stateTopic,
			"error", err,
		)
	}
}

func (s *Sensor) publishConfig() error {
	s.mu.RLock()
	payload := s.config
	s.mu.RUnlock()

	if err := s.registry.transport.Publish(s.configTopic, payload, s.registry.qos, true); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishConfig, s.uniqueID, err)
	}
	return nil
}

// UniqueID returns the entity's unique id (<device.id>_<key>).
func (s *Sensor) UniqueID() string { return s.uniqueID }

// DeviceID returns the configured device id.
func (s *Sensor) DeviceID() string { return s.deviceID }

// Key returns the measurement key.
func (s *Sensor) Key() string { return s.key }

// StateTopic returns the topic states are published to.
func (s *Sensor) StateTopic() string { return s.stateTopic }

// ConfigTopic returns the retained discovery config topic.
func (s *Sensor) ConfigTopic() string { return s.configTopic }

// Unit returns the configured unit of measurement.
func (s *Sensor) Unit() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unit
}

// SensorStatus is a point-in-time view of a sensor for the status API.
type SensorStatus struct {
	UniqueID   string    `json:"unique_id"`
	Key        string    `json:"key"`
	Unit       string    `json:"unit,omitempty"`
	StateTopic string    `json:"state_topic"`
	LastValue  *float64  `json:"last_value,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
	Published  int64     `json:"published"`
	Failed     int64     `json:"failed"`
}

// Status returns the sensor's current status.
func (s *Sensor) Status() SensorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SensorStatus{
		UniqueID:   s.uniqueID,
		Key:        s.key,
		Unit:       s.unit,
		StateTopic: s.stateTopic,
		UpdatedAt:  s.updatedAt,
		Published:  s.published,
		Failed:     s.failed,
	}
	if s.published > 0 {
		v := s.state
		st.LastValue = &v
	}
	return st
}
