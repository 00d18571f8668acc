package mqtt

import (
	"fmt"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
)

// Home Assistant discovery component handled by the bridge.
const componentSensor = "sensor"

// Availability payloads. These are Home Assistant's defaults, so entities
// can point availability_topic at BridgeStatus without extra settings.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the MQTT topics used by one bridge instance.
//
//	topics := mqtt.NewTopics(cfg.MQTT, "shed-bridge")
//	topics.SensorState("shed_temperature")
//	// Returns: "hmd/sensor/shed_temperature/state"
type Topics struct {
	// DiscoveryPrefix is the Home Assistant discovery root (e.g., "homeassistant").
	DiscoveryPrefix string

	// StatePrefix is the root for state, availability and health topics (e.g., "hmd").
	StatePrefix string

	// BridgeID identifies this bridge instance.
	BridgeID string
}

// NewTopics returns the topic builder for a bridge.
func NewTopics(cfg config.MQTTConfig, bridgeID string) Topics {
	return Topics{
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		StatePrefix:     cfg.StatePrefix,
		BridgeID:        bridgeID,
	}
}

// BridgeStatus returns the bridge availability topic. It carries
// PayloadOnline while connected and PayloadOffline after a graceful
// shutdown or via the broker's Last Will.
//
// Example: hmd/bridge/shed-bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/%s/status", t.StatePrefix, t.BridgeID)
}

// BridgeHealth returns the topic for periodic pipeline health reports.
//
// Example: hmd/bridge/shed-bridge/health
func (t Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/bridge/%s/health", t.StatePrefix, t.BridgeID)
}

// SensorConfig returns the retained discovery config topic for an entity.
//
// Example: homeassistant/sensor/shed_temperature/config
func (t Topics) SensorConfig(uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", t.DiscoveryPrefix, componentSensor, uniqueID)
}

// SensorState returns the state topic for an entity.
//
// Example: hmd/sensor/shed_temperature/state
func (t Topics) SensorState(uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.StatePrefix, componentSensor, uniqueID)
}

// HomeAssistantStatus returns the topic Home Assistant announces its own
// availability on. An "online" message means discovery must be resent.
//
// Example: homeassistant/status
func (t Topics) HomeAssistantStatus() string {
	return fmt.Sprintf("%s/status", t.DiscoveryPrefix)
}

// AllSensorStates returns a pattern matching every entity state this
// bridge's prefix carries.
//
// Pattern: hmd/sensor/+/state
func (t Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/%s/+/state", t.StatePrefix, componentSensor)
}
