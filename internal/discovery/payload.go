package discovery

import (
	"encoding/json"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/mqtt"
)

// devicePayload is the "device" block of a discovery config.
type devicePayload struct {
	Name          string   `json:"name,omitempty"`
	Model         string   `json:"model,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Identifiers   []string `json:"identifiers"`
	SWVersion     string   `json:"sw_version,omitempty"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// sensorPayload is a Home Assistant MQTT sensor discovery config.
type sensorPayload struct {
	Name                string        `json:"name"`
	UniqueID            string        `json:"unique_id"`
	ObjectID            string        `json:"object_id"`
	StateTopic          string        `json:"state_topic"`
	UnitOfMeasurement   string        `json:"unit_of_measurement,omitempty"`
	DeviceClass         string        `json:"device_class,omitempty"`
	StateClass          string        `json:"state_class,omitempty"`
	Icon                string        `json:"icon,omitempty"`
	ExpireAfter         int           `json:"expire_after,omitempty"`
	ForceUpdate         bool          `json:"force_update,omitempty"`
	AvailabilityTopic   string        `json:"availability_topic"`
	PayloadAvailable    string        `json:"payload_available"`
	PayloadNotAvailable string        `json:"payload_not_available"`
	Device              devicePayload `json:"device"`
}

// UniqueID returns the entity id for a device's measurement key.
func UniqueID(deviceID, key string) string {
	return deviceID + "_" + key
}

func buildPayload(topics mqtt.Topics, device config.DeviceConfig, key string, sensor config.SensorConfig) ([]byte, error) {
	uid := UniqueID(device.ID, key)

	name := sensor.Name
	if name == "" {
		name = key
	}

	info := device.DeviceInfo
	identifiers := info.Identifiers
	if len(identifiers) == 0 {
		identifiers = []string{device.ID}
	}
	deviceName := info.Name
	if deviceName == "" {
		deviceName = device.ID
	}

	return json.Marshal(sensorPayload{
		Name:                name,
		UniqueID:            uid,
		ObjectID:            uid,
		StateTopic:          topics.SensorState(uid),
		UnitOfMeasurement:   sensor.UnitOfMeasurement,
		DeviceClass:         sensor.DeviceClass,
		StateClass:          sensor.StateClass,
		Icon:                sensor.Icon,
		ExpireAfter:         sensor.ExpireAfter,
		ForceUpdate:         sensor.ForceUpdate,
		AvailabilityTopic:   topics.BridgeStatus(),
		PayloadAvailable:    mqtt.PayloadOnline,
		PayloadNotAvailable: mqtt.PayloadOffline,
		Device: devicePayload{
			Name:          deviceName,
			Model:         info.Model,
			Manufacturer:  info.Manufacturer,
			Identifiers:   identifiers,
			SWVersion:     info.SWVersion,
			SuggestedArea: info.SuggestedArea,
		},
	})
}
