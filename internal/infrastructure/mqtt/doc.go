// Package mqtt provides MQTT client connectivity for the ATC bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// In publish mode the bridge talks to Home Assistant only through the
// broker: retained discovery configs announce each entity, sensor values
// go to state topics, and the bridge status topic tells Home Assistant
// whether those entities are available.
//
//	BLE sensors → ATC bridge ↔ MQTT Broker ↔ Home Assistant
//
// # Topics
//
//	<discovery_prefix>/sensor/<unique_id>/config   retained entity config
//	<state_prefix>/sensor/<unique_id>/state        sensor value
//	<state_prefix>/bridge/<bridge_id>/status       "online" / "offline" (LWT)
//	<state_prefix>/bridge/<bridge_id>/health       pipeline health JSON
//	<discovery_prefix>/status                      Home Assistant birth message
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on the same host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Bridge.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().SensorState("shed_temperature")
//	client.Publish(topic, []byte("21.4"), 1, false)
package mqtt
