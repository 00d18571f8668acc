// Package discovery publishes bridge sensors to Home Assistant using MQTT
// discovery.
//
// Each (device, measurement key) pair becomes one Home Assistant sensor
// entity:
//
//	unique_id     <device.id>_<key>
//	config topic  <discovery_prefix>/sensor/<unique_id>/config  (retained)
//	state topic   <state_prefix>/sensor/<unique_id>/state
//	availability  <state_prefix>/bridge/<bridge_id>/status
//
// Registering a sensor publishes its discovery config. Home Assistant
// forgets non-retained discovery when it restarts, so the registry also
// listens on <discovery_prefix>/status and republishes every config when
// Home Assistant announces "online".
//
// Sensor.SetState is fire-and-forget: it queues the value for a per-sensor
// publishing goroutine and returns at once. Publish failures are logged.
package discovery
