// Package pipeline wires the scanning producer to exactly one consumer
// through the shared delivery queue.
//
// # Architecture
//
//	┌────────────┐  Push   ┌─────────────┐  Pop   ┌──────────────────────┐
//	│  Producer  │────────►│    Queue    │───────►│ Consumer             │
//	│ (ble scan) │         │ (unbounded) │        │  LogConsumer  xor    │
//	└────────────┘         └─────────────┘        │  Publisher (HA MQTT) │
//	      ▲                                       └──────────────────────┘
//	      │ supervisor "producer"                   supervisor "consumer:<name>"
//
// Each side runs under its own supervisor for the life of the process. A
// failure on one side restarts that side only, after the restart delay;
// records already queued survive a producer restart.
//
// The Publisher discards the queue backlog once its sinks are registered,
// so a restarted publisher only forwards fresh measurements.
package pipeline
