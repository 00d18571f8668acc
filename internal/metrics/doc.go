// Package metrics exposes the bridge's Prometheus collectors.
//
// A Metrics value owns its own registry so tests and multiple bridges in
// one process do not collide on the global default registerer. Handler
// serves the registry in the Prometheus text format.
//
// Metrics implements ble.Observer and is also called directly by the
// pipeline consumers and supervisors.
package metrics
