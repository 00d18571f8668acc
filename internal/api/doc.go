// Package api implements the bridge's read-only HTTP status API.
//
// This package provides:
//   - GET /api/v1/health: latest health snapshot (503 while degraded)
//   - GET /api/v1/tasks: supervised task statistics and queue depth
//   - GET /api/v1/devices: configured sensors with sightings and entity state
//   - GET /metrics: Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery)
//
// The API never changes bridge state. Bindkeys are never included in any
// response.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
