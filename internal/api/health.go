package api

import (
	"net/http"

	"github.com/nerrad567/atc-bridge/internal/health"
)

// handleHealth returns the latest health snapshot.
// Degraded bridges answer 503 so load balancers and probes notice.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.health.Snapshot()
	if snap.Version == "" {
		snap.Version = s.version
	}

	status := http.StatusOK
	if snap.Status == health.StatusDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
