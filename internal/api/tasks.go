package api

import (
	"net/http"

	"github.com/nerrad567/atc-bridge/internal/supervisor"
)

// tasksResponse is the body of GET /api/v1/tasks.
type tasksResponse struct {
	Tasks      []supervisor.Stats `json:"tasks"`
	QueueDepth int                `json:"queue_depth"`
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.tasks.Tasks()
	if tasks == nil {
		tasks = []supervisor.Stats{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{
		Tasks:      tasks,
		QueueDepth: s.tasks.QueueDepth(),
	})
}
