package handler

import (
	"net/http"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// QueueHandler reports on the ingress queue.
type QueueHandler struct {
	queue storage.EventQueue
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queue storage.EventQueue) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Stats handles GET /queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.QueueStats(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
