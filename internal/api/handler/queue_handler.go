package handler

import (
	"net/http"
	"sort"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
)

// QueueHandler serves a human-readable JSON snapshot of live queue depths.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp and are separate from this endpoint.
type QueueHandler struct {
	client *jobqueue.Client
}

func NewQueueHandler(client *jobqueue.Client) *QueueHandler {
	return &QueueHandler{client: client}
}

// GetQueues handles GET /api/v1/queues
func (h *QueueHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	names := h.client.QueueNames()
	sort.Strings(names)

	depths := make(map[string]int64, len(names))
	var total int64
	for _, name := range names {
		depth, err := h.client.Depth(r.Context(), name)
		if err != nil {
			mapError(w, err)
			return
		}
		depths[name] = depth
		total += depth
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": depths,
		"total":       total,
	})
}
