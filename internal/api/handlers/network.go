package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SachikoNitta/factnet/internal/service"
)

const defaultFlushTimeout = 30 * time.Second

type NetworkHandler struct {
	graph *service.KnowledgeGraph
}

func NewNetworkHandler(graph *service.KnowledgeGraph) *NetworkHandler {
	return &NetworkHandler{graph: graph}
}

type flushResponse struct {
	Status    string `json:"status"`
	Submitted int    `json:"jobs_submitted"`
	Done      int    `json:"jobs_done"`
	Failed    int    `json:"jobs_failed"`
}

// Flush blocks until all pending detection work has settled, bounded by the
// timeout_seconds query parameter.
func (h *NetworkHandler) Flush(w http.ResponseWriter, r *http.Request) {
	timeout := defaultFlushTimeout
	if tsStr := r.URL.Query().Get("timeout_seconds"); tsStr != "" {
		ts, err := time.ParseDuration(tsStr + "s")
		if err != nil || ts <= 0 {
			writeError(w, http.StatusBadRequest, "timeout_seconds must be a positive number")
			return
		}
		timeout = ts
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	err := h.graph.WaitForProcessing(ctx)
	stats := h.graph.SchedulerStats()
	resp := flushResponse{
		Status:    "flushed",
		Submitted: stats.Submitted,
		Done:      stats.Done,
		Failed:    stats.Failed,
	}

	switch {
	case errors.Is(err, service.ErrWaitTimeout):
		resp.Status = "timeout"
		writeJSON(w, http.StatusGatewayTimeout, resp)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "flush failed")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// Stats summarizes the stored network.
func (h *NetworkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.graph.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
