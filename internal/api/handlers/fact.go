package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/SachikoNitta/factnet/internal/service"
	"github.com/SachikoNitta/factnet/internal/store"
	"github.com/go-chi/chi/v5"
)

type FactHandler struct {
	graph *service.KnowledgeGraph
}

func NewFactHandler(graph *service.KnowledgeGraph) *FactHandler {
	return &FactHandler{graph: graph}
}

type createFactRequest struct {
	Content  string         `json:"content"`
	FactID   string         `json:"fact_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *FactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fact, err := h.graph.AddFact(r.Context(), req.Content, service.AddFactOptions{
		FactID:   req.FactID,
		Metadata: req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrContentEmpty):
			writeError(w, http.StatusBadRequest, "content is required")
		case errors.Is(err, store.ErrDuplicateID):
			writeError(w, http.StatusConflict, "fact id already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store fact")
		}
		return
	}

	writeJSON(w, http.StatusCreated, fact)
}

func (h *FactHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fact, err := h.graph.GetFact(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get fact")
		return
	}

	writeJSON(w, http.StatusOK, fact)
}

type listFactsResponse struct {
	Facts []domain.Fact `json:"facts"`
	Count int           `json:"count"`
}

func (h *FactHandler) List(w http.ResponseWriter, r *http.Request) {
	facts, err := h.graph.ListFacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list facts")
		return
	}

	writeJSON(w, http.StatusOK, listFactsResponse{Facts: facts, Count: len(facts)})
}

func (h *FactHandler) GetSupporting(w http.ResponseWriter, r *http.Request) {
	h.connected(w, r, h.graph.GetSupportingFacts)
}

func (h *FactHandler) GetContradicting(w http.ResponseWriter, r *http.Request) {
	h.connected(w, r, h.graph.GetContradictingFacts)
}

type connectedFactsResponse struct {
	FactID string        `json:"fact_id"`
	Facts  []domain.Fact `json:"facts"`
	Count  int           `json:"count"`
}

func (h *FactHandler) connected(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, factID string, minConfidence float64) ([]domain.Fact, error)) {
	id := chi.URLParam(r, "id")

	minConfidence := 0.0
	if mcStr := r.URL.Query().Get("min_confidence"); mcStr != "" {
		mc, err := strconv.ParseFloat(mcStr, 64)
		if err != nil || mc < 0 || mc > 1 {
			writeError(w, http.StatusBadRequest, "min_confidence must be between 0 and 1")
			return
		}
		minConfidence = mc
	}

	facts, err := query(r.Context(), id, minConfidence)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to query relationships")
		return
	}

	if facts == nil {
		facts = []domain.Fact{}
	}
	writeJSON(w, http.StatusOK, connectedFactsResponse{FactID: id, Facts: facts, Count: len(facts)})
}

type jobResponse struct {
	FactID   string `json:"fact_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// GetJob reports the detection job status for a fact. Jobs are garbage
// collected after a successful flush, so a missing job for a known fact
// means detection already completed.
func (h *FactHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, ok := h.graph.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no tracked job for fact")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		FactID:   job.FactID,
		Status:   string(job.Status),
		Attempts: job.Attempts,
		Error:    job.Err,
	})
}
