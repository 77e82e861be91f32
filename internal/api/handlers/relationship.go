package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/SachikoNitta/factnet/internal/service"
	"github.com/SachikoNitta/factnet/internal/store"
)

type RelationshipHandler struct {
	graph *service.KnowledgeGraph
}

func NewRelationshipHandler(graph *service.KnowledgeGraph) *RelationshipHandler {
	return &RelationshipHandler{graph: graph}
}

type createRelationshipRequest struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Create asserts a manual relationship between two stored facts.
func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SourceID == "" || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}
	if !domain.ValidRelationshipType(req.Type) {
		writeError(w, http.StatusBadRequest, "type must be supports, contradicts or neutral")
		return
	}

	rel, err := h.graph.AddManualRelationship(r.Context(), req.SourceID, req.TargetID, domain.RelationshipType(req.Type), req.Confidence)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidConfidence):
			writeError(w, http.StatusBadRequest, "confidence must be between 0 and 1")
		case errors.Is(err, service.ErrUnknownFact):
			writeError(w, http.StatusNotFound, "source or target fact not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store relationship")
		}
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

type listRelationshipsResponse struct {
	Relationships []domain.Relationship `json:"relationships"`
	Count         int                   `json:"count"`
}

// List returns all relationships, or those touching fact_id when given.
func (h *RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	factID := r.URL.Query().Get("fact_id")

	if factID != "" {
		if _, err := h.graph.GetFact(r.Context(), factID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "fact not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to list relationships")
			return
		}
	}

	rels, err := h.graph.GetRelationships(r.Context(), factID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list relationships")
		return
	}

	if rels == nil {
		rels = []domain.Relationship{}
	}
	writeJSON(w, http.StatusOK, listRelationshipsResponse{Relationships: rels, Count: len(rels)})
}
