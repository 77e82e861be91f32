package domain

import (
	"time"
)

// Fact is an immutable stored statement. The ID is caller-supplied or
// generated at ingestion and never changes afterwards.
type Fact struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

type RelationshipType string

const (
	RelationSupports    RelationshipType = "supports"
	RelationContradicts RelationshipType = "contradicts"
	RelationNeutral     RelationshipType = "neutral"
)

func ValidRelationshipType(r string) bool {
	switch RelationshipType(r) {
	case RelationSupports, RelationContradicts, RelationNeutral:
		return true
	}
	return false
}

// Relationship is a directed, typed, confidence-weighted edge from the fact
// that triggered detection to a pre-existing fact. At most one edge is stored
// per ordered (SourceID, TargetID) pair; a manual edge shadows detected
// proposals for the same pair.
type Relationship struct {
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
	Manual     bool             `json:"manual"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Touches reports whether the relationship has factID as either endpoint.
func (r Relationship) Touches(factID string) bool {
	return r.SourceID == factID || r.TargetID == factID
}

// Other returns the endpoint opposite to factID.
func (r Relationship) Other(factID string) string {
	if r.SourceID == factID {
		return r.TargetID
	}
	return r.SourceID
}

// Proposal is a single relationship candidate produced by a detector for a
// newly added fact, targeting an existing fact.
type Proposal struct {
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
}

// Direction selects which edges GetRelationships returns relative to a fact.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// NetworkStats summarizes the graph contents.
type NetworkStats struct {
	TotalFacts         int `json:"total_facts"`
	TotalRelationships int `json:"total_relationships"`
	Supporting         int `json:"support_relationships"`
	Contradicting      int `json:"contradiction_relationships"`
	Neutral            int `json:"neutral_relationships"`
}
