package domain

import (
	"context"
)

// RelationshipFilter narrows GetRelationships results.
type RelationshipFilter struct {
	Direction Direction
	Type      *RelationshipType
}

// FactStore is the durable storage port. Implementations: the Postgres store
// and the process-local in-memory store. All methods fail with
// store.ErrClosed after Close.
type FactStore interface {
	// PutFact stores a new fact. A second put with an existing id fails with
	// ErrDuplicateID; facts are never silently overwritten.
	PutFact(ctx context.Context, f *Fact) error
	GetFact(ctx context.Context, id string) (*Fact, error)
	// ListFacts returns a snapshot of all facts in insertion order.
	ListFacts(ctx context.Context) ([]Fact, error)

	// PutRelationship upserts the edge for (SourceID, TargetID). A detected
	// write against a manually asserted pair fails with ErrManualEdge; the
	// check-and-write is atomic with respect to concurrent writers on the
	// same pair. Missing endpoints fail with ErrDanglingEndpoint.
	PutRelationship(ctx context.Context, r *Relationship) error
	GetRelationships(ctx context.Context, factID string, filter RelationshipFilter) ([]Relationship, error)

	// FindSimilarFacts returns up to limit facts ordered by embedding
	// similarity. Facts without embeddings are skipped.
	FindSimilarFacts(ctx context.Context, embedding []float32, limit int) ([]Fact, error)

	Close() error
}

// Detector proposes relationships between a newly added fact and existing
// facts. Implementations must be safe for concurrent use and must return
// either a complete proposal list or an error, never partial results.
type Detector interface {
	Detect(ctx context.Context, newFact Fact, existing []Fact) ([]Proposal, error)
}

// DetectFunc adapts a plain function to the Detector port.
type DetectFunc func(ctx context.Context, newFact Fact, existing []Fact) ([]Proposal, error)

func (f DetectFunc) Detect(ctx context.Context, newFact Fact, existing []Fact) ([]Proposal, error) {
	return f(ctx, newFact, existing)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
