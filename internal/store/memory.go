package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/SachikoNitta/factnet/internal/domain"
)

type pairKey struct {
	source string
	target string
}

// MemoryStore is a process-local FactStore. A single mutex guards both maps,
// which also makes the detected-vs-manual check-and-write atomic.
type MemoryStore struct {
	mu            sync.RWMutex
	facts         map[string]domain.Fact
	order         []string
	relationships map[pairKey]domain.Relationship
	closed        bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facts:         make(map[string]domain.Fact),
		relationships: make(map[pairKey]domain.Relationship),
	}
}

func (s *MemoryStore) PutFact(ctx context.Context, f *domain.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.facts[f.ID]; exists {
		return ErrDuplicateID
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	s.facts[f.ID] = *f
	s.order = append(s.order, f.ID)
	return nil
}

func (s *MemoryStore) GetFact(ctx context.Context, id string) (*domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	f, ok := s.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (s *MemoryStore) ListFacts(ctx context.Context) ([]domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	facts := make([]domain.Fact, 0, len(s.order))
	for _, id := range s.order {
		facts = append(facts, s.facts[id])
	}
	return facts, nil
}

func (s *MemoryStore) PutRelationship(ctx context.Context, r *domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.facts[r.SourceID]; !ok {
		return ErrDanglingEndpoint
	}
	if _, ok := s.facts[r.TargetID]; !ok {
		return ErrDanglingEndpoint
	}

	key := pairKey{source: r.SourceID, target: r.TargetID}
	if existing, ok := s.relationships[key]; ok {
		if existing.Manual && !r.Manual {
			return ErrManualEdge
		}
		// Upsert keeps the original edge creation time.
		r.CreatedAt = existing.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	s.relationships[key] = *r
	return nil
}

func (s *MemoryStore) GetRelationships(ctx context.Context, factID string, filter domain.RelationshipFilter) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	direction := filter.Direction
	if direction == "" {
		direction = domain.DirectionBoth
	}

	var rels []domain.Relationship
	for _, r := range s.relationships {
		if factID != "" {
			switch direction {
			case domain.DirectionOutgoing:
				if r.SourceID != factID {
					continue
				}
			case domain.DirectionIncoming:
				if r.TargetID != factID {
					continue
				}
			default:
				if !r.Touches(factID) {
					continue
				}
			}
		}
		if filter.Type != nil && r.Type != *filter.Type {
			continue
		}
		rels = append(rels, r)
	}

	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		return rels[i].TargetID < rels[j].TargetID
	})
	return rels, nil
}

func (s *MemoryStore) FindSimilarFacts(ctx context.Context, embedding []float32, limit int) ([]domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	type scored struct {
		fact  domain.Fact
		score float64
	}
	var candidates []scored
	for _, id := range s.order {
		f := s.facts[id]
		if len(f.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{fact: f, score: cosineSimilarity(embedding, f.Embedding)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	facts := make([]domain.Fact, 0, len(candidates))
	for _, c := range candidates {
		facts = append(facts, c.fact)
	}
	return facts, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
