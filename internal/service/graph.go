package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrContentEmpty = errors.New("content is required")
	ErrGraphClosed  = errors.New("knowledge graph is closed")
)

const similarFactLimit = 50

// AddFactOptions carries the optional inputs to AddFact.
type AddFactOptions struct {
	FactID   string
	Metadata map[string]any
}

// GraphOptions configures a knowledge graph instance. All dependencies are
// explicit so graphs with different backends or credentials can coexist.
type GraphOptions struct {
	// Workers bounds concurrent detection jobs. Zero means the default.
	Workers int
	// Embedder, when set, embeds new facts and narrows detection candidates
	// to the most similar stored facts instead of the full snapshot.
	Embedder domain.EmbeddingClient
}

// KnowledgeGraph is the public façade: synchronous fact ingestion and
// queries, background relationship detection, and the processing barrier.
type KnowledgeGraph struct {
	store    domain.FactStore
	detector domain.Detector
	embedder domain.EmbeddingClient
	ledger   *Ledger
	sched    *Scheduler
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewKnowledgeGraph composes a graph over the given storage backend and
// detector. A nil detector disables background detection; facts are still
// stored and queryable.
func NewKnowledgeGraph(s domain.FactStore, d domain.Detector, opts GraphOptions, logger *zap.Logger) *KnowledgeGraph {
	g := &KnowledgeGraph{
		store:    s,
		detector: d,
		embedder: opts.Embedder,
		ledger:   NewLedger(s, logger),
		logger:   logger,
	}
	g.sched = NewScheduler(opts.Workers, g.processFact, logger)
	return g
}

// AddFact stores the fact synchronously and schedules relationship detection
// in the background. The fact is visible to queries the moment this returns;
// detection results arrive later.
func (g *KnowledgeGraph) AddFact(ctx context.Context, content string, opts AddFactOptions) (*domain.Fact, error) {
	if g.closed.Load() {
		return nil, ErrGraphClosed
	}
	if content == "" {
		return nil, ErrContentEmpty
	}

	fact := &domain.Fact{
		ID:       opts.FactID,
		Content:  content,
		Metadata: opts.Metadata,
	}
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}

	if g.embedder != nil {
		embedding, err := g.embedder.Embed(ctx, content)
		if err != nil {
			// Detection falls back to the full fact snapshot.
			g.logger.Warn("failed to embed fact", zap.String("fact_id", fact.ID), zap.Error(err))
		} else {
			fact.Embedding = embedding
		}
	}

	if err := g.store.PutFact(ctx, fact); err != nil {
		return nil, err
	}

	if g.detector != nil {
		if err := g.sched.Submit(fact.ID); err != nil {
			g.logger.Warn("failed to schedule detection", zap.String("fact_id", fact.ID), zap.Error(err))
		}
	}
	return fact, nil
}

// processFact is the detection job body run by scheduler workers.
func (g *KnowledgeGraph) processFact(ctx context.Context, factID string) error {
	fact, err := g.store.GetFact(ctx, factID)
	if err != nil {
		return err
	}

	existing, err := g.candidateFacts(ctx, fact)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	proposals, err := g.detector.Detect(ctx, *fact, existing)
	if err != nil {
		return err
	}

	recorded, warnings, err := g.ledger.RecordDetected(ctx, factID, proposals)
	if err != nil {
		return err
	}
	g.logger.Info("processed detection job",
		zap.String("fact_id", factID),
		zap.Int("proposals", len(proposals)),
		zap.Int("recorded", len(recorded)),
		zap.Int("skipped", len(warnings)))
	return nil
}

// candidateFacts selects the facts the detector compares against: the most
// similar stored facts when the new fact has an embedding, otherwise a full
// snapshot. The new fact itself is excluded.
func (g *KnowledgeGraph) candidateFacts(ctx context.Context, fact *domain.Fact) ([]domain.Fact, error) {
	var facts []domain.Fact
	var err error
	if len(fact.Embedding) > 0 {
		facts, err = g.store.FindSimilarFacts(ctx, fact.Embedding, similarFactLimit+1)
	} else {
		facts, err = g.store.ListFacts(ctx)
	}
	if err != nil {
		return nil, err
	}

	existing := facts[:0]
	for _, f := range facts {
		if f.ID != fact.ID {
			existing = append(existing, f)
		}
	}
	return existing, nil
}

// AddManualRelationship asserts a relationship directly, bypassing
// detection. Manual edges are never overwritten by later detection.
func (g *KnowledgeGraph) AddManualRelationship(ctx context.Context, sourceID, targetID string, relType domain.RelationshipType, confidence float64) (*domain.Relationship, error) {
	if g.closed.Load() {
		return nil, ErrGraphClosed
	}
	return g.ledger.RecordManual(ctx, sourceID, targetID, relType, confidence)
}

func (g *KnowledgeGraph) GetFact(ctx context.Context, id string) (*domain.Fact, error) {
	return g.store.GetFact(ctx, id)
}

func (g *KnowledgeGraph) ListFacts(ctx context.Context) ([]domain.Fact, error) {
	return g.store.ListFacts(ctx)
}

// GetSupportingFacts returns the distinct facts connected to factID by a
// supports edge in either direction, at or above minConfidence.
func (g *KnowledgeGraph) GetSupportingFacts(ctx context.Context, factID string, minConfidence float64) ([]domain.Fact, error) {
	return g.connectedFacts(ctx, factID, domain.RelationSupports, minConfidence)
}

// GetContradictingFacts is the contradicts analogue of GetSupportingFacts.
func (g *KnowledgeGraph) GetContradictingFacts(ctx context.Context, factID string, minConfidence float64) ([]domain.Fact, error) {
	return g.connectedFacts(ctx, factID, domain.RelationContradicts, minConfidence)
}

func (g *KnowledgeGraph) connectedFacts(ctx context.Context, factID string, relType domain.RelationshipType, minConfidence float64) ([]domain.Fact, error) {
	if _, err := g.store.GetFact(ctx, factID); err != nil {
		return nil, err
	}
	rels, err := g.store.GetRelationships(ctx, factID, domain.RelationshipFilter{
		Direction: domain.DirectionBoth,
		Type:      &relType,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var facts []domain.Fact
	for _, rel := range rels {
		if rel.Confidence < minConfidence {
			continue
		}
		otherID := rel.Other(factID)
		if seen[otherID] {
			continue
		}
		seen[otherID] = true

		fact, err := g.store.GetFact(ctx, otherID)
		if err != nil {
			return nil, err
		}
		facts = append(facts, *fact)
	}
	return facts, nil
}

// GetRelationships returns every relationship, or those touching factID when
// it is non-empty.
func (g *KnowledgeGraph) GetRelationships(ctx context.Context, factID string) ([]domain.Relationship, error) {
	return g.store.GetRelationships(ctx, factID, domain.RelationshipFilter{Direction: domain.DirectionBoth})
}

// Job reports the detection job status for a fact, if one is still tracked.
func (g *KnowledgeGraph) Job(factID string) (domain.DetectionJob, bool) {
	return g.sched.Job(factID)
}

// Stats summarizes the stored graph.
func (g *KnowledgeGraph) Stats(ctx context.Context) (*domain.NetworkStats, error) {
	facts, err := g.store.ListFacts(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := g.store.GetRelationships(ctx, "", domain.RelationshipFilter{})
	if err != nil {
		return nil, err
	}

	stats := &domain.NetworkStats{
		TotalFacts:         len(facts),
		TotalRelationships: len(rels),
	}
	for _, rel := range rels {
		switch rel.Type {
		case domain.RelationSupports:
			stats.Supporting++
		case domain.RelationContradicts:
			stats.Contradicting++
		case domain.RelationNeutral:
			stats.Neutral++
		}
	}
	return stats, nil
}

// SchedulerStats exposes the detection job counters.
func (g *KnowledgeGraph) SchedulerStats() SchedulerStats {
	return g.sched.Stats()
}

// WaitForProcessing blocks until all detection work submitted so far has
// reached a terminal state, or ctx expires.
func (g *KnowledgeGraph) WaitForProcessing(ctx context.Context) error {
	if g.closed.Load() {
		return ErrGraphClosed
	}
	return g.sched.AwaitAll(ctx)
}

// Close drains the scheduler before tearing down the storage it depends on.
// Safe to call more than once; later calls on the graph fail fast.
func (g *KnowledgeGraph) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.sched.Shutdown()
	return g.store.Close()
}
