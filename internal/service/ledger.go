package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/SachikoNitta/factnet/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidRelType    = errors.New("invalid relationship type")
	ErrUnknownFact       = errors.New("fact does not exist")
)

// ProposalWarning records a detected proposal that was skipped rather than
// persisted. Warnings are non-fatal: one bad proposal never discards the
// rest of its batch.
type ProposalWarning struct {
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// Ledger mediates all relationship writes, enforcing confidence bounds and
// the manual-over-detected invariant before anything reaches storage.
type Ledger struct {
	store  domain.FactStore
	logger *zap.Logger
}

func NewLedger(s domain.FactStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: s, logger: logger}
}

// RecordManual validates and writes a caller-asserted relationship. Manual
// writes are unconditional: they replace whatever currently holds the pair.
func (l *Ledger) RecordManual(ctx context.Context, sourceID, targetID string, relType domain.RelationshipType, confidence float64) (*domain.Relationship, error) {
	if !domain.ValidRelationshipType(string(relType)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRelType, relType)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: got %.2f", ErrInvalidConfidence, confidence)
	}
	if err := l.factExists(ctx, sourceID); err != nil {
		return nil, err
	}
	if err := l.factExists(ctx, targetID); err != nil {
		return nil, err
	}

	rel := &domain.Relationship{
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Confidence: confidence,
		Manual:     true,
	}
	if err := l.store.PutRelationship(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// RecordDetected writes a batch of detector proposals for sourceID. Invalid
// proposals are skipped into the returned warnings; pairs protected by a
// manual assertion are silent no-ops.
func (l *Ledger) RecordDetected(ctx context.Context, sourceID string, proposals []domain.Proposal) ([]domain.Relationship, []ProposalWarning, error) {
	if err := l.factExists(ctx, sourceID); err != nil {
		return nil, nil, err
	}

	var recorded []domain.Relationship
	var warnings []ProposalWarning
	for _, p := range proposals {
		if !domain.ValidRelationshipType(string(p.Type)) {
			warnings = append(warnings, ProposalWarning{TargetID: p.TargetID, Reason: fmt.Sprintf("invalid relationship type %q", p.Type)})
			continue
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			warnings = append(warnings, ProposalWarning{TargetID: p.TargetID, Reason: fmt.Sprintf("confidence %.2f out of range", p.Confidence)})
			continue
		}

		rel := &domain.Relationship{
			SourceID:   sourceID,
			TargetID:   p.TargetID,
			Type:       p.Type,
			Confidence: p.Confidence,
			Manual:     false,
		}
		err := l.store.PutRelationship(ctx, rel)
		switch {
		case err == nil:
			recorded = append(recorded, *rel)
		case errors.Is(err, store.ErrManualEdge):
			// Pair is manually asserted; detection never overrides it.
		case errors.Is(err, store.ErrDanglingEndpoint):
			warnings = append(warnings, ProposalWarning{TargetID: p.TargetID, Reason: "target fact does not exist"})
		default:
			return recorded, warnings, err
		}
	}

	if len(warnings) > 0 {
		l.logger.Warn("skipped invalid detection proposals",
			zap.String("source_id", sourceID),
			zap.Int("skipped", len(warnings)),
			zap.Int("recorded", len(recorded)))
	}
	return recorded, warnings, nil
}

func (l *Ledger) factExists(ctx context.Context, id string) error {
	_, err := l.store.GetFact(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownFact, id)
		}
		return err
	}
	return nil
}
