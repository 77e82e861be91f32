package detector

import (
	"context"
	"sync"

	"github.com/SachikoNitta/factnet/internal/domain"
)

// MockDetector is a configurable detector for testing. Set the response
// fields to control what Detect returns.
type MockDetector struct {
	mu sync.Mutex

	DetectResponse []domain.Proposal
	DetectError    error

	// Call tracking for assertions
	DetectCalls []struct {
		NewFact  domain.Fact
		Existing []domain.Fact
	}
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

func (d *MockDetector) Detect(ctx context.Context, newFact domain.Fact, existing []domain.Fact) ([]domain.Proposal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.DetectCalls = append(d.DetectCalls, struct {
		NewFact  domain.Fact
		Existing []domain.Fact
	}{NewFact: newFact, Existing: existing})

	if d.DetectError != nil {
		return nil, d.DetectError
	}
	return d.DetectResponse, nil
}

// CallCount returns how many times Detect has been invoked.
func (d *MockDetector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DetectCalls)
}
