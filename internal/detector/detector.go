// Package detector implements the relationship-detection port: a remote
// OpenAI-backed detector, a wrapper for user-supplied detection functions,
// and a configurable mock for tests.
package detector

import (
	"errors"
	"fmt"

	"github.com/SachikoNitta/factnet/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

var (
	// ErrTimeout is returned when a detection request exceeded its deadline.
	ErrTimeout = errors.New("detection request timed out")
	// ErrRateLimited is returned when the remote oracle rejected the request
	// with a rate limit and retries were exhausted.
	ErrRateLimited = errors.New("detection rate limited")
	// ErrMalformedResponse is returned when the oracle's response could not
	// be parsed into valid proposals.
	ErrMalformedResponse = errors.New("malformed detection response")
	// ErrTransient is returned for network and server-side failures after
	// retries were exhausted.
	ErrTransient = errors.New("transient detection failure")
)

// Options configures a remote detector.
type Options struct {
	APIKey string
	Model  string
}

// New creates a detector for the named provider. User-supplied detection
// functions do not go through this factory; wrap them with NewFuncDetector.
func New(provider string, opts Options) (domain.Detector, error) {
	switch provider {
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIDetector(opts.APIKey, opts.Model), nil

	case ProviderMock:
		return NewMockDetector(), nil

	default:
		return nil, fmt.Errorf("unknown detector provider: %s (valid options: openai, mock)", provider)
	}
}

// NewFuncDetector wraps a user-supplied function so it satisfies the
// detector port. The function must be safe for concurrent calls.
func NewFuncDetector(fn domain.DetectFunc) domain.Detector {
	return fn
}
