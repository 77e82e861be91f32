package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SachikoNitta/factnet/internal/domain"
	"golang.org/x/time/rate"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	defaultModel  = "gpt-4o-mini"

	// Facts are analyzed in batches to stay under token limits.
	maxFactsPerRequest = 20

	// Proposals below this confidence are dropped, matching the prompt's
	// instruction to the model.
	minProposalConfidence = 0.3

	requestTimeout = 30 * time.Second
	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
)

// OpenAIDetector proposes relationships via the OpenAI chat completions API.
// Safe for concurrent use; a shared limiter spaces out requests across all
// in-flight detection jobs.
type OpenAIDetector struct {
	apiKey     string
	model      string
	apiURL     string
	retryDelay time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewOpenAIDetector(apiKey, model string) *OpenAIDetector {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIDetector{
		apiKey:     apiKey,
		model:      model,
		apiURL:     openAIChatURL,
		retryDelay: retryBaseDelay,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(2), 4),
	}
}

// chat types for the OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type proposalPayload struct {
	FactID       string  `json:"fact_id"`
	Relationship string  `json:"relationship"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

func (d *OpenAIDetector) Detect(ctx context.Context, newFact domain.Fact, existing []domain.Fact) ([]domain.Proposal, error) {
	if len(existing) == 0 {
		return nil, nil
	}

	// All-or-nothing: any batch failing fails the whole call.
	var proposals []domain.Proposal
	for start := 0; start < len(existing); start += maxFactsPerRequest {
		end := start + maxFactsPerRequest
		if end > len(existing) {
			end = len(existing)
		}
		batch, err := d.detectBatch(ctx, newFact, existing[start:end])
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, batch...)
	}
	return proposals, nil
}

func (d *OpenAIDetector) detectBatch(ctx context.Context, newFact domain.Fact, batch []domain.Fact) ([]domain.Proposal, error) {
	var sb strings.Builder
	for i, f := range batch {
		fmt.Fprintf(&sb, "%d. ID: %s, Content: %s\n", i+1, f.ID, f.Content)
	}
	prompt := fmt.Sprintf(detectPrompt, newFact.Content, sb.String())

	result, err := d.completeWithRetry(ctx, []chatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}
	return parseProposals(result, batch)
}

// completeWithRetry runs one chat completion, retrying rate limits and
// transient failures with exponential backoff. Malformed API responses are
// not retried.
func (d *OpenAIDetector) completeWithRetry(ctx context.Context, messages []chatMessage) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := d.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		result, err := d.complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrTransient) && !errors.Is(err, ErrTimeout) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (d *OpenAIDetector) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       d.model,
		Messages:    messages,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read chat response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(respBody)))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: chat API returned status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: chat API returned no choices", ErrMalformedResponse)
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// parseProposals validates the model output against the batch it was asked
// about. Out-of-range confidence and unknown relationship tokens fail the
// batch rather than letting bad data through; proposals naming facts outside
// the batch or sitting under the confidence floor are dropped.
func parseProposals(raw string, batch []domain.Fact) ([]domain.Proposal, error) {
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payloads []proposalPayload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, raw)
	}

	batchIDs := make(map[string]bool, len(batch))
	for _, f := range batch {
		batchIDs[f.ID] = true
	}

	var proposals []domain.Proposal
	for _, p := range payloads {
		relType := strings.ToLower(strings.TrimSpace(p.Relationship))
		if !domain.ValidRelationshipType(relType) {
			return nil, fmt.Errorf("%w: unknown relationship type %q", ErrMalformedResponse, p.Relationship)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence %.2f out of range", ErrMalformedResponse, p.Confidence)
		}
		if !batchIDs[p.FactID] {
			continue
		}
		if p.Confidence < minProposalConfidence {
			continue
		}
		proposals = append(proposals, domain.Proposal{
			TargetID:   p.FactID,
			Type:       domain.RelationshipType(relType),
			Confidence: p.Confidence,
		})
	}
	return proposals, nil
}
