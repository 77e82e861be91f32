package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SachikoNitta/factnet/internal/domain"
)

func batchOf(ids ...string) []domain.Fact {
	facts := make([]domain.Fact, len(ids))
	for i, id := range ids {
		facts[i] = domain.Fact{ID: id, Content: "fact " + id}
	}
	return facts
}

func TestParseProposals(t *testing.T) {
	raw := `[
		{"fact_id": "f1", "relationship": "supports", "confidence": 0.9, "reasoning": "same claim"},
		{"fact_id": "f2", "relationship": "contradicts", "confidence": 0.7}
	]`

	proposals, err := parseProposals(raw, batchOf("f1", "f2"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(proposals))
	}
	if proposals[0].TargetID != "f1" || proposals[0].Type != domain.RelationSupports || proposals[0].Confidence != 0.9 {
		t.Fatalf("unexpected first proposal %+v", proposals[0])
	}
}

func TestParseProposals_MarkdownFences(t *testing.T) {
	raw := "```json\n[{\"fact_id\": \"f1\", \"relationship\": \"neutral\", \"confidence\": 0.5}]\n```"

	proposals, err := parseProposals(raw, batchOf("f1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(proposals) != 1 || proposals[0].Type != domain.RelationNeutral {
		t.Fatalf("unexpected proposals %+v", proposals)
	}
}

func TestParseProposals_CaseInsensitiveType(t *testing.T) {
	raw := `[{"fact_id": "f1", "relationship": "Supports", "confidence": 0.8}]`

	proposals, err := parseProposals(raw, batchOf("f1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(proposals) != 1 || proposals[0].Type != domain.RelationSupports {
		t.Fatalf("unexpected proposals %+v", proposals)
	}
}

func TestParseProposals_UnknownType(t *testing.T) {
	raw := `[{"fact_id": "f1", "relationship": "entails", "confidence": 0.8}]`

	_, err := parseProposals(raw, batchOf("f1"))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseProposals_ConfidenceOutOfRange(t *testing.T) {
	for _, c := range []float64{-0.2, 1.2} {
		raw := fmt.Sprintf(`[{"fact_id": "f1", "relationship": "supports", "confidence": %v}]`, c)
		_, err := parseProposals(raw, batchOf("f1"))
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse for confidence %v, got %v", c, err)
		}
	}
}

func TestParseProposals_DropsUnknownFactAndLowConfidence(t *testing.T) {
	raw := `[
		{"fact_id": "ghost", "relationship": "supports", "confidence": 0.9},
		{"fact_id": "f1", "relationship": "supports", "confidence": 0.2},
		{"fact_id": "f1", "relationship": "supports", "confidence": 0.6}
	]`

	proposals, err := parseProposals(raw, batchOf("f1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(proposals) != 1 || proposals[0].Confidence != 0.6 {
		t.Fatalf("expected single proposal above floor, got %+v", proposals)
	}
}

func TestParseProposals_NotJSON(t *testing.T) {
	_, err := parseProposals("I could not find any relationships.", batchOf("f1"))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func testDetector(url string) *OpenAIDetector {
	d := NewOpenAIDetector("test-key", "")
	d.apiURL = url
	d.retryDelay = time.Millisecond
	return d
}

func TestOpenAIDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != defaultModel {
			t.Errorf("unexpected model %q", req.Model)
		}
		fmt.Fprint(w, chatReply(`[{"fact_id": "f1", "relationship": "supports", "confidence": 0.9}]`))
	}))
	defer srv.Close()

	d := testDetector(srv.URL)
	proposals, err := d.Detect(context.Background(), domain.Fact{ID: "new", Content: "new fact"}, batchOf("f1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(proposals) != 1 || proposals[0].TargetID != "f1" {
		t.Fatalf("unexpected proposals %+v", proposals)
	}
}

func TestOpenAIDetector_Detect_NoExisting(t *testing.T) {
	d := testDetector("http://127.0.0.1:0")
	proposals, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, nil)
	if err != nil {
		t.Fatalf("expected no API call and no error, got %v", err)
	}
	if proposals != nil {
		t.Fatalf("expected nil proposals, got %+v", proposals)
	}
}

func TestOpenAIDetector_Detect_Batching(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chatReply(`[]`))
	}))
	defer srv.Close()

	ids := make([]string, maxFactsPerRequest+5)
	for i := range ids {
		ids[i] = fmt.Sprintf("f%d", i)
	}

	d := testDetector(srv.URL)
	if _, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, batchOf(ids...)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 batched requests, got %d", got)
	}
}

func TestOpenAIDetector_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatReply(`[]`))
	}))
	defer srv.Close()

	d := testDetector(srv.URL)
	if _, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, batchOf("f1")); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestOpenAIDetector_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := testDetector(srv.URL)
	_, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, batchOf("f1"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := calls.Load(); got != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, got)
	}
}

func TestOpenAIDetector_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatReply(`[]`))
	}))
	defer srv.Close()

	d := testDetector(srv.URL)
	if _, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, batchOf("f1")); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
}

func TestOpenAIDetector_MalformedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	d := testDetector(srv.URL)
	_, err := d.Detect(context.Background(), domain.Fact{ID: "new"}, batchOf("f1"))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestNew_Providers(t *testing.T) {
	if _, err := New(ProviderOpenAI, Options{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := New(ProviderOpenAI, Options{APIKey: "k"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := New(ProviderMock, Options{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := New("neo4j", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
