package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"juris-rag/internal/core/ports"
	"juris-rag/internal/infrastructure/resilience"
)

func localExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Millisecond
	return resilience.NewExecutor(cfg)
}

func TestLocalScorerReturnsPairScores(t *testing.T) {
	var received struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{"scores": []float64{0.9, 0.1, 0.4}})
	}))
	defer server.Close()

	scorer := NewLocalScorer(server.URL, localExecutor())
	result, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "reserva de plenário",
		Candidates: rerankCandidates(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Backend != localBackend {
		t.Fatalf("expected backend %q, got %q", localBackend, result.Backend)
	}
	if len(result.Scores) != 3 || result.Scores[0] != 0.9 {
		t.Fatalf("unexpected scores %v", result.Scores)
	}
	if received.Query != "reserva de plenário" || len(received.Documents) != 3 {
		t.Fatalf("unexpected upstream payload: %+v", received)
	}
}

func TestLocalScorerScoreCountMismatchIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"scores": []float64{0.5}})
	}))
	defer server.Close()

	scorer := NewLocalScorer(server.URL, localExecutor())
	if _, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "q",
		Candidates: rerankCandidates(),
	}); err == nil {
		t.Fatal("expected score-count mismatch error")
	}
}

func TestLocalScorerRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"scores": []float64{0.2, 0.3, 0.4}})
	}))
	defer server.Close()

	scorer := NewLocalScorer(server.URL, localExecutor())
	if _, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "q",
		Candidates: rerankCandidates(),
	}); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestLocalScorerClientErrorIsNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	scorer := NewLocalScorer(server.URL, localExecutor())
	if _, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "q",
		Candidates: rerankCandidates(),
	}); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for 422, got %d", attempts)
	}
}
