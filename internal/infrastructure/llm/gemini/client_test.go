package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Millisecond
	return resilience.NewExecutor(cfg)
}

func TestEmbedQueryReturnsVector(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "text-embedding-004", testExecutor())
	embedder := NewEmbedder(client)

	vector, err := embedder.EmbedQuery(context.Background(), "prazo decadencial")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vector))
	}
	if gotPath != "/models/text-embedding-004:embedContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
}

func TestEmbedQueryWithoutKeyIsNotConfigured(t *testing.T) {
	client := New("", "", "text-embedding-004", testExecutor())
	embedder := NewEmbedder(client)

	_, err := embedder.EmbedQuery(context.Background(), "consulta")
	if !errors.Is(err, domain.ErrEmbeddingNotConfigured) {
		t.Fatalf("expected ErrEmbeddingNotConfigured, got %v", err)
	}
}

func TestEmbedQueryEmptyResultIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": map[string]any{"values": []float32{}}})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "text-embedding-004", testExecutor())
	embedder := NewEmbedder(client)

	_, err := embedder.EmbedQuery(context.Background(), "consulta")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedQueryRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.5}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "text-embedding-004", testExecutor())
	embedder := NewEmbedder(client)

	if _, err := embedder.EmbedQuery(context.Background(), "consulta"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestGenerateConcatenatesFirstCandidate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "Primeira parte. "},
					{"text": "Segunda parte."},
				}}},
				{"content": map[string]any{"parts": []map[string]any{{"text": "candidato ignorado"}}}},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "text-embedding-004", testExecutor())
	generator := NewGenerator(client)

	text, err := generator.Generate(context.Background(), ports.GenerationRequest{
		Model:           "gemini-2.0-flash",
		SystemPrompt:    "Responda em português.",
		UserPrompt:      "Qual o prazo?",
		MaxOutputTokens: 512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Primeira parte. Segunda parte." {
		t.Fatalf("unexpected text %q", text)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatal("expected systemInstruction in request body")
	}
}

func TestGenerateClientErrorIsNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "text-embedding-004", testExecutor())
	generator := NewGenerator(client)

	_, err := generator.Generate(context.Background(), ports.GenerationRequest{Model: "gemini-2.0-flash", UserPrompt: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for 400, got %d", attempts)
	}
}
