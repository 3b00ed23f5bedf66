package rerank

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

	"juris-rag/internal/core/ports"
	"juris-rag/internal/core/signal"
	"juris-rag/internal/infrastructure/resilience"
)

const localBackend = "local"

// LocalScorer scores query/document pairs against a self-hosted
// cross-encoder service in a single request.
type LocalScorer struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewLocalScorer(baseURL string, executor *resilience.Executor) *LocalScorer {
	return &LocalScorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (s *LocalScorer) Score(ctx context.Context, req ports.ScoreRequest) (ports.ScoreResult, error) {
	if len(req.Candidates) == 0 {
		return ports.ScoreResult{Backend: localBackend}, nil
	}

	documents := make([]string, len(req.Candidates))
	for i := range req.Candidates {
		documents[i] = signal.SemanticExcerpt(&req.Candidates[i], scoringExcerptChars)
	}
	payload := map[string]any{
		"query":     req.Query,
		"documents": documents,
	}

	var response struct {
		Scores []float64 `json:"scores"`
	}
	err := s.executor.Execute(ctx, "rerank.local", func(ctx context.Context) error {
		return s.post(ctx, "/rerank", payload, &response)
	}, classifyLocalError)
	if err != nil {
		return ports.ScoreResult{}, err
	}
	if len(response.Scores) != len(req.Candidates) {
		return ports.ScoreResult{}, fmt.Errorf("rerank.local: got %d scores for %d documents",
			len(response.Scores), len(req.Candidates))
	}
	return ports.ScoreResult{Scores: response.Scores, Backend: localBackend}, nil
}

func (s *LocalScorer) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{status: resp.Status, code: resp.StatusCode, body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}

type statusError struct {
	status string
	code   int
	body   string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("rerank status: %s", e.status)
	}
	return fmt.Sprintf("rerank status: %s: %s", e.status, strings.TrimSpace(e.body))
}

func classifyLocalError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

var _ ports.SemanticScorer = (*LocalScorer)(nil)
