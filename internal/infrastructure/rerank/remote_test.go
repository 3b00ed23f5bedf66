package rerank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/core/signal"
)

type generatorFunc func(ctx context.Context, req ports.GenerationRequest) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	return f(ctx, req)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rerankCandidates() []domain.Candidate {
	return []domain.Candidate{
		{
			DocID:      "merito",
			Tribunal:   "STF",
			Tipo:       domain.TipoSumulaVinculante,
			Processo:   "SV 10",
			TextoBusca: "Tese vinculante sobre reserva de plenário.",
		},
		{
			DocID:      "fraco",
			Tribunal:   "STJ",
			Tipo:       domain.TipoAcordao,
			Processo:   "REsp 200",
			TextoBusca: "Caso lateral sem relação direta.",
		},
		{
			DocID:      "processual",
			Tribunal:   "STJ",
			Tipo:       domain.TipoAcordao,
			Processo:   "AgInt 300",
			TextoBusca: "Agravo não conhecido por óbice de admissibilidade.",
		},
	}
}

// scoreByContent answers every batch by recognizing which candidate each
// numbered excerpt came from, regardless of batch composition.
func scoreByContent(_ context.Context, req ports.GenerationRequest) (string, error) {
	var entries []string
	for i, line := range batchExcerpts(req.UserPrompt) {
		switch {
		case strings.Contains(line, "SV 10"):
			entries = append(entries, fmt.Sprintf(`{"id": %d, "relevancia": 1.0, "tese": 1.0, "processual": 0.0, "hierarquia": 1.0}`, i+1))
		case strings.Contains(line, "AgInt 300"):
			entries = append(entries, fmt.Sprintf(`{"id": %d, "relevancia": 0.0, "tese": 0.0, "processual": 1.0, "hierarquia": 0.0}`, i+1))
		default:
			entries = append(entries, fmt.Sprintf(`{"id": %d, "relevancia": 0.2, "tese": 0.0, "processual": 0.0, "hierarquia": 0.0}`, i+1))
		}
	}
	return "Segue a avaliação:\n[" + strings.Join(entries, ",") + "]", nil
}

// batchExcerpts returns the numbered document lines of one scoring prompt,
// index-aligned with the ids the model is asked to emit.
func batchExcerpts(prompt string) []string {
	var out []string
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "[") {
			out = append(out, line)
		}
	}
	return out
}

func TestRemoteScorerAggregatesBatchAnswers(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(scoreByContent), 6000, testLogger())

	result, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "reserva de plenário",
		Candidates: rerankCandidates(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Backend != remoteBackend {
		t.Fatalf("expected backend %q, got %q", remoteBackend, result.Backend)
	}
	if len(result.Scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(result.Scores))
	}

	// Both passes agree, so the spread discount is zero and the aggregate is
	// the plain composite of the per-axis notes.
	if math.Abs(result.Scores[0]-0.95) > 1e-9 {
		t.Fatalf("expected merit score 0.95, got %f", result.Scores[0])
	}
	if math.Abs(result.Scores[1]-0.10) > 1e-9 {
		t.Fatalf("expected weak score 0.10, got %f", result.Scores[1])
	}
	if result.Scores[2] != 0 {
		t.Fatalf("expected procedural-only score clamped to 0, got %f", result.Scores[2])
	}
}

func TestRemoteScorerFallsBackWhenBatchesFail(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(func(context.Context, ports.GenerationRequest) (string, error) {
		return "", errors.New("quota exhausted")
	}), 6000, testLogger())

	query := "reserva de plenário"
	cands := rerankCandidates()
	result, err := scorer.Score(context.Background(), ports.ScoreRequest{Query: query, Candidates: cands})
	if err != nil {
		t.Fatalf("batch failures must not surface: %v", err)
	}
	for i := range cands {
		want := signal.FallbackScore(query, &cands[i])
		if math.Abs(result.Scores[i]-want) > 1e-9 {
			t.Fatalf("candidate %d: expected lexical fallback %f, got %f", i, want, result.Scores[i])
		}
	}
}

func TestRemoteScorerFallsBackOnUnparsableAnswer(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(func(context.Context, ports.GenerationRequest) (string, error) {
		return "não consigo avaliar estes documentos", nil
	}), 6000, testLogger())

	cands := rerankCandidates()
	result, err := scorer.Score(context.Background(), ports.ScoreRequest{Query: "plenário", Candidates: cands})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Scores) != len(cands) {
		t.Fatalf("expected %d fallback scores, got %d", len(cands), len(result.Scores))
	}
}

func TestRemoteScorerRunsRefinementForLargeSets(t *testing.T) {
	var calls atomic.Int64
	scorer := NewRemoteScorer(generatorFunc(func(ctx context.Context, req ports.GenerationRequest) (string, error) {
		calls.Add(1)
		return scoreByContent(ctx, req)
	}), 6000, testLogger())

	cands := make([]domain.Candidate, 9)
	for i := range cands {
		cands[i] = domain.Candidate{
			DocID:      fmt.Sprintf("d%d", i),
			Tribunal:   "STJ",
			Tipo:       domain.TipoAcordao,
			Processo:   fmt.Sprintf("REsp %d", i),
			TextoBusca: "Discussão sobre prazo decadencial em mandado de segurança.",
		}
	}

	result, err := scorer.Score(context.Background(), ports.ScoreRequest{Query: "prazo", Candidates: cands})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Nine candidates make two batches per pass: two scoring passes plus a
	// single refinement request covering all nine.
	if got := calls.Load(); got != 5 {
		t.Fatalf("expected 5 generation calls, got %d", got)
	}
	for i, s := range result.Scores {
		if s < 0 || s > 1 {
			t.Fatalf("score %d out of range: %f", i, s)
		}
	}
}

func TestRemoteScorerPrefersModelFinalScore(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(func(_ context.Context, req ports.GenerationRequest) (string, error) {
		var entries []string
		for i := range batchExcerpts(req.UserPrompt) {
			// The final score contradicts the partial notes on purpose.
			entries = append(entries, fmt.Sprintf(
				`{"id": %d, "score": 0.42, "relevancia": 1.0, "tese": 1.0, "processual": 0.0, "hierarquia": 1.0}`, i+1))
		}
		return "[" + strings.Join(entries, ",") + "]", nil
	}), 6000, testLogger())

	result, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "reserva de plenário",
		Candidates: rerankCandidates(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range result.Scores {
		if math.Abs(s-0.42) > 1e-9 {
			t.Fatalf("candidate %d: expected the model's own score 0.42, got %f", i, s)
		}
	}
}

func TestRemoteScorerRefinementBlendsIntoBaseScores(t *testing.T) {
	var refineCalls atomic.Int64
	scorer := NewRemoteScorer(generatorFunc(func(_ context.Context, req ports.GenerationRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "BaseScore=") {
			refineCalls.Add(1)
			return `[{"id": 1, "score": 1.0}]`, nil
		}
		var entries []string
		for i := range batchExcerpts(req.UserPrompt) {
			entries = append(entries, fmt.Sprintf(`{"id": %d, "score": 0.25}`, i+1))
		}
		return "[" + strings.Join(entries, ",") + "]", nil
	}), 6000, testLogger())

	cands := make([]domain.Candidate, 4)
	for i := range cands {
		cands[i] = domain.Candidate{
			DocID:      fmt.Sprintf("d%d", i),
			Tribunal:   "STJ",
			Tipo:       domain.TipoAcordao,
			Processo:   fmt.Sprintf("REsp %d", i),
			TextoBusca: "Discussão sobre prazo decadencial em mandado de segurança.",
		}
	}

	result, err := scorer.Score(context.Background(), ports.ScoreRequest{Query: "prazo", Candidates: cands})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := refineCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refinement request, got %d", got)
	}
	// All bases tie at 0.25, so id 1 is the first candidate: 0.70*1.0 + 0.30*0.25.
	if math.Abs(result.Scores[0]-0.775) > 1e-9 {
		t.Fatalf("expected blended score 0.775, got %f", result.Scores[0])
	}
	for i := 1; i < len(result.Scores); i++ {
		if math.Abs(result.Scores[i]-0.25) > 1e-9 {
			t.Fatalf("candidate %d: expected untouched base 0.25, got %f", i, result.Scores[i])
		}
	}
}

func TestRemoteScorerRefinementSkippedBelowFourCandidates(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(func(_ context.Context, req ports.GenerationRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "BaseScore=") {
			t.Error("refinement must not run for fewer than four candidates")
		}
		return scoreByContent(context.Background(), req)
	}), 6000, testLogger())

	if _, err := scorer.Score(context.Background(), ports.ScoreRequest{
		Query:      "reserva de plenário",
		Candidates: rerankCandidates(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemoteScorerEmptyInput(t *testing.T) {
	scorer := NewRemoteScorer(generatorFunc(scoreByContent), 6000, testLogger())
	result, err := scorer.Score(context.Background(), ports.ScoreRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Scores) != 0 || result.Backend != remoteBackend {
		t.Fatalf("unexpected result: %+v", result)
	}
}
