package ports

import (
	"context"

	"juris-rag/internal/core/domain"
)

// Embedder builds the query vector. Failure is fatal to the query; the
// implementation must distinguish "not configured" from "unreachable" via
// the domain sentinel errors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchStore exposes the two retrieval legs over one logical table. The
// filter is a conjunctive predicate over typed columns. The store is
// read-only from the engine's perspective.
type SearchStore interface {
	VectorSearch(ctx context.Context, table string, vector []float32, limit int, filter domain.Filter) ([]domain.Candidate, error)
	FullTextSearch(ctx context.Context, table, query string, limit int, filter domain.Filter) ([]domain.Candidate, error)
}

// ScoreRequest asks a scorer for one raw semantic score per candidate.
type ScoreRequest struct {
	Query      string
	Candidates []domain.Candidate
	Model      string
}

// ScoreResult returns raw scores in candidate order plus the backend tag
// that produced them.
type ScoreResult struct {
	Scores  []float64
	Backend string
}

// SemanticScorer is the pluggable reranking strategy: a local pairwise
// model or a remote batch scorer, selected by configuration.
type SemanticScorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

// GenerationRequest is one prompt for the text-generation collaborator.
type GenerationRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

// AnswerGenerator drafts the final answer prose. It is an external
// collaborator; the engine only assembles its grounding context and
// validates its citations.
type AnswerGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// StagePublisher forwards pipeline stage events to an external sink
// (message bus, metrics bridge). Publish errors are logged, never surfaced.
type StagePublisher interface {
	Publish(ctx context.Context, event domain.StageEvent) error
}
