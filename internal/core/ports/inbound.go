package ports

import (
	"context"

	"juris-rag/internal/core/domain"
)

// PrecedentSearchService is the inbound contract for ranked retrieval and
// grounded answering over the jurisprudence corpus.
type PrecedentSearchService interface {
	SearchAndRank(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
	Answer(ctx context.Context, req domain.SearchRequest) (*domain.AnswerResult, error)
}
