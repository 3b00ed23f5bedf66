package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	// ErrEmbeddingNotConfigured means no embedding credentials are present;
	// distinct from the service being unreachable.
	ErrEmbeddingNotConfigured = errors.New("embedding service not configured")
	ErrEmbeddingUnavailable   = errors.New("embedding service unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
