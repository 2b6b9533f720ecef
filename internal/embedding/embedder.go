// Package embedding maps text to fixed-length vectors.
package embedding

import (
	"context"
	"errors"

	"voice_rag/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
// All vectors produced by one instance share the same dimensionality.
type Embedder interface {
	Name() string
	// Dimension returns 0 while a remote model's size is still unknown.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch fails as a whole if any item fails.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// classify wraps a raw provider error into the domain taxonomy.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var (
		embErr     *domain.EmbeddingError
		timeoutErr *domain.TimeoutError
		dimErr     *domain.DimensionMismatchError
	)
	if errors.As(err, &embErr) || errors.As(err, &timeoutErr) || errors.As(err, &dimErr) {
		return err
	}
	if ctxErr := domain.ContextError(ctx, "embedding"); ctxErr != nil {
		if errors.As(ctxErr, &timeoutErr) {
			return ctxErr
		}
		return &domain.EmbeddingError{Err: ctxErr}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Op: "embedding", Err: err}
	}
	return &domain.EmbeddingError{Err: err}
}
