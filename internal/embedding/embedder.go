package embedding

import (
	"context"
	"fmt"
	"time"

	"callbot/internal/domain"
	"callbot/internal/util"
)

// One embeds a single text through a batch embedder.
func One(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", domain.ErrEmbeddingFailure, len(vecs))
	}
	return vecs[0], nil
}

// CheckBatch verifies that a backend returned one vector of the expected
// dimension per input. A dimension of 0 skips the length check.
func CheckBatch(vecs [][]float32, inputs, dimension int) error {
	if len(vecs) != inputs {
		return fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbeddingFailure, inputs, len(vecs))
	}
	if dimension <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", domain.ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}

// Retrying wraps an embedder with exponential backoff. Embedding failures
// are not retried by default; callers opt in with WithRetry.
type Retrying struct {
	domain.Embedder
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry returns e unchanged when maxRetries is 0.
func WithRetry(e domain.Embedder, maxRetries int, baseDelay time.Duration) domain.Embedder {
	if maxRetries <= 0 {
		return e
	}
	return &Retrying{Embedder: e, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, ctx.Err())
			case <-time.After(util.CalculateBackoff(r.baseDelay, attempt)):
			}
		}
		vecs, err := r.Embedder.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Retrying) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return One(ctx, r, text)
}
