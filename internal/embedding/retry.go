package embedding

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice_rag/internal/domain"
)

// Retrying retries transient embedding failures with exponential backoff.
type Retrying struct {
	next       Embedder
	maxRetries uint64
	maxElapsed time.Duration
	logger     *log.Logger
}

// WithRetry decorates an embedder. maxRetries of 0 returns next unchanged.
func WithRetry(next Embedder, maxRetries uint64, maxElapsed time.Duration, logger *log.Logger) Embedder {
	if maxRetries == 0 {
		return next
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Retrying{next: next, maxRetries: maxRetries, maxElapsed: maxElapsed, logger: logger}
}

func (r *Retrying) Name() string   { return r.next.Name() }
func (r *Retrying) Dimension() int { return r.next.Dimension() }

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.retry(ctx, func() error {
		vec, err := r.next.Embed(ctx, text)
		if err != nil {
			return err
		}
		out = vec
		return nil
	})
	return out, err
}

func (r *Retrying) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.retry(ctx, func() error {
		vecs, err := r.next.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	return out, err
}

func (r *Retrying) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	if r.maxElapsed > 0 {
		policy.MaxElapsedTime = r.maxElapsed
	}

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx), func(err error, wait time.Duration) {
		r.logger.Printf("⚠️ Embedding attempt %d failed, retrying in %s: %v", attempt, wait.Round(time.Millisecond), err)
	})
	if err != nil && ctx.Err() != nil {
		if ctxErr := domain.ContextError(ctx, "embedding"); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
