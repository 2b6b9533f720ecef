package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"voice_rag/internal/domain"
)

// Supported remote providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Default configuration values.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultConcurrency = 4
)

var errEmptyEmbedding = errors.New("provider returned an empty embedding")

// RemoteConfig holds configuration for a networked embedding provider.
type RemoteConfig struct {
	// Provider is "ollama" or "openai".
	Provider string

	// URL is the Ollama base URL (without /api).
	URL string

	// Model is the embedding model name.
	Model string

	// APIKey is required for OpenAI.
	APIKey string

	// RequestsPerSecond limits calls to the provider, 0 disables the limit.
	RequestsPerSecond float64

	// Concurrency bounds parallel requests inside EmbedBatch.
	Concurrency int
}

// Remote generates embeddings through a network provider.
type Remote struct {
	name        string
	fn          chromem.EmbeddingFunc
	limiter     *rate.Limiter
	concurrency int

	mu        sync.RWMutex
	dimension int
}

// NewRemote creates a remote embedder backed by chromem-go embedding functions.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	var fn chromem.EmbeddingFunc
	cfg.Provider = strings.ToLower(cfg.Provider)
	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}
	switch cfg.Provider {
	case ProviderOllama:
		url := cfg.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		fn = chromem.NewEmbeddingFuncOllama(model, strings.TrimRight(url, "/")+"/api")
		cfg.Model = model
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("openai embeddings require an API key")
		}
		model := chromem.EmbeddingModelOpenAI3Small
		if cfg.Model != "" {
			model = chromem.EmbeddingModelOpenAI(cfg.Model)
		}
		fn = chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, model)
		cfg.Model = string(model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewRemoteFunc(cfg.Provider+"/"+cfg.Model, fn, cfg), nil
}

// NewRemoteFunc wraps any chromem embedding function.
func NewRemoteFunc(name string, fn chromem.EmbeddingFunc, cfg RemoteConfig) *Remote {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &Remote{
		name:        name,
		fn:          fn,
		concurrency: concurrency,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// Name returns the provider/model identifier.
func (r *Remote) Name() string { return r.name }

// Dimension returns the vector size observed from the provider.
func (r *Remote) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Embed generates a vector embedding for the given text.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, classify(ctx, err)
		}
	}

	vec, err := r.fn(ctx, text)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(vec) == 0 {
		return nil, &domain.EmbeddingError{Err: errEmptyEmbedding}
	}
	if err := r.observe(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently. The first failure cancels the rest.
func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := r.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(ctx, err)
	}
	return vectors, nil
}

// observe pins the dimensionality on the first response.
func (r *Remote) observe(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dimension == 0 {
		r.dimension = n
		return nil
	}
	if r.dimension != n {
		return &domain.DimensionMismatchError{Expected: r.dimension, Actual: n}
	}
	return nil
}
