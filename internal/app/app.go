package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"voice_rag/internal/answer"
	"voice_rag/internal/chunker"
	"voice_rag/internal/config"
	"voice_rag/internal/domain"
	"voice_rag/internal/embedding"
	"voice_rag/internal/index"
	"voice_rag/internal/kb"
	"voice_rag/internal/loader"
)

// Ответы без обращения к LLM
const (
	NoDocumentsAnswer = "📚 No documents in knowledge base. Please upload some documents first."
	NoContextAnswer   = "🤷 I couldn't find anything relevant in the uploaded documents."
)

type App struct {
	cfg       *config.Config
	kb        *kb.KnowledgeBase
	manager   *kb.Manager
	generator answer.Generator
	registry  *prometheus.Registry
	logger    *log.Logger
}

// Answer - ответ и чанки, на которых он основан
type Answer struct {
	Text    string      `json:"answer"`
	Sources []kb.Result `json:"sources"`
}

func New(cfg *config.Config) (*App, error) {
	logger := log.New(os.Stderr, "[KB] ", log.LstdFlags)

	textChunker, err := chunker.NewTextChunker(chunker.Config{
		MaxChunkSize: cfg.ChunkSize,
		Overlap:      cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	embedder, err := newEmbedder(cfg.Embed, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	base, err := kb.Open(index.Config{
		Backend:    cfg.IndexBackend,
		Dir:        filepath.Join(cfg.DataDir, "index"),
		Collection: cfg.Collection,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	manager := kb.NewManager(textChunker, embedder, kb.Config{
		BatchSize:       cfg.Embed.BatchSize,
		LoadConcurrency: cfg.IngestWorkers,
		Separator:       cfg.ContextSeparator,
		MinSimilarity:   cfg.MinSimilarity,
	}, kb.WithLogger(logger), kb.WithMetrics(kb.NewMetrics(registry)))

	generator := answer.NewClient(answer.Config{
		URL:         cfg.Llm.URL,
		Model:       cfg.Llm.Model,
		APIKey:      cfg.Llm.Key,
		MaxTokens:   cfg.Llm.MaxTokens,
		Temperature: cfg.Llm.Temperature,
	}, nil)

	logger.Printf("Embedder: %s, index: %s (%d chunks)", embedder.Name(), cfg.IndexBackend, base.Index().Count())

	return &App{
		cfg:       cfg,
		kb:        base,
		manager:   manager,
		generator: generator,
		registry:  registry,
		logger:    logger,
	}, nil
}

// NewWithDeps собирает приложение из готовых частей
func NewWithDeps(cfg *config.Config, base *kb.KnowledgeBase, manager *kb.Manager, generator answer.Generator) *App {
	return &App{
		cfg:       cfg,
		kb:        base,
		manager:   manager,
		generator: generator,
		registry:  prometheus.NewRegistry(),
		logger:    log.Default(),
	}
}

func newEmbedder(cfg config.Embed, logger *log.Logger) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local", "hashing":
		return embedding.NewHashing(cfg.Dimension), nil
	default:
		remote, err := embedding.NewRemote(embedding.RemoteConfig{
			Provider:          cfg.Provider,
			URL:               cfg.URL,
			Model:             cfg.Model,
			APIKey:            cfg.Key,
			RequestsPerSecond: cfg.RPS,
			Concurrency:       cfg.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		return embedding.WithRetry(remote, cfg.MaxRetries, 0, logger), nil
	}
}

// Init проверяет, что модели Ollama доступны
func (a *App) Init(ctx context.Context) error {
	if !a.cfg.OllamaAutoPull {
		return nil
	}

	if strings.EqualFold(a.cfg.Embed.Provider, embedding.ProviderOllama) {
		if err := ensureOllamaModels(ctx, a.logger, a.cfg.Embed.URL, a.cfg.Embed.Model); err != nil {
			return fmt.Errorf("ollama model check failed: %w", err)
		}
	}

	// без LLM загрузка и поиск всё равно работают
	if base, ok := ollamaBase(a.cfg.Llm.URL); ok {
		if err := ensureOllamaModels(ctx, a.logger, base, a.cfg.Llm.Model); err != nil {
			a.logger.Printf("⚠️ LLM model check failed: %v", err)
		}
	}
	return nil
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.RequestTimeout)
}

func (a *App) IngestFiles(ctx context.Context, uploads []loader.Upload) (kb.IngestReport, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.manager.IngestFiles(ctx, a.kb, uploads)
}

// IngestPaths читает файлы с диска и загружает их
func (a *App) IngestPaths(ctx context.Context, paths []string) (kb.IngestReport, error) {
	var report kb.IngestReport
	uploads := make([]loader.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			report.Failed = append(report.Failed, kb.Failure{SourceID: filepath.Base(path), Err: err})
			continue
		}
		uploads = append(uploads, loader.Upload{Name: filepath.Base(path), Data: data})
	}

	ingested, err := a.IngestFiles(ctx, uploads)
	ingested.Failed = append(report.Failed, ingested.Failed...)
	return ingested, err
}

// AddText загружает текст, введённый вручную
func (a *App) AddText(ctx context.Context, name, text string) (kb.IngestReport, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.manager.Ingest(ctx, a.kb, []domain.Document{loader.Manual(name, text)})
}

func (a *App) Search(ctx context.Context, query string, k int) ([]kb.Result, error) {
	if k <= 0 {
		k = a.cfg.TopK
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.manager.Retrieve(ctx, a.kb, query, k)
}

// Ask находит контекст и просит LLM ответить на вопрос
func (a *App) Ask(ctx context.Context, question string) (Answer, error) {
	if a.kb.Index().Count() == 0 {
		return Answer{Text: NoDocumentsAnswer}, nil
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	results, err := a.manager.Retrieve(ctx, a.kb, question, a.cfg.TopK)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		return Answer{Text: NoContextAnswer}, nil
	}

	text, err := a.generator.Generate(ctx, a.manager.ContextText(results), question)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: results}, nil
}

func (a *App) Stats() kb.Stats {
	return a.manager.Stats(a.kb)
}

func (a *App) Clear(ctx context.Context) error {
	return a.manager.Clear(ctx, a.kb)
}

func (a *App) RemoveDocument(ctx context.Context, sourceID string) (int, error) {
	return a.manager.RemoveDocument(ctx, a.kb, sourceID)
}

// Registry - метрики приложения для /metrics
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) Close() error {
	return a.kb.Close()
}
