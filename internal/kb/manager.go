package kb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"voice_rag/internal/chunker"
	"voice_rag/internal/domain"
	"voice_rag/internal/embedding"
	"voice_rag/internal/index"
	"voice_rag/internal/loader"
)

// Значения по умолчанию
const (
	DefaultBatchSize       = 32
	DefaultLoadConcurrency = 4
	DefaultSeparator       = "\n\n"
)

type Config struct {
	// BatchSize - сколько чанков отправлять эмбеддеру за раз
	BatchSize int
	// LoadConcurrency - сколько файлов разбирать параллельно
	LoadConcurrency int
	// Separator между чанками в контексте для генератора
	Separator string
	// MinSimilarity - порог отсечения результатов поиска.
	// NaN (NoThreshold) отключает фильтр, 0 отсекает отрицательные оценки.
	MinSimilarity float32
}

// NoThreshold - значение MinSimilarity без отсечения
var NoThreshold = float32(math.NaN())

// Manager - операции над базой знаний: загрузка, поиск, очистка
type Manager struct {
	chunker  chunker.Chunker
	embedder embedding.Embedder
	cfg      Config
	logger   *log.Logger
	metrics  *Metrics

	// writeMu держит Sources -> Add -> Delete одной операцией
	writeMu sync.Mutex
}

type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func NewManager(ch chunker.Chunker, emb embedding.Embedder, cfg Config, opts ...Option) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = DefaultLoadConcurrency
	}
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	m := &Manager{chunker: ch, embedder: emb, cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}

// Ingest добавляет документы в базу. Ошибка одного документа попадает
// в отчёт и не мешает остальным; несовпадение размерности и отмена
// контекста прерывают пакет.
func (m *Manager) Ingest(ctx context.Context, kb *KnowledgeBase, docs []domain.Document) (IngestReport, error) {
	start := time.Now()
	var report IngestReport
	defer func() { m.metrics.observeIngest(report, time.Since(start)) }()

	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := domain.ContextError(ctx, "ingest"); err != nil {
			return report, err
		}

		if _, dup := seen[doc.SourceID]; dup {
			report.fail(doc.SourceID, ErrDuplicateSource)
			continue
		}
		seen[doc.SourceID] = struct{}{}

		n, err := m.ingestDocument(ctx, kb, doc)
		if err != nil {
			report.fail(doc.SourceID, err)
			m.logger.Printf("❌ %s: %v", doc.SourceID, err)

			var dimErr *domain.DimensionMismatchError
			if errors.As(err, &dimErr) || ctx.Err() != nil {
				return report, err
			}
			continue
		}

		report.ChunksAdded += n
		report.DocumentsAdded++
		m.logger.Printf("📦 %s: %d chunks indexed", doc.SourceID, n)
	}
	return report, nil
}

func (m *Manager) ingestDocument(ctx context.Context, kb *KnowledgeBase, doc domain.Document) (int, error) {
	chunks, err := m.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += m.cfg.BatchSize {
		end := min(start+m.cfg.BatchSize, len(texts))
		batch, err := m.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return 0, err
		}
		vectors = append(vectors, batch...)
	}

	entries := make([]index.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = index.Entry{
			ID:       ch.ID,
			Vector:   vectors[i],
			Text:     ch.Text,
			Metadata: ch.Metadata,
		}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	idx := kb.index
	previous := idx.Sources()[doc.SourceID]

	if err := idx.Add(ctx, entries); err != nil {
		return 0, err
	}

	// документ стал короче - удаляем хвост от прошлой версии
	if previous > len(chunks) {
		stale := make([]string, 0, previous-len(chunks))
		for i := len(chunks); i < previous; i++ {
			stale = append(stale, domain.ChunkID(doc.SourceID, i))
		}
		if err := idx.Delete(ctx, stale...); err != nil {
			return 0, fmt.Errorf("remove stale chunks: %w", err)
		}
		m.logger.Printf("🧹 %s: removed %d stale chunks", doc.SourceID, len(stale))
	}

	return len(chunks), nil
}

// IngestFiles разбирает файлы параллельно и загружает то, что удалось прочитать
func (m *Manager) IngestFiles(ctx context.Context, kb *KnowledgeBase, uploads []loader.Upload) (IngestReport, error) {
	type loaded struct {
		doc domain.Document
		err error
	}

	results := make([]loaded, len(uploads))
	sem := make(chan struct{}, m.cfg.LoadConcurrency)
	var wg sync.WaitGroup

	for i, u := range uploads {
		wg.Add(1)
		go func(idx int, u loader.Upload) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = loaded{err: ctx.Err()}
				return
			}
			doc, err := loader.Load(u)
			results[idx] = loaded{doc: doc, err: err}
		}(i, u)
	}

	wg.Wait()

	var report IngestReport
	docs := make([]domain.Document, 0, len(uploads))
	for i, r := range results {
		if r.err != nil {
			if ctx.Err() != nil && errors.Is(r.err, ctx.Err()) {
				continue
			}
			report.fail(uploads[i].Name, r.err)
			m.logger.Printf("⚠️ Skipping %s: %v", uploads[i].Name, r.err)
			continue
		}
		m.logger.Printf("📄 %s loaded: %d characters", r.doc.SourceID, len([]rune(r.doc.RawText)))
		docs = append(docs, r.doc)
	}
	m.metrics.observeLoadFailures(len(report.Failed))

	if err := domain.ContextError(ctx, "load files"); err != nil {
		return report, err
	}

	ingested, err := m.Ingest(ctx, kb, docs)
	report.merge(ingested)
	return report, err
}

// Retrieve ищет k ближайших чанков. Пустой результат - не ошибка.
func (m *Manager) Retrieve(ctx context.Context, kb *KnowledgeBase, query string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	idx := kb.index
	if idx.Count() == 0 {
		return nil, nil
	}

	start := time.Now()
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := idx.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, h := range hits {
		if !math.IsNaN(float64(m.cfg.MinSimilarity)) && h.Score < m.cfg.MinSimilarity {
			continue
		}
		results = append(results, Result{
			Chunk: domain.Chunk{
				ID:            h.ID,
				Text:          h.Text,
				SequenceIndex: sequenceIndex(h.Metadata),
				Metadata:      h.Metadata,
			},
			Score: h.Score,
		})
	}

	m.metrics.observeRetrieve(len(results), time.Since(start))
	return results, nil
}

// ContextText склеивает найденные чанки настроенным разделителем
func (m *Manager) ContextText(results []Result) string {
	return ContextText(results, m.cfg.Separator)
}

// Clear удаляет всё содержимое базы, размерность сбрасывается
func (m *Manager) Clear(ctx context.Context, kb *KnowledgeBase) error {
	if err := kb.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear knowledge base: %w", err)
	}
	m.logger.Printf("🗑️ Knowledge base %s cleared", kb.Name)
	return nil
}

// RemoveDocument удаляет все чанки документа и возвращает их число
func (m *Manager) RemoveDocument(ctx context.Context, kb *KnowledgeBase, sourceID string) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	idx := kb.index
	n := idx.Sources()[sourceID]
	if n == 0 {
		return 0, nil
	}

	ids := make([]string, n)
	for i := range ids {
		ids[i] = domain.ChunkID(sourceID, i)
	}
	if err := idx.Delete(ctx, ids...); err != nil {
		return 0, fmt.Errorf("remove %s: %w", sourceID, err)
	}

	if left := idx.Sources()[sourceID]; left > 0 {
		m.logger.Printf("⚠️ %s: %d chunks left after removal", sourceID, left)
		return n - left, nil
	}
	return n, nil
}

func (m *Manager) Stats(kb *KnowledgeBase) Stats {
	sources := kb.index.Sources()
	return Stats{
		DocumentCount: len(sources),
		ChunkCount:    kb.index.Count(),
		Sources:       sources,
	}
}
