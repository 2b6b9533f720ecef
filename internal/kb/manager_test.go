package kb

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice_rag/internal/chunker"
	"voice_rag/internal/domain"
	"voice_rag/internal/embedding"
	"voice_rag/internal/index"
	"voice_rag/internal/loader"
)

// stubEmbedder считает вызовы и падает на текстах с failOn
type stubEmbedder struct {
	inner  *embedding.Hashing
	failOn string
	calls  int32
}

func newStub(dim int) *stubEmbedder {
	return &stubEmbedder{inner: embedding.NewHashing(dim)}
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return s.inner.Dimension() }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, &domain.EmbeddingError{Err: errors.New("provider unavailable")}
	}
	return s.inner.Embed(ctx, text)
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// vecEmbedder отдаёт один и тот же вектор для любого текста
type vecEmbedder struct{ vec []float32 }

func (v *vecEmbedder) Name() string   { return "vec" }
func (v *vecEmbedder) Dimension() int { return len(v.vec) }

func (v *vecEmbedder) Embed(context.Context, string) ([]float32, error) {
	return append([]float32(nil), v.vec...), nil
}

func (v *vecEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = v.Embed(ctx, texts[i])
	}
	return out, nil
}

// gatedIndex задерживает первый вызов Sources до закрытия resume
type gatedIndex struct {
	index.Index
	paused  atomic.Bool
	reached chan struct{}
	resume  chan struct{}

	mu      sync.Mutex
	lastAdd int
}

func newGatedIndex() *gatedIndex {
	return &gatedIndex{
		Index:   index.NewMemory(),
		reached: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (g *gatedIndex) Sources() map[string]int {
	if g.paused.CompareAndSwap(false, true) {
		close(g.reached)
		<-g.resume
	}
	return g.Index.Sources()
}

func (g *gatedIndex) Add(ctx context.Context, entries []index.Entry) error {
	if err := g.Index.Add(ctx, entries); err != nil {
		return err
	}
	g.mu.Lock()
	g.lastAdd = len(entries)
	g.mu.Unlock()
	return nil
}

// cancelAfter - контекст, который отменяется после n вызовов Err
type cancelAfter struct {
	context.Context
	left atomic.Int32
}

func newCancelAfter(n int32) *cancelAfter {
	c := &cancelAfter{Context: context.Background()}
	c.left.Store(n)
	return c
}

func (c *cancelAfter) Err() error {
	if c.left.Add(-1) >= 0 {
		return nil
	}
	return context.Canceled
}

func newManager(t *testing.T, emb embedding.Embedder, cfg Config, opts ...Option) *Manager {
	t.Helper()
	ch, err := chunker.NewTextChunker(chunker.Config{MaxChunkSize: 60, Overlap: 10})
	require.NoError(t, err)
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	return NewManager(ch, emb, cfg, opts...)
}

func newKB() *KnowledgeBase {
	return New("test", index.NewMemory())
}

func doc(source, text string) domain.Document {
	return domain.Document{SourceID: source, RawText: text, Format: domain.FormatTXT}
}

func TestIngestFiles_CorruptFileDoesNotBlockBatch(t *testing.T) {
	m := newManager(t, newStub(64), Config{})
	kb := newKB()

	report, err := m.IngestFiles(context.Background(), kb, []loader.Upload{
		{Name: "good.txt", Data: []byte("The sky is blue. Grass is green.")},
		{Name: "broken.pdf", Data: []byte("not a pdf at all")},
		{Name: "image.png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsAdded)
	assert.Equal(t, 1, report.ChunksAdded)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "broken.pdf", report.Failed[0].SourceID)
	assert.Equal(t, "image.png", report.Failed[1].SourceID)

	var unsupported *domain.UnsupportedFormatError
	assert.ErrorAs(t, report.Failed[1].Err, &unsupported)
	assert.Equal(t, 1, kb.Index().Count())
}

func TestRetrieve_EmptyKBSkipsEmbedder(t *testing.T) {
	emb := newStub(64)
	m := newManager(t, emb, Config{})

	results, err := m.Retrieve(context.Background(), newKB(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(0), atomic.LoadInt32(&emb.calls))
}

func TestRetrieve_FindsRelevantChunk(t *testing.T) {
	m := newManager(t, embedding.NewHashing(256), Config{})
	kb := newKB()
	ctx := context.Background()

	_, err := m.Ingest(ctx, kb, []domain.Document{
		doc("sky.txt", "The sky is blue."),
		doc("grass.txt", "Grass is green."),
	})
	require.NoError(t, err)

	results, err := m.Retrieve(ctx, kb, "what color is the sky", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "The sky is blue.", results[0].Chunk.Text)
	assert.Equal(t, "sky.txt", results[0].Chunk.SourceID())
	assert.Equal(t, 0, results[0].Chunk.SequenceIndex)
}

func TestRetrieve_Threshold(t *testing.T) {
	m := newManager(t, embedding.NewHashing(256), Config{MinSimilarity: 0.99})
	kb := newKB()
	ctx := context.Background()

	_, err := m.Ingest(ctx, kb, []domain.Document{doc("a", "alpha beta gamma"), doc("b", "delta epsilon")})
	require.NoError(t, err)

	results, err := m.Retrieve(ctx, kb, "alpha beta gamma", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.SourceID())
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	results, err = m.Retrieve(ctx, kb, "zeta", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_NegativeScores(t *testing.T) {
	ctx := context.Background()
	kb := newKB()
	require.NoError(t, kb.Index().Add(ctx, []index.Entry{
		{ID: "same", Vector: []float32{1, 0}, Text: "same", Metadata: map[string]string{domain.MetaSourceID: "a"}},
		{ID: "opposite", Vector: []float32{-1, 0}, Text: "opposite", Metadata: map[string]string{domain.MetaSourceID: "b"}},
	}))
	emb := &vecEmbedder{vec: []float32{1, 0}}

	all, err := newManager(t, emb, Config{MinSimilarity: NoThreshold}).Retrieve(ctx, kb, "query", 5)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "opposite", all[1].Chunk.Text)
	assert.InDelta(t, -1.0, all[1].Score, 1e-6)

	// нулевой порог отсекает отрицательные оценки
	positive, err := newManager(t, emb, Config{}).Retrieve(ctx, kb, "query", 5)
	require.NoError(t, err)
	require.Len(t, positive, 1)
	assert.Equal(t, "same", positive[0].Chunk.Text)
}

func TestRetrieve_InvalidInput(t *testing.T) {
	m := newManager(t, newStub(16), Config{})
	kb := newKB()

	_, err := m.Retrieve(context.Background(), kb, "   ", 3)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	_, err = m.Retrieve(context.Background(), kb, "query", 0)
	assert.ErrorIs(t, err, index.ErrInvalidK)
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	emb := newStub(16)
	m := newManager(t, emb, Config{})
	kb := newKB()
	ctx := context.Background()

	_, err := m.Ingest(ctx, kb, []domain.Document{doc("a", "content")})
	require.NoError(t, err)

	emb.failOn = "question"
	_, err = m.Retrieve(ctx, kb, "question", 3)
	var embErr *domain.EmbeddingError
	assert.ErrorAs(t, err, &embErr)
}

func TestIngest_IdempotentReingest(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	kb := newKB()
	ctx := context.Background()
	text := strings.Repeat("Sentence number one. ", 20)

	first, err := m.Ingest(ctx, kb, []domain.Document{doc("doc.txt", text)})
	require.NoError(t, err)
	count := kb.Index().Count()
	require.Equal(t, first.ChunksAdded, count)

	_, err = m.Ingest(ctx, kb, []domain.Document{doc("doc.txt", text)})
	require.NoError(t, err)
	assert.Equal(t, count, kb.Index().Count())
}

func TestIngest_ShorterDocumentDropsStaleChunks(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	kb := newKB()
	ctx := context.Background()

	long, err := m.Ingest(ctx, kb, []domain.Document{doc("doc.txt", strings.Repeat("Long text goes here. ", 30))})
	require.NoError(t, err)
	require.Greater(t, long.ChunksAdded, 2)

	short, err := m.Ingest(ctx, kb, []domain.Document{doc("doc.txt", "Now it is short.")})
	require.NoError(t, err)
	assert.Equal(t, 1, short.ChunksAdded)
	assert.Equal(t, 1, kb.Index().Count())
	assert.Equal(t, map[string]int{"doc.txt": 1}, kb.Index().Sources())
}

func TestIngest_ConcurrentReingestKeepsOneVersion(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	gate := newGatedIndex()
	kb := New("test", gate)
	ctx := context.Background()

	short := doc("a.txt", "Short version.")
	long := doc("a.txt", strings.Repeat("Long version sentence. ", 40))

	shortDone := make(chan error, 1)
	go func() {
		_, err := m.Ingest(ctx, kb, []domain.Document{short})
		shortDone <- err
	}()
	<-gate.reached

	longDone := make(chan error, 1)
	go func() {
		_, err := m.Ingest(ctx, kb, []domain.Document{long})
		longDone <- err
	}()

	var longErr error
	longFinished := false
	select {
	case longErr = <-longDone:
		longFinished = true
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.resume)
	require.NoError(t, <-shortDone)
	if !longFinished {
		longErr = <-longDone
	}
	require.NoError(t, longErr)

	// в индексе ровно та версия, что записана последней
	gate.mu.Lock()
	last := gate.lastAdd
	gate.mu.Unlock()
	assert.Equal(t, map[string]int{"a.txt": last}, kb.Index().Sources())
	assert.Equal(t, last, kb.Index().Count())
}

func TestIngest_ConcurrentDistinctSources(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	kb := newKB()
	ctx := context.Background()

	version := func(source string, n int) domain.Document {
		return doc(source, strings.Repeat("Sentence about "+source+". ", 1+n%4*5))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := string(rune('a' + i))
			for j := 0; j < 5; j++ {
				_, err := m.Ingest(ctx, kb, []domain.Document{version(source, i+j)})
				assert.NoError(t, err)
				_, err = m.Retrieve(ctx, kb, "sentence", 3)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	sources := kb.Index().Sources()
	require.Len(t, sources, 8)
	total := 0
	for i := 0; i < 8; i++ {
		source := string(rune('a' + i))
		chunks, err := m.chunker.Chunk(version(source, i+4))
		require.NoError(t, err)
		assert.Equal(t, len(chunks), sources[source], source)
		total += len(chunks)
	}
	assert.Equal(t, total, kb.Index().Count())
}

func TestIngestFiles_CancelledAfterLoadKeepsFailures(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	kb := newKB()
	// две проверки в загрузчиках проходят, дальше контекст отменён
	ctx := newCancelAfter(2)

	report, err := m.IngestFiles(ctx, kb, []loader.Upload{
		{Name: "broken.pdf", Data: []byte("not a pdf at all")},
		{Name: "good.txt", Data: []byte("Readable text.")},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.DocumentsAdded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "broken.pdf", report.Failed[0].SourceID)
	assert.Equal(t, 0, kb.Index().Count())
}

func TestIngest_FailureIsPerDocument(t *testing.T) {
	emb := newStub(32)
	emb.failOn = "poison"
	m := newManager(t, emb, Config{})
	kb := newKB()

	report, err := m.Ingest(context.Background(), kb, []domain.Document{
		doc("bad", "this one has poison inside"),
		doc("good", "this one is fine"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsAdded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "bad", report.Failed[0].SourceID)
	assert.True(t, domain.IsRetryable(report.Failed[0].Err))
	// от упавшего документа в индексе ничего нет
	assert.Equal(t, map[string]int{"good": 1}, kb.Index().Sources())
}

func TestIngest_DuplicateSource(t *testing.T) {
	m := newManager(t, newStub(32), Config{})
	kb := newKB()

	report, err := m.Ingest(context.Background(), kb, []domain.Document{
		doc("same", "first version"),
		doc("same", "second version"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsAdded)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, ErrDuplicateSource)
}

func TestIngest_DimensionMismatchAborts(t *testing.T) {
	kb := newKB()
	ctx := context.Background()

	_, err := newManager(t, newStub(32), Config{}).Ingest(ctx, kb, []domain.Document{doc("a", "text")})
	require.NoError(t, err)

	other := newManager(t, newStub(16), Config{})
	report, err := other.Ingest(ctx, kb, []domain.Document{doc("b", "text"), doc("c", "more")})

	var dimErr *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 0, report.DocumentsAdded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b", report.Failed[0].SourceID)
	assert.Equal(t, 1, kb.Index().Count())
}

func TestIngest_CancelledContext(t *testing.T) {
	m := newManager(t, newStub(16), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := m.Ingest(ctx, newKB(), []domain.Document{doc("a", "text")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.DocumentsAdded)
}

func TestIngest_EmptyDocument(t *testing.T) {
	m := newManager(t, newStub(16), Config{})
	kb := newKB()

	report, err := m.Ingest(context.Background(), kb, []domain.Document{doc("empty", "")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsAdded)
	assert.Equal(t, 0, report.ChunksAdded)
	assert.Equal(t, 0, kb.Index().Count())
}

func TestClearAndStats(t *testing.T) {
	m := newManager(t, newStub(16), Config{})
	kb := newKB()
	ctx := context.Background()

	_, err := m.Ingest(ctx, kb, []domain.Document{doc("a", "alpha"), doc("b", "beta")})
	require.NoError(t, err)

	stats := m.Stats(kb)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, stats.Sources)

	require.NoError(t, m.Clear(ctx, kb))
	assert.Equal(t, Stats{Sources: map[string]int{}}, m.Stats(kb))

	results, err := m.Retrieve(ctx, kb, "alpha", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemoveDocument(t *testing.T) {
	m := newManager(t, newStub(16), Config{})
	kb := newKB()
	ctx := context.Background()

	_, err := m.Ingest(ctx, kb, []domain.Document{
		doc("long", strings.Repeat("Many words in here. ", 10)),
		doc("keep", "stays"),
	})
	require.NoError(t, err)
	before := kb.Index().Sources()["long"]
	require.Greater(t, before, 1)

	removed, err := m.RemoveDocument(ctx, kb, "long")
	require.NoError(t, err)
	assert.Equal(t, before, removed)
	assert.Equal(t, map[string]int{"keep": 1}, kb.Index().Sources())

	removed, err = m.RemoveDocument(ctx, kb, "missing")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestContextText(t *testing.T) {
	results := []Result{
		{Chunk: domain.Chunk{Text: "first"}},
		{Chunk: domain.Chunk{Text: "second"}},
	}
	assert.Equal(t, "first\n\nsecond", newManager(t, newStub(4), Config{}).ContextText(results))
	assert.Equal(t, "first---second", newManager(t, newStub(4), Config{Separator: "---"}).ContextText(results))
	assert.Empty(t, ContextText(nil, "\n"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := newManager(t, newStub(16), Config{}, WithMetrics(metrics))
	kb := newKB()
	ctx := context.Background()

	_, err := m.IngestFiles(ctx, kb, []loader.Upload{
		{Name: "a.txt", Data: []byte("alpha")},
		{Name: "b.xlsx", Data: []byte("x")},
	})
	require.NoError(t, err)
	_, err = m.Retrieve(ctx, kb, "alpha", 1)
	require.NoError(t, err)

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["voice_rag_documents_ingested_total"])
	assert.Equal(t, 1.0, values["voice_rag_documents_failed_total"])
	assert.Equal(t, 1.0, values["voice_rag_chunks_added_total"])
	assert.Equal(t, 1.0, values["voice_rag_retrieve_duration_seconds"])
}

// gather возвращает значения счётчиков и число наблюдений гистограмм
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64, len(families))
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				values[f.GetName()] += float64(h.GetSampleCount())
			}
		}
	}
	return values
}

func TestFailureJSON(t *testing.T) {
	data, err := Failure{SourceID: "x.pdf", Err: errors.New("boom")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"source_id":"x.pdf","error":"boom"}`, string(data))
}
