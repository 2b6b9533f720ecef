package index

import (
	"context"
	"sync"

	"voice_rag/internal/domain"
)

type record struct {
	Entry
	seq  uint64
	norm float64
}

// journal сохраняет изменения до того, как они станут видны читателям
type journal interface {
	putRecords(records []*record, dimension int, nextSeq uint64) error
	deleteIDs(ids []string) error
	reset() error
	close() error
}

// Memory - индекс в памяти. Точный перебор, писатели сериализованы.
type Memory struct {
	writeMu sync.Mutex
	mu      sync.RWMutex

	records   map[string]*record
	nextSeq   uint64
	dimension int

	journal journal
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*record)}
}

func (m *Memory) Add(ctx context.Context, entries []Entry) error {
	if err := domain.ContextError(ctx, "index add"); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	batch, dimension, err := prepare(entries, m.dimension)
	if err != nil || len(batch) == 0 {
		return err
	}

	// под writeMu карту меняем только мы, читать можно без mu
	next := m.nextSeq
	records := make([]*record, len(batch))
	for i, e := range batch {
		seq := next
		if old, ok := m.records[e.ID]; ok {
			seq = old.seq
		} else {
			next++
		}
		records[i] = &record{Entry: cloneEntry(e), seq: seq, norm: vectorNorm(e.Vector)}
	}

	if m.journal != nil {
		if err := m.journal.putRecords(records, dimension, next); err != nil {
			return err
		}
	}

	m.mu.Lock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	m.nextSeq = next
	m.dimension = dimension
	m.mu.Unlock()
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := domain.ContextError(ctx, "index search"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return nil, nil
	}
	if len(query) != m.dimension {
		return nil, &domain.DimensionMismatchError{Expected: m.dimension, Actual: len(query)}
	}

	queryNorm := vectorNorm(query)
	cands := make([]candidate, 0, len(m.records))
	for _, r := range m.records {
		cands = append(cands, candidate{
			entry: r.Entry,
			seq:   r.seq,
			score: cosine(query, r.Vector, queryNorm, r.norm),
		})
	}
	return rank(cands, k), nil
}

func (m *Memory) Delete(ctx context.Context, ids ...string) error {
	if err := domain.ContextError(ctx, "index delete"); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}

	if m.journal != nil {
		if err := m.journal.deleteIDs(present); err != nil {
			return err
		}
	}

	m.mu.Lock()
	for _, id := range present {
		delete(m.records, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := domain.ContextError(ctx, "index clear"); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.journal != nil {
		if err := m.journal.reset(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.records = make(map[string]*record)
	m.nextSeq = 0
	m.dimension = 0
	m.mu.Unlock()
	return nil
}

func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

func (m *Memory) Sources() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make(map[string]int)
	for _, r := range m.records {
		sources[r.SourceID()]++
	}
	return sources
}

func (m *Memory) Close() error {
	if m.journal != nil {
		return m.journal.close()
	}
	return nil
}

// restore загружает сохранённое состояние без записи в журнал
func (m *Memory) restore(records []*record, dimension int, nextSeq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.norm = vectorNorm(r.Vector)
		m.records[r.ID] = r
		if r.seq >= nextSeq {
			nextSeq = r.seq + 1
		}
	}
	m.dimension = dimension
	m.nextSeq = nextSeq
}
