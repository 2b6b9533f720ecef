// Package index хранит векторы чанков и ищет ближайшие по косинусу
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"voice_rag/internal/domain"
)

var (
	ErrInvalidK    = errors.New("k must be positive")
	ErrEmptyID     = errors.New("entry id is empty")
	ErrEmptyVector = errors.New("entry vector is empty")
)

// Бэкенды хранилища
const (
	BackendMemory  = "memory"
	BackendChromem = "chromem"
	BackendBolt    = "bolt"
)

// Entry - запись индекса: вектор чанка и его текст
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// SourceID возвращает источник, из которого получен чанк
func (e Entry) SourceID() string {
	return e.Metadata[domain.MetaSourceID]
}

// Hit - результат поиска
type Hit struct {
	Entry
	Score float32
}

// Index - векторный индекс. Add заменяет записи с тем же ID,
// пакет применяется целиком или не применяется вовсе.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Delete(ctx context.Context, ids ...string) error
	Clear(ctx context.Context) error
	Count() int
	// Dimension равен 0, пока индекс пуст после создания или Clear
	Dimension() int
	// Sources - число чанков по каждому source_id
	Sources() map[string]int
	Close() error
}

// Config - где и как хранить индекс
type Config struct {
	Backend    string
	Dir        string
	Collection string
}

// Open открывает индекс выбранного бэкенда
func Open(cfg Config) (Index, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendChromem, "":
		return OpenChromem(cfg.Dir, cfg.Collection)
	case BackendBolt:
		return OpenBolt(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// prepare проверяет пакет до записи и схлопывает повторы ID (побеждает последний)
func prepare(entries []Entry, dimension int) ([]Entry, int, error) {
	pos := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, 0, ErrEmptyID
		}
		if len(e.Vector) == 0 {
			return nil, 0, fmt.Errorf("%w: %s", ErrEmptyVector, e.ID)
		}
		if dimension == 0 {
			dimension = len(e.Vector)
		}
		if len(e.Vector) != dimension {
			return nil, 0, &domain.DimensionMismatchError{Expected: dimension, Actual: len(e.Vector)}
		}
		if i, ok := pos[e.ID]; ok {
			out[i] = e
			continue
		}
		pos[e.ID] = len(out)
		out = append(out, e)
	}
	return out, dimension, nil
}

type candidate struct {
	entry Entry
	seq   uint64
	score float32
}

// rank сортирует по убыванию сходства, при равенстве - по порядку вставки
func rank(cands []candidate, k int) []Hit {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].seq < cands[j].seq
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	hits := make([]Hit, len(cands))
	for i, c := range cands {
		hits[i] = Hit{Entry: cloneEntry(c.entry), Score: c.score}
	}
	return hits
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine с заранее посчитанными нормами; нулевой вектор даёт 0
func cosine(a, b []float32, normA, normB float64) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (normA * normB))
}

func cloneEntry(e Entry) Entry {
	out := Entry{ID: e.ID, Text: e.Text}
	out.Vector = append([]float32(nil), e.Vector...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
