package kb

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"voice_rag/internal/domain"
)

// ErrDuplicateSource - документ с таким source_id уже есть в этом пакете
var ErrDuplicateSource = errors.New("duplicate source id in batch")

// Failure - документ, который не попал в базу
type Failure struct {
	SourceID string
	Err      error
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SourceID string `json:"source_id"`
		Error    string `json:"error"`
	}{f.SourceID, f.Err.Error()})
}

// IngestReport - итог пакетной загрузки
type IngestReport struct {
	ChunksAdded    int       `json:"chunks_added"`
	DocumentsAdded int       `json:"documents_added"`
	Failed         []Failure `json:"documents_failed"`
}

func (r *IngestReport) fail(sourceID string, err error) {
	r.Failed = append(r.Failed, Failure{SourceID: sourceID, Err: err})
}

func (r *IngestReport) merge(other IngestReport) {
	r.ChunksAdded += other.ChunksAdded
	r.DocumentsAdded += other.DocumentsAdded
	r.Failed = append(r.Failed, other.Failed...)
}

// Result - найденный чанк и его сходство с запросом
type Result struct {
	Chunk domain.Chunk `json:"chunk"`
	Score float32      `json:"score"`
}

// Stats - сводка по базе знаний
type Stats struct {
	DocumentCount int            `json:"document_count"`
	ChunkCount    int            `json:"chunk_count"`
	Sources       map[string]int `json:"sources"`
}

// ContextText склеивает тексты чанков для генератора ответа
func ContextText(results []Result, separator string) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return strings.Join(texts, separator)
}

func sequenceIndex(metadata map[string]string) int {
	n, err := strconv.Atoi(metadata[domain.MetaSequenceIndex])
	if err != nil {
		return 0
	}
	return n
}
