package chunker

import (
	"voice_rag/internal/domain"
)

// TextChunker разбивает plain text по размеру с overlap, стараясь резать
// по абзацам, строкам, предложениям и словам
type TextChunker struct {
	config Config
}

// NewTextChunker создаёт новый chunker
func NewTextChunker(config Config) (*TextChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TextChunker{config: config}, nil
}

func (s *TextChunker) Name() string {
	return "recursive"
}

// Config возвращает параметры разбиения
func (s *TextChunker) Config() Config {
	return s.config
}

func (s *TextChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	runes := []rune(doc.RawText)
	spans := s.split(runes)

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, CreateChunk(doc, i, span, string(runes[span.Start:span.End])))
	}
	return chunks, nil
}

// Split возвращает границы чанков для текста
func (s *TextChunker) Split(text string) []Span {
	return s.split([]rune(text))
}

// split режет текст так, что каждый следующий чанк начинается за Overlap
// символов до конца предыдущего. Концы чанков выбираются в окне
// (start+Overlap, start+MaxChunkSize], поэтому start строго растёт.
func (s *TextChunker) split(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for {
		limit := start + s.config.MaxChunkSize
		if limit >= n {
			spans = append(spans, Span{Start: start, End: n})
			return spans
		}

		end := s.findBoundary(runes, start+s.config.Overlap, limit)
		spans = append(spans, Span{Start: start, End: end})
		start = end - s.config.Overlap
	}
}

// findBoundary ищет последнюю границу наивысшего уровня в (lo, hi].
// Если естественной границы нет, режет ровно по hi.
func (s *TextChunker) findBoundary(runes []rune, lo, hi int) int {
	for _, isBoundary := range boundaries {
		for i := hi; i > lo; i-- {
			if isBoundary(runes, i) {
				return i
			}
		}
	}
	return hi
}
