package chunker

import (
	"strconv"
	"strings"
	"unicode"

	"voice_rag/internal/domain"
)

// boundary проверяет, можно ли резать текст перед позицией i
type boundary func(runes []rune, i int) bool

// Уровни границ от наиболее предпочтительной к наименее
var boundaries = []boundary{
	isParagraphBreak,
	isLineBreak,
	isSentenceEnd,
	isWordGap,
}

// isParagraphBreak - позиция сразу после пустой строки
func isParagraphBreak(runes []rune, i int) bool {
	if i < 2 || runes[i-1] != '\n' {
		return false
	}
	if runes[i-2] == '\n' {
		return true
	}
	return i >= 3 && runes[i-2] == '\r' && runes[i-3] == '\n'
}

func isLineBreak(runes []rune, i int) bool {
	return i >= 1 && runes[i-1] == '\n'
}

// isSentenceEnd - позиция после пробела, следующего за концом предложения
func isSentenceEnd(runes []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(runes[i-1]) {
		return false
	}
	return strings.ContainsRune(".!?…", runes[i-2])
}

func isWordGap(runes []rune, i int) bool {
	return i >= 1 && unicode.IsSpace(runes[i-1])
}

// CreateChunk собирает чанк с метаданными источника
func CreateChunk(doc domain.Document, seq int, span Span, text string) domain.Chunk {
	metadata := map[string]string{
		domain.MetaSourceID:      doc.SourceID,
		domain.MetaFormat:        string(doc.Format),
		domain.MetaSequenceIndex: strconv.Itoa(seq),
		domain.MetaStartOffset:   strconv.Itoa(span.Start),
		domain.MetaEndOffset:     strconv.Itoa(span.End),
	}
	if page := doc.PageAt(span.Start); page > 0 {
		metadata[domain.MetaPage] = strconv.Itoa(page)
	}

	return domain.Chunk{
		ID:            domain.ChunkID(doc.SourceID, seq),
		Text:          text,
		SequenceIndex: seq,
		Metadata:      metadata,
	}
}

// Reconstruct склеивает тексты чанков, убирая overlap. Обратная операция к Split.
func Reconstruct(texts []string, overlap int) string {
	var buf strings.Builder
	for i, t := range texts {
		if i == 0 {
			buf.WriteString(t)
			continue
		}
		runes := []rune(t)
		if overlap < len(runes) {
			buf.WriteString(string(runes[overlap:]))
		}
	}
	return buf.String()
}
