package domain

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
)

// Format - формат исходного документа
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatTXT      Format = "txt"
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "md"
	FormatManual   Format = "manual"
)

// Ключи метаданных чанка
const (
	MetaSourceID      = "source_id"
	MetaFormat        = "format"
	MetaSequenceIndex = "sequence_index"
	MetaStartOffset   = "start_offset"
	MetaEndOffset     = "end_offset"
	MetaPage          = "page"
)

// ParseFormat нормализует тег формата
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "pdf":
		return FormatPDF, nil
	case "txt", "text":
		return FormatTXT, nil
	case "docx":
		return FormatDOCX, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "manual":
		return FormatManual, nil
	default:
		return "", &UnsupportedFormatError{Format: s}
	}
}

// FormatFromFilename определяет формат по расширению файла
func FormatFromFilename(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", &UnsupportedFormatError{Format: name}
	}
	return ParseFormat(ext)
}

// PageSpan - диапазон символов (в рунах) одной страницы в RawText
type PageSpan struct {
	Number int
	Start  int
	End    int
}

// Document - загруженный документ до разбиения на чанки
type Document struct {
	SourceID string
	RawText  string
	Format   Format
	Pages    []PageSpan // только для форматов со страницами
}

// PageAt возвращает номер страницы, содержащей смещение offset, или 0
func (d Document) PageAt(offset int) int {
	for _, p := range d.Pages {
		if offset >= p.Start && offset < p.End {
			return p.Number
		}
	}
	if n := len(d.Pages); n > 0 && offset >= d.Pages[n-1].End {
		return d.Pages[n-1].Number
	}
	return 0
}

// Chunk - фрагмент документа, единица индексации и поиска
type Chunk struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	SequenceIndex int               `json:"sequence_index"`
	Metadata      map[string]string `json:"metadata"`
}

// SourceID возвращает идентификатор исходного документа
func (c Chunk) SourceID() string {
	return c.Metadata[MetaSourceID]
}

// ChunkID стабильный идентификатор чанка по источнику и порядковому номеру
func ChunkID(sourceID string, sequenceIndex int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceID, sequenceIndex)))
	return fmt.Sprintf("%x", hash[:8])
}
