package loader

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"voice_rag/internal/domain"
)

// Разделитель страниц в итоговом тексте: chunker считает его границей абзаца
const pageSeparator = "\n\n"

// loadPDF извлекает текст постранично
func loadPDF(name string, data []byte) (doc domain.Document, err error) {
	// pdf парсер паникует на битых файлах
	defer func() {
		if r := recover(); r != nil {
			doc = domain.Document{}
			err = &domain.LoadError{SourceID: name, Err: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Document{}, &domain.LoadError{SourceID: name, Err: err}
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Document{}, &domain.LoadError{SourceID: name, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, text)
	}

	return joinPages(name, pages), nil
}

// joinPages склеивает непустые страницы и запоминает их диапазоны в рунах
func joinPages(name string, pages []string) domain.Document {
	var buf strings.Builder
	spans := make([]domain.PageSpan, 0, len(pages))
	offset := 0
	sepLen := utf8.RuneCountInString(pageSeparator)

	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(pageSeparator)
			offset += sepLen
		}
		n := utf8.RuneCountInString(text)
		spans = append(spans, domain.PageSpan{Number: i + 1, Start: offset, End: offset + n})
		buf.WriteString(text)
		offset += n
	}

	return domain.Document{
		SourceID: name,
		RawText:  buf.String(),
		Format:   domain.FormatPDF,
		Pages:    spans,
	}
}
