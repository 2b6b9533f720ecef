// Package loader converts uploaded files into plain-text documents.
package loader

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"voice_rag/internal/domain"
)

// Upload - сырой файл от поверхности загрузки
type Upload struct {
	Name   string
	Data   []byte
	Format domain.Format // пустой формат определяется по расширению
}

// Load извлекает текст из файла. Ошибки разбора возвращаются как
// *domain.LoadError, неизвестный формат как *domain.UnsupportedFormatError.
func Load(u Upload) (domain.Document, error) {
	format := u.Format
	if format == "" {
		f, err := domain.FormatFromFilename(u.Name)
		if err != nil {
			return domain.Document{}, err
		}
		format = f
	}

	var (
		doc domain.Document
		err error
	)
	switch format {
	case domain.FormatPDF:
		doc, err = loadPDF(u.Name, u.Data)
	case domain.FormatDOCX:
		doc, err = loadDOCX(u.Name, u.Data)
	case domain.FormatTXT, domain.FormatManual:
		doc, err = loadText(u.Name, u.Data, format)
	case domain.FormatMarkdown:
		doc, err = loadMarkdown(u.Name, u.Data)
	default:
		return domain.Document{}, &domain.UnsupportedFormatError{Format: string(format)}
	}
	if err != nil {
		var loadErr *domain.LoadError
		if errors.As(err, &loadErr) {
			return domain.Document{}, err
		}
		return domain.Document{}, &domain.LoadError{SourceID: u.Name, Err: err}
	}
	return doc, nil
}

// Manual создаёт документ из текста, введённого вручную.
// Без имени документ получает уникальный идентификатор.
func Manual(name, text string) domain.Document {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "manual-" + uuid.New().String()
	}
	return domain.Document{
		SourceID: name,
		RawText:  text,
		Format:   domain.FormatManual,
	}
}
