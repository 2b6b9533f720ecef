package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"voice_rag/internal/domain"
)

var errNotUTF8 = errors.New("content is not valid UTF-8 text")

// loadText берёт текст как есть. BOM (UTF-8 или UTF-16) снимается и
// определяет кодировку, без BOM ожидается UTF-8.
func loadText(name string, data []byte, format domain.Format) (domain.Document, error) {
	text, err := decodeText(data)
	if err != nil {
		return domain.Document{}, &domain.LoadError{SourceID: name, Err: err}
	}
	return domain.Document{
		SourceID: name,
		RawText:  text,
		Format:   format,
	}, nil
}

func decodeText(data []byte) (string, error) {
	if !hasUTF16BOM(data) && !utf8.Valid(data) {
		return "", errNotUTF8
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(decoded), nil
}

func hasUTF16BOM(data []byte) bool {
	return len(data) >= 2 && ((data[0] == 0xFE && data[1] == 0xFF) || (data[0] == 0xFF && data[1] == 0xFE))
}
