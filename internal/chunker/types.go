package chunker

import (
	"errors"
	"fmt"

	"voice_rag/internal/domain"
)

// ErrInvalidConfig - недопустимые размеры чанка или overlap
var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunker - интерфейс для всех типов chunker'ов
type Chunker interface {
	// Chunk разбивает документ на чанки
	Chunk(doc domain.Document) ([]domain.Chunk, error)

	// Name возвращает название chunker'а для логирования
	Name() string
}

// Config содержит общие параметры для chunker'ов
type Config struct {
	MaxChunkSize int // Максимальный размер чанка в символах
	Overlap      int // Размер overlap между чанками
}

// Validate проверяет 0 <= Overlap < MaxChunkSize
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.MaxChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, c.MaxChunkSize, c.Overlap)
	}
	return nil
}

// Span - полуинтервал [Start, End) в рунах исходного текста
type Span struct {
	Start int
	End   int
}
