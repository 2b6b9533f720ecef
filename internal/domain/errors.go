package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyQuery возвращается при пустом поисковом запросе
var ErrEmptyQuery = errors.New("empty query")

// UnsupportedFormatError - формат файла не поддерживается
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %q", e.Format)
}

// LoadError - файл повреждён или не читается. Не прерывает пакетную загрузку.
type LoadError struct {
	SourceID string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.SourceID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EmbeddingError - временная ошибка эмбеддера, можно повторить
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionMismatchError - ошибка конфигурации: смешаны модели эмбеддингов
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d, got %d", e.Expected, e.Actual)
}

// TimeoutError - истёк бюджет времени вызывающей стороны
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// GenerationError - генератор ответа не смог ответить
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("could not generate an answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ContextError превращает ошибку отмены контекста в TimeoutError.
// Возвращает nil, если контекст ещё жив.
func ContextError(ctx context.Context, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

// IsRetryable сообщает, имеет ли смысл повторить операцию
func IsRetryable(err error) bool {
	var embErr *EmbeddingError
	var timeoutErr *TimeoutError
	return errors.As(err, &embErr) || errors.As(err, &timeoutErr)
}
