package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"pdf":      FormatPDF,
		".PDF":     FormatPDF,
		"text":     FormatTXT,
		" txt ":    FormatTXT,
		"docx":     FormatDOCX,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		"manual":   FormatManual,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xlsx")
	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xlsx", unsupported.Format)
}

func TestFormatFromFilename(t *testing.T) {
	f, err := FormatFromFilename("Report.Final.DOCX")
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, f)

	_, err = FormatFromFilename("Makefile")
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestPageAt(t *testing.T) {
	doc := Document{Pages: []PageSpan{{Number: 1, Start: 0, End: 10}, {Number: 2, Start: 12, End: 20}}}

	assert.Equal(t, 1, doc.PageAt(0))
	assert.Equal(t, 1, doc.PageAt(9))
	assert.Equal(t, 2, doc.PageAt(12))
	assert.Equal(t, 2, doc.PageAt(25))
	assert.Equal(t, 0, Document{}.PageAt(3))
}

func TestChunkID(t *testing.T) {
	a := ChunkID("doc.txt", 0)
	assert.Len(t, a, 16)
	assert.Equal(t, a, ChunkID("doc.txt", 0))
	assert.NotEqual(t, a, ChunkID("doc.txt", 1))
	assert.NotEqual(t, a, ChunkID("other.txt", 0))

	ch := Chunk{Metadata: map[string]string{MetaSourceID: "doc.txt"}}
	assert.Equal(t, "doc.txt", ch.SourceID())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("cause")

	wrapped := fmt.Errorf("ingest: %w", &LoadError{SourceID: "a.pdf", Err: cause})
	var loadErr *LoadError
	require.ErrorAs(t, wrapped, &loadErr)
	assert.Equal(t, "a.pdf", loadErr.SourceID)
	assert.ErrorIs(t, wrapped, cause)

	assert.ErrorIs(t, &EmbeddingError{Err: cause}, cause)
	assert.ErrorIs(t, &GenerationError{Err: cause}, cause)
	assert.Contains(t, (&GenerationError{Err: cause}).Error(), "could not generate an answer")
	assert.Equal(t, "dimension mismatch: index has 384, got 768", (&DimensionMismatchError{Expected: 384, Actual: 768}).Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&EmbeddingError{Err: errors.New("503")}))
	assert.True(t, IsRetryable(fmt.Errorf("batch: %w", &TimeoutError{Op: "embedding"})))
	assert.False(t, IsRetryable(&DimensionMismatchError{Expected: 1, Actual: 2}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestContextError(t *testing.T) {
	assert.NoError(t, ContextError(context.Background(), "op"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ContextError(ctx, "op"), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := ContextError(ctx, "search")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "search", timeoutErr.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
