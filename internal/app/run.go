package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"voice_rag/internal/domain"
)

// Run - консольный режим: путь к файлу загружается в базу,
// любой другой текст считается вопросом
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	log.Println("Application started")
	log.Println("Enter a file path to upload or a question to ask. :stats, :clear, :quit. Ctrl+C to exit.")

	scanner := bufio.NewScanner(in)

	// Увеличим буфер, если пути/строки будут длинные
	const maxLineSize = 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down application")
			return nil
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("stdin error: %w", err)
				}
				log.Println("stdin closed")
				return nil
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == ":quit" {
				return nil
			}

			a.handleLine(ctx, line, out)
		}
	}
}

func (a *App) handleLine(ctx context.Context, line string, out io.Writer) {
	switch line {
	case ":stats":
		stats := a.Stats()
		fmt.Fprintf(out, "📊 %d documents, %d chunks\n", stats.DocumentCount, stats.ChunkCount)
		for source, n := range stats.Sources {
			fmt.Fprintf(out, "   %s: %d chunks\n", source, n)
		}
		return
	case ":clear":
		if err := a.Clear(ctx); err != nil {
			log.Printf("❌ Clear failed: %v", err)
			return
		}
		fmt.Fprintln(out, "🗑️ Knowledge base cleared")
		return
	}

	// Проверяем, это файл или текст
	if info, err := os.Stat(line); err == nil && !info.IsDir() {
		report, err := a.IngestPaths(ctx, []string{line})
		if err != nil {
			log.Printf("❌ Processing failed: %v", err)
		}
		for _, f := range report.Failed {
			fmt.Fprintf(out, "❌ %s: %v\n", f.SourceID, f.Err)
		}
		if report.DocumentsAdded > 0 {
			fmt.Fprintf(out, "✅ Processed: %s (%d chunks)\n", info.Name(), report.ChunksAdded)
		}
		return
	}

	result, err := a.Ask(ctx, line)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			fmt.Fprintln(out, "❌ Could not generate an answer")
		}
		log.Printf("❌ Ask failed: %v", err)
		return
	}

	fmt.Fprintf(out, "\n🤖 %s\n", result.Text)
	for i, r := range result.Sources {
		fmt.Fprintf(out, "   %d. %s (similarity: %.2f)\n", i+1, r.Chunk.SourceID(), r.Score)
	}
}
