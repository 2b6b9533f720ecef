package loader

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"voice_rag/internal/domain"
)

// loadMarkdown превращает markdown в простой текст: разметка отбрасывается,
// заголовки и абзацы отделяются пустой строкой
func loadMarkdown(name string, data []byte) (domain.Document, error) {
	content, err := decodeText(data)
	if err != nil {
		return domain.Document{}, &domain.LoadError{SourceID: name, Err: err}
	}

	source := []byte(content)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	return domain.Document{
		SourceID: name,
		RawText:  renderPlainText(doc, source),
		Format:   domain.FormatMarkdown,
	}, nil
}

func renderPlainText(doc ast.Node, source []byte) string {
	var buf strings.Builder

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					segment := lines.At(i)
					buf.Write(segment.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
			buf.WriteString("\n")
		case *ast.Heading, *ast.Paragraph:
			if !entering {
				buf.WriteString("\n\n")
			}
		case *ast.TextBlock, *ast.ListItem:
			if !entering && !strings.HasSuffix(buf.String(), "\n") {
				buf.WriteString("\n")
			}
		case *ast.List:
			if !entering {
				buf.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}
