package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"voice_rag/internal/domain"
)

var errNoDocumentXML = errors.New("word/document.xml not found")

// loadDOCX извлекает абзацы из word/document.xml в порядке документа
func loadDOCX(name string, data []byte) (domain.Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Document{}, &domain.LoadError{SourceID: name, Err: fmt.Errorf("open docx archive: %w", err)}
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return domain.Document{}, &domain.LoadError{SourceID: name, Err: err}
		}
		text, err := parseDocumentXML(rc)
		rc.Close()
		if err != nil {
			return domain.Document{}, &domain.LoadError{SourceID: name, Err: err}
		}

		return domain.Document{
			SourceID: name,
			RawText:  text,
			Format:   domain.FormatDOCX,
		}, nil
	}

	return domain.Document{}, &domain.LoadError{SourceID: name, Err: errNoDocumentXML}
}

// parseDocumentXML потоково читает XML: абзацы внутри таблиц тоже попадают в текст
func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		inPara     bool
		propsDepth int // внутри w:pPr/w:rPr теги tab описывают позиции табуляции
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if propsDepth > 0 {
				if isProps(t.Name.Local) {
					propsDepth++
				}
				continue
			}
			switch t.Name.Local {
			case "pPr", "rPr":
				propsDepth++
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString("\n")
			}
		case xml.EndElement:
			if isProps(t.Name.Local) && propsDepth > 0 {
				propsDepth--
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inPara {
					paragraphs = append(paragraphs, current.String())
				}
				inPara = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n")), nil
}

func isProps(local string) bool {
	return local == "pPr" || local == "rPr"
}
