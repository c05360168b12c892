package rag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Extractor pulls plain text out of one source document format.
type Extractor interface {
	Extract(path string) (string, error)
	Supports(path string) bool
}

// ExtractionError represents a failure to extract content from a source.
type ExtractionError struct {
	Extractor string
	Path      string
	Message   string
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("[%s] extraction failed for %s: %s", e.Extractor, e.Path, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TextExtractor handles plain text and markdown sources.
type TextExtractor struct{}

func (TextExtractor) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}

func (TextExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Extractor: "text", Path: path, Message: "failed to read file", Err: err}
	}
	return string(data), nil
}

// PDFExtractor handles PDF sources.
type PDFExtractor struct{}

func (PDFExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (PDFExtractor) Extract(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", &ExtractionError{Extractor: "pdf", Path: path, Message: "failed to open PDF", Err: err}
	}
	defer f.Close()

	var buf bytes.Buffer
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &ExtractionError{Extractor: "pdf", Path: path, Message: "failed to extract text", Err: err}
	}
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", &ExtractionError{Extractor: "pdf", Path: path, Message: "failed to read text", Err: err}
	}
	return buf.String(), nil
}

// DocxExtractor handles Word documents.
type DocxExtractor struct{}

func (DocxExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".docx")
}

func (DocxExtractor) Extract(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", &ExtractionError{Extractor: "docx", Path: path, Message: "failed to open document", Err: err}
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return stripDocxTags(content), nil
}

// stripDocxTags removes the XML markup the docx library leaves in the
// raw content, keeping paragraph breaks.
func stripDocxTags(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// DefaultExtractors returns the extractor chain in match order.
func DefaultExtractors() []Extractor {
	return []Extractor{TextExtractor{}, PDFExtractor{}, DocxExtractor{}}
}

// FindExtractor picks the first extractor supporting the path.
func FindExtractor(extractors []Extractor, path string) (Extractor, error) {
	for _, e := range extractors {
		if e.Supports(path) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no extractor for file type %q", filepath.Ext(path))
}
