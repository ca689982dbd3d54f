// Package ingest turns uploaded files into document text.
package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/common"
)

// MaxUploadBytes caps in-memory extraction.
const MaxUploadBytes = 50 << 20

// ExtractText converts an uploaded file into UTF-8 document text based on
// its extension. Text-like formats pass through with invalid bytes
// replaced; PDFs go through page-text extraction.
func ExtractText(filename string, content []byte) (string, constants.DocumentFormat, error) {
	if len(content) == 0 {
		return "", "", common.NewAppError("EMPTY_FILE", "uploaded file is empty", nil)
	}
	if len(content) > MaxUploadBytes {
		return "", "", common.NewAppError("FILE_TOO_LARGE", "uploaded file exceeds the size cap", nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	format := constants.MapExtToFormat(ext)
	if format == "" {
		return "", "", common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("unsupported file extension %q", ext), nil)
	}

	switch format {
	case constants.PDF:
		text, err := pdfText(content)
		if err != nil {
			return "", "", common.NewAppError("PDF_EXTRACTION_FAILED", "could not extract PDF text", err)
		}
		return text, format, nil
	default:
		return utf8Clean(content), format, nil
	}
}

func pdfText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text found in %d pages", pages)
	}
	return b.String(), nil
}

// utf8Clean replaces invalid byte sequences so the text can live in a
// Postgres text column.
func utf8Clean(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), string(utf8.RuneError))
}
