// Package ingest turns uploaded study material into plain text.
//
// Failures are never fatal: every source yields a Document, and the error
// returned next to it only explains why the Document is empty or lossy.
package ingest

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/pavelanni/edumentor/internal/model"
)

var (
	// ErrUnsupported is returned for extensions the ingestor does not read.
	ErrUnsupported = errors.New("unsupported source extension")
	// ErrPDFUnavailable is returned when the binary was built without PDF support.
	ErrPDFUnavailable = errors.New("pdf support not available")
	// ErrPDFParse is returned when a PDF document cannot be read at all.
	ErrPDFParse = errors.New("pdf parse failed")
)

// Document is the decoded text of one source.
type Document struct {
	Name  string
	Text  string
	Lossy bool // invalid UTF-8 was replaced by a single-byte decode
}

// Extensions lists the upload extensions the ingestor recognizes.
func Extensions() []string {
	exts := []string{".txt", ".md"}
	if PDFSupported() {
		exts = append(exts, ".pdf")
	}
	return exts
}

// Ingest decodes a single source. On any error the returned Document has empty text.
func Ingest(src model.RawSource) (Document, error) {
	doc := Document{Name: src.Name}
	if src.Kind == model.SourcePasted {
		doc.Text = src.Text
		return doc, nil
	}

	ext := strings.ToLower(src.Ext)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(src.Name))
	}

	switch ext {
	case ".txt", ".md":
		doc.Text, doc.Lossy = decodeText(src.Data)
		return doc, nil
	case ".pdf":
		text, err := extractPDF(src.Data)
		if err != nil {
			return doc, err
		}
		doc.Text = text
		return doc, nil
	default:
		return doc, ErrUnsupported
	}
}

// IngestAll decodes sources in order and returns the text of each usable one,
// plus the names of the sources that were skipped.
func IngestAll(sources []model.RawSource) (texts, skipped []string) {
	for _, src := range sources {
		doc, err := Ingest(src)
		if err != nil {
			slog.Debug("skipping source", "name", src.Name, "error", err)
			skipped = append(skipped, src.Name)
			continue
		}
		if doc.Lossy {
			slog.Warn("source is not valid UTF-8, decoded as Latin-1", "name", src.Name)
		}
		texts = append(texts, doc.Text)
	}
	return texts, skipped
}

// decodeText decodes data as UTF-8, falling back to Latin-1 when the bytes are not valid UTF-8.
// Latin-1 maps every byte, so the fallback cannot fail.
func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), false
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), ""), true
	}
	return string(out), true
}
