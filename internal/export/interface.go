// Package export serializes session data: CSV tables of chat turns and quiz rows,
// and JSON or YAML documents of the whole session for later import.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/edumentor/internal/model"
)

// Exporter defines the interface for session document formats
type Exporter interface {
	Export(doc model.SessionExport, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml)", format)
	}
}

// FormatFromPath guesses a document format from a file name. It defaults to json.
func FormatFromPath(path string) string {
	p := strings.ToLower(path)
	if strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") {
		return "yaml"
	}
	return "json"
}
