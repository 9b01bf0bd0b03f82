package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/edumentor/internal/model"
)

// YAMLExporter exports session documents in YAML format
type YAMLExporter struct{}

// Export writes doc to w.
func (e *YAMLExporter) Export(doc model.SessionExport, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(normalize(doc))
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// ContentType returns the MIME type for this format
func (e *YAMLExporter) ContentType() string {
	return "application/yaml; charset=utf-8"
}
