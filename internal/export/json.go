package export

import (
	"encoding/json"
	"io"

	"github.com/pavelanni/edumentor/internal/model"
)

// JSONExporter writes session documents as indented UTF-8 JSON.
// Non-ASCII text is written literally.
type JSONExporter struct{}

// Export writes doc to w.
func (e *JSONExporter) Export(doc model.SessionExport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(normalize(doc))
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// ContentType returns the MIME type for this format
func (e *JSONExporter) ContentType() string {
	return "application/json; charset=utf-8"
}

// normalize makes an absent transcript serialize as an empty list.
func normalize(doc model.SessionExport) model.SessionExport {
	if doc.Messages == nil {
		doc.Messages = []model.ChatTurn{}
	}
	return doc
}
