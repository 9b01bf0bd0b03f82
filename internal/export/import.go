package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/edumentor/internal/model"
)

// ImportError reports a session document that could not be read.
type ImportError struct {
	Format string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import error [%s]: %v", e.Format, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

var errNotObject = errors.New("document is not an object")

// Import reads a session document in the given format (json or yaml).
// Missing keys default to empty values. Unknown keys are ignored. Every message must
// have the user or assistant role.
func Import(r io.Reader, format string) (model.SessionExport, error) {
	format = strings.ToLower(format)
	fail := func(err error) (model.SessionExport, error) {
		return model.SessionExport{}, &ImportError{Format: format, Err: err}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fail(fmt.Errorf("read document: %w", err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fail(errors.New("empty document"))
	}

	var doc *model.SessionExport
	switch format {
	case "json":
		err = json.Unmarshal(data, &doc)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return fail(fmt.Errorf("unsupported format: %s", format))
	}
	if err != nil {
		return fail(err)
	}
	if doc == nil {
		return fail(errNotObject)
	}

	if doc.Messages == nil {
		doc.Messages = []model.ChatTurn{}
	}
	for i, m := range doc.Messages {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			return fail(fmt.Errorf("message %d: unknown role %q", i+1, m.Role))
		}
	}
	return *doc, nil
}
