package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edumentor/internal/export"
	appI18n "github.com/pavelanni/edumentor/internal/i18n"
)

// Download names offered to the browser.
const (
	chatFilename    = "chat_history.csv"
	quizFilename    = "quiz_result.csv"
	sessionBasename = "memory_kb"
)

func attachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleExport serves chat.csv, quiz.csv, session.json or session.yaml.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	file := chi.URLParam(r, "file")
	switch file {
	case "chat.csv":
		data, err := export.CSV(export.ChatRecords(sess.Messages, h.now()))
		if err != nil {
			h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
			return
		}
		attachment(w, chatFilename, "text/csv; charset=utf-8", data)
	case "quiz.csv":
		if sess.LastQuizResult == nil {
			h.fail(w, r, http.StatusNotFound, "NothingToExport", nil)
			return
		}
		data, err := export.CSV(export.QuizRecords(sess.LastQuizResult))
		if err != nil {
			h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
			return
		}
		attachment(w, quizFilename, "text/csv; charset=utf-8", data)
	default:
		name, format, found := strings.Cut(file, ".")
		if !found || name != "session" {
			h.fail(w, r, http.StatusNotFound, "NothingToExport", nil)
			return
		}
		exp, err := export.NewExporter(format)
		if err != nil {
			h.fail(w, r, http.StatusNotFound, "NothingToExport", err)
			return
		}
		var buf bytes.Buffer
		if err := exp.Export(h.tutor.Export(sess), &buf); err != nil {
			h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
			return
		}
		attachment(w, sessionBasename+"."+exp.Extension(), exp.ContentType(), buf.Bytes())
	}
}

// importFormat picks the document format from the "format" query parameter,
// then the Content-Type header. It defaults to json.
func importFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mt, "yaml") {
		return "yaml"
	}
	return "json"
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	doc, err := export.Import(http.MaxBytesReader(w, r.Body, h.maxUpload), importFormat(r))
	if err != nil {
		var ie *export.ImportError
		if !errors.As(err, &ie) {
			h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
			return
		}
		writeJSON(w, http.StatusBadRequest, apiResponse{
			Message: appI18n.Td(r.Context(), "ImportFailed", map[string]any{"Error": ie.Err.Error()}),
			Error:   err.Error(),
		})
		return
	}

	sess = h.tutor.Import(sess, doc)
	if !h.saveSession(w, r, &sess) {
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Message: appI18n.T(r.Context(), "ImportOK"),
		Session: viewOf(sess),
	})
}
