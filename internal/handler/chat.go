package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/tutor"
)

type indexResponse struct {
	Message  string   `json:"message"`
	Notes    []string `json:"notes,omitempty"`
	KBLength int      `json:"kb_length"`
	Chunks   int      `json:"chunks"`
	Included int      `json:"included"`
	Skipped  []string `json:"skipped,omitempty"`
}

// handleIndexKB replaces the knowledge base with the uploaded files (form field
// "files") and the pasted text (form field "pasted").
func (h *Handler) handleIndexKB(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}

	var sources []model.RawSource
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				h.fail(w, r, http.StatusBadRequest, "BadRequest", fmt.Errorf("open %s: %w", fh.Filename, err))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				h.fail(w, r, http.StatusBadRequest, "BadRequest", fmt.Errorf("read %s: %w", fh.Filename, err))
				return
			}
			sources = append(sources, model.RawSource{Kind: model.SourceFile, Name: fh.Filename, Data: data})
		}
	}

	sess, res, err := h.tutor.IndexKB(sess, sources, r.FormValue("pasted"))
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if !h.saveSession(w, r, &sess) {
		return
	}

	ctx := r.Context()
	chars := len([]rune(res.Text))
	resp := indexResponse{
		Message:  appI18n.T(ctx, "KBEmpty"),
		KBLength: chars,
		Chunks:   res.TotalChunks,
		Included: res.IncludedChunks,
		Skipped:  res.Skipped,
	}
	if chars > 0 {
		lang := appI18n.Match(w.Header().Get("Content-Language"))
		resp.Message = appI18n.Td(ctx, "KBReady", map[string]any{"Chars": groupDigits(lang, chars)})
	}
	if res.Truncated() {
		resp.Notes = append(resp.Notes, appI18n.Td(ctx, "KBTruncated", map[string]any{
			"Included": res.IncludedChunks, "Total": res.TotalChunks,
		}))
	}
	if len(res.Skipped) > 0 {
		resp.Notes = append(resp.Notes, appI18n.Tp(ctx, "SourcesSkipped", len(res.Skipped)))
	}
	writeJSON(w, http.StatusOK, resp)
}

// groupDigits formats n with the thousands separator of lang.
func groupDigits(lang string, n int) string {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf("%d", n)
}

type chatResponse struct {
	Message string       `json:"message,omitempty"`
	Reply   string       `json:"reply"`
	OK      bool         `json:"ok"`
	Session *sessionView `json:"session"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}

	sess, reply, err := h.tutor.Ask(r.Context(), sess, req.Message)
	if errors.Is(err, tutor.ErrEmptyQuestion) {
		h.fail(w, r, http.StatusBadRequest, "EmptyQuestion", nil)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if !h.saveSession(w, r, &sess) {
		return
	}

	resp := chatResponse{Reply: reply.Display(), OK: reply.OK(), Session: viewOf(sess)}
	if !reply.OK() {
		resp.Message = appI18n.T(r.Context(), "ModelFailed")
	}
	writeJSON(w, http.StatusOK, resp)
}
