package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/tutor"
)

type quizResponse struct {
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"`
	Raw     string       `json:"raw,omitempty"`
	Session *sessionView `json:"session"`
}

func (h *Handler) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}

	sess, outcome, err := h.tutor.GenerateQuiz(r.Context(), sess, req.Count)
	if errors.Is(err, tutor.ErrNoKnowledge) {
		h.fail(w, r, http.StatusConflict, "NoKnowledge", nil)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if !h.saveSession(w, r, &sess) {
		return
	}

	if !outcome.OK() {
		resp := quizResponse{
			Message: appI18n.T(r.Context(), "QuizFailed"),
			Raw:     outcome.Raw,
			Session: viewOf(sess),
		}
		if outcome.Err != nil {
			resp.Error = outcome.Err.Error()
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{
		Message: appI18n.Tp(r.Context(), "QuizReady", len(outcome.Items)),
		Session: viewOf(sess),
	})
}

// handleAnswer records an answer. Question and option numbers are 1-based.
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	no, err := strconv.Atoi(chi.URLParam(r, "no"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}
	var req struct {
		Option int `json:"option"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}

	sess, err = h.tutor.Answer(sess, no-1, req.Option-1)
	switch {
	case errors.Is(err, tutor.ErrNoQuiz):
		h.fail(w, r, http.StatusConflict, "NoQuiz", nil)
		return
	case errors.Is(err, tutor.ErrOutOfRange):
		h.fail(w, r, http.StatusBadRequest, "OutOfRange", err)
		return
	case err != nil:
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if !h.saveSession(w, r, &sess) {
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Message: appI18n.T(r.Context(), "AnswerSaved"),
		Session: viewOf(sess),
	})
}

type submitResponse struct {
	Message string           `json:"message"`
	Result  model.QuizResult `json:"result"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	sess, res, err := h.tutor.Submit(sess)
	if errors.Is(err, tutor.ErrNoQuiz) {
		h.fail(w, r, http.StatusConflict, "NoQuiz", nil)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if !h.saveSession(w, r, &sess) {
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Message: appI18n.Td(r.Context(), "ScoreN", map[string]any{"Score": res.Score}),
		Result:  res,
	})
}
