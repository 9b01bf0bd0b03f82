package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/store"
	"github.com/pavelanni/edumentor/internal/tutor"
)

const (
	defaultMaxUpload = 32 << 20
	maxBodyBytes     = 8 << 20
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	tutor     *tutor.Service
	maxUpload int64
	now       func() time.Time
	locks     sessionLocks
}

// New creates a new Handler.
func New(s *store.Store, svc *tutor.Service) *Handler {
	return &Handler{store: s, tutor: svc, maxUpload: defaultMaxUpload, now: time.Now}
}

// Router returns a chi router with logging, panic recovery, localization and all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Post("/reset", h.handleReset)
		r.Post("/kb", h.handleIndexKB)
		r.Post("/chat", h.handleChat)
		r.Post("/quiz", h.handleGenerateQuiz)
		r.Put("/quiz/answers/{no}", h.handleAnswer)
		r.Post("/quiz/submit", h.handleSubmit)
		r.Get("/export/{file}", h.handleExport)
		r.Post("/import", h.handleImport)
	})
}

// apiResponse is the common envelope of JSON responses.
type apiResponse struct {
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Session *sessionView `json:"session,omitempty"`
}

type quizView struct {
	No       int      `json:"no"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Selected int      `json:"selected,omitempty"` // 1-based; 0 when unanswered
}

// sessionView is the client-facing shape of a session. Answer keys stay hidden.
type sessionView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Messages       []model.ChatTurn  `json:"messages"`
	KBLength       int               `json:"kb_length"`
	Quiz           []quizView        `json:"quiz"`
	LastQuizResult *model.QuizResult `json:"last_quiz_result,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func viewOf(s model.Session) *sessionView {
	msgs := s.Messages
	if msgs == nil {
		msgs = []model.ChatTurn{}
	}
	return &sessionView{
		ID:       s.ID,
		Name:     s.Name,
		Messages: msgs,
		KBLength: len([]rune(s.KBText)),
		Quiz: lo.Map(s.Quiz, func(it model.QuizItem, i int) quizView {
			v := quizView{No: i + 1, Question: it.Question, Options: it.Options}
			if sel, ok := s.Answers[i]; ok {
				v.Selected = sel + 1
			}
			return v
		}),
		LastQuizResult: s.LastQuizResult,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// fail writes a localized error response. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	resp := apiResponse{Message: appI18n.T(r.Context(), msgID)}
	if err != nil {
		resp.Error = err.Error()
		if status >= http.StatusInternalServerError {
			slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
	}
	writeJSON(w, status, resp)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// lockSession holds the URL's session until the returned func is called.
// Every handler that saves a session holds it from load to save.
func (h *Handler) lockSession(r *http.Request) func() {
	return h.locks.lock(chi.URLParam(r, "sessionID"))
}

// loadSession fetches the session named in the URL, writing an error response if it cannot.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sess, err := h.store.GetSession(chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, http.StatusNotFound, "SessionNotFound", nil)
		return model.Session{}, false
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return model.Session{}, false
	}
	return sess, true
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, sess *model.Session) bool {
	if err := h.store.SaveSession(sess); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", fmt.Errorf("save session: %w", err))
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListSessions()
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	if list == nil {
		list = []model.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "BadRequest", err)
		return
	}

	sess, err := h.store.CreateSession(req.Name)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{
		Message: appI18n.Td(r.Context(), "SessionCreated", map[string]any{"Name": sess.Name}),
		Session: viewOf(sess),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Session: viewOf(sess)})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	err := h.store.DeleteSession(chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, http.StatusNotFound, "SessionNotFound", nil)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "InternalError", err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: appI18n.T(r.Context(), "SessionDeleted")})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	defer h.lockSession(r)()

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	sess = h.tutor.Reset(sess)
	if !h.saveSession(w, r, &sess) {
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Message: appI18n.T(r.Context(), "SessionReset"),
		Session: viewOf(sess),
	})
}
