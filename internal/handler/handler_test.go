package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/llm"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/store"
	"github.com/pavelanni/edumentor/internal/tutor"
)

const sampleQuiz = `Here you go:
[{"q":"Where does photosynthesis happen?","a":["Roots","Chloroplasts","Stem","Soil"],"key":1},
 {"q":"What gas is released?","a":["Oxygen","Helium","Argon","Neon"],"key":0}]`

// fakeModel answers quiz prompts with quizReply and everything else with chatReply.
func fakeModel(chatReply, quizReply llm.Reply) llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, req llm.Request) llm.Reply {
		if strings.Contains(req.User, "MCQ") {
			return quizReply
		}
		return chatReply
	})
}

type testEnv struct {
	h     http.Handler
	store *store.Store
}

func newTestEnv(t *testing.T, gen llm.Generator) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	svc, err := tutor.New(gen, nil, model.TutorConfig{Language: "en", Temperature: 0.3})
	if err != nil {
		t.Fatalf("tutor: %v", err)
	}
	h := New(s, svc)
	h.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	return &testEnv{h: h.Router(), store: s}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return e.do(t, method, path, "application/json", r)
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	sess, err := e.store.CreateSession("bio")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess.ID
}

func (e *testEnv) withKB(t *testing.T, id, text string) {
	t.Helper()
	sess, err := e.store.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	sess.KBText = text
	if err := e.store.SaveSession(&sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

type response struct {
	Message  string       `json:"message"`
	Error    string       `json:"error"`
	Reply    string       `json:"reply"`
	OK       bool         `json:"ok"`
	Notes    []string     `json:"notes"`
	KBLength int          `json:"kb_length"`
	Skipped  []string     `json:"skipped"`
	Session  *sessionView `json:"session"`
	Result   *model.QuizResult
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	rec := env.doJSON(t, http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)
}

func TestSessionCRUD(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))

	rec := env.doJSON(t, http.MethodPost, "/sessions", `{"name":"chemistry"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode(t, rec)
	if created.Session == nil || created.Session.Name != "chemistry" {
		t.Fatalf("unexpected session: %+v", created.Session)
	}
	if created.Message != "Session chemistry created." {
		t.Errorf("message = %q", created.Message)
	}
	id := created.Session.ID

	rec = env.doJSON(t, http.MethodGet, "/sessions/"+id, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode(t, rec).Session; got.ID != id || len(got.Messages) != 0 {
		t.Errorf("unexpected session: %+v", got)
	}

	rec = env.doJSON(t, http.MethodGet, "/sessions", "")
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Sessions []model.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].ID != id {
		t.Errorf("unexpected list: %+v", list.Sessions)
	}

	rec = env.doJSON(t, http.MethodDelete, "/sessions/"+id, "")
	expectStatus(t, rec, http.StatusOK)

	rec = env.doJSON(t, http.MethodGet, "/sessions/"+id, "")
	expectStatus(t, rec, http.StatusNotFound)
	if msg := decode(t, rec).Message; msg != "Session not found." {
		t.Errorf("message = %q", msg)
	}
}

func TestCreateSessionWithoutBody(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	rec := env.doJSON(t, http.MethodPost, "/sessions", "")
	expectStatus(t, rec, http.StatusCreated)
}

func TestLocalizedErrors(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	tests := []struct {
		name   string
		path   string
		header string
		want   string
	}{
		{"default", "/sessions/missing", "", "Session not found."},
		{"accept-language", "/sessions/missing", "id-ID,id;q=0.9", "Sesi tidak ditemukan."},
		{"query wins", "/sessions/missing?lang=en", "id", "Session not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			rec := httptest.NewRecorder()
			env.h.ServeHTTP(rec, req)
			expectStatus(t, rec, http.StatusNotFound)
			if msg := decode(t, rec).Message; msg != tt.want {
				t.Errorf("message = %q, want %q", msg, tt.want)
			}
		})
	}
}

func TestIndexKBMultipart(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	id := env.newSession(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{
		"cells.txt":  "Cells are small.",
		"slides.exe": "binary",
	} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.WriteField("pasted", "Plants make sugar.")
	mw.Close()

	rec := env.do(t, http.MethodPost, "/sessions/"+id+"/kb", mw.FormDataContentType(), &body)
	expectStatus(t, rec, http.StatusOK)
	resp := decode(t, rec)

	want := "Cells are small.\n\nPlants make sugar."
	if resp.KBLength != len(want) {
		t.Errorf("kb_length = %d, want %d", resp.KBLength, len(want))
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "slides.exe" {
		t.Errorf("skipped = %v", resp.Skipped)
	}
	if resp.Message != "Knowledge base ready. Context length: 36 characters." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Notes) != 1 || !strings.Contains(resp.Notes[0], "1 file was skipped") {
		t.Errorf("notes = %v", resp.Notes)
	}

	sess, err := env.store.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.KBText != want {
		t.Errorf("stored kb = %q, want %q", sess.KBText, want)
	}
}

func TestIndexKBForm(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	id := env.newSession(t)

	form := url.Values{"pasted": {"   "}}
	rec := env.do(t, http.MethodPost, "/sessions/"+id+"/kb",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	expectStatus(t, rec, http.StatusOK)
	resp := decode(t, rec)
	if resp.KBLength != 0 || resp.Message != "No text could be indexed yet." {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChat(t *testing.T) {
	tests := []struct {
		name      string
		reply     llm.Reply
		body      string
		status    int
		wantOK    bool
		wantReply string
		wantTurns int
	}{
		{"answer", llm.Reply{Text: "Chloroplasts."}, `{"message":"Where?"}`, http.StatusOK, true, "Chloroplasts.", 2},
		{"model failure", llm.Failed(errors.New("timeout")), `{"message":"Where?"}`, http.StatusOK, false, llm.FailurePrefix + "timeout)", 2},
		{"empty question", llm.Reply{Text: "unused"}, `{"message":"  "}`, http.StatusBadRequest, false, "", 0},
		{"bad json", llm.Reply{Text: "unused"}, `{"message":`, http.StatusBadRequest, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fakeModel(tt.reply, llm.Reply{}))
			id := env.newSession(t)

			rec := env.doJSON(t, http.MethodPost, "/sessions/"+id+"/chat", tt.body)
			expectStatus(t, rec, tt.status)
			if tt.status == http.StatusOK {
				resp := decode(t, rec)
				if resp.OK != tt.wantOK || resp.Reply != tt.wantReply {
					t.Errorf("reply = %q ok=%v, want %q ok=%v", resp.Reply, resp.OK, tt.wantReply, tt.wantOK)
				}
				if !tt.wantOK && resp.Message == "" {
					t.Error("expected a failure message")
				}
			}

			sess, err := env.store.GetSession(id)
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if len(sess.Messages) != tt.wantTurns {
				t.Errorf("stored %d turns, want %d", len(sess.Messages), tt.wantTurns)
			}
		})
	}
}

func TestConcurrentChatKeepsEveryTurn(t *testing.T) {
	slow := llm.GeneratorFunc(func(context.Context, llm.Request) llm.Reply {
		time.Sleep(20 * time.Millisecond)
		return llm.Reply{Text: "answer"}
	})
	env := newTestEnv(t, slow)
	id := env.newSession(t)

	const requests = 4
	var wg sync.WaitGroup
	codes := make([]int, requests)
	for i := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/chat",
				strings.NewReader(`{"message":"question"}`))
			rec := httptest.NewRecorder()
			env.h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: status %d", i, code)
		}
	}
	sess, err := env.store.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 2*requests {
		t.Fatalf("stored %d turns, want %d", len(sess.Messages), 2*requests)
	}
	for i, turn := range sess.Messages {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %s, want %s", i, turn.Role, want)
		}
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{Text: sampleQuiz}))
	id := env.newSession(t)
	env.withKB(t, id, "Photosynthesis happens in chloroplasts and releases oxygen.")

	rec := env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz", `{"count":5}`)
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), `"key"`) {
		t.Error("answer keys leaked into the response")
	}
	resp := decode(t, rec)
	if resp.Message != "2 questions ready. Answer them below." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Session.Quiz) != 2 || resp.Session.Quiz[0].No != 1 {
		t.Fatalf("unexpected quiz: %+v", resp.Session.Quiz)
	}

	rec = env.doJSON(t, http.MethodPut, "/sessions/"+id+"/quiz/answers/1", `{"option":2}`)
	expectStatus(t, rec, http.StatusOK)
	if sel := decode(t, rec).Session.Quiz[0].Selected; sel != 2 {
		t.Errorf("selected = %d, want 2", sel)
	}
	rec = env.doJSON(t, http.MethodPut, "/sessions/"+id+"/quiz/answers/2", `{"option":3}`)
	expectStatus(t, rec, http.StatusOK)

	rec = env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz/submit", "")
	expectStatus(t, rec, http.StatusOK)
	resp = decode(t, rec)
	if resp.Message != "Your score: 50" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Result == nil || resp.Result.Score != 50 || len(resp.Result.Rows) != 2 {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
	if !resp.Result.Rows[0].IsCorrect || resp.Result.Rows[1].IsCorrect {
		t.Errorf("unexpected grading: %+v", resp.Result.Rows)
	}

	rec = env.doJSON(t, http.MethodGet, "/sessions/"+id+"/export/quiz.csv", "")
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "quiz_result.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != "no,question,user_answer,correct,is_correct" {
		t.Errorf("unexpected csv: %q", lines)
	}
}

func TestQuizErrors(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{Text: "no json here"}))
	id := env.newSession(t)

	rec := env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz", "")
	expectStatus(t, rec, http.StatusConflict)
	if msg := decode(t, rec).Message; msg != "Index some material into the knowledge base first." {
		t.Errorf("message = %q", msg)
	}

	rec = env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz/submit", "")
	expectStatus(t, rec, http.StatusConflict)

	rec = env.doJSON(t, http.MethodPut, "/sessions/"+id+"/quiz/answers/1", `{"option":1}`)
	expectStatus(t, rec, http.StatusConflict)

	env.withKB(t, id, "Some material.")
	rec = env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz", "")
	expectStatus(t, rec, http.StatusBadGateway)
	resp := decode(t, rec)
	if resp.Error == "" || len(resp.Session.Quiz) != 0 {
		t.Errorf("unexpected failure response: %+v", resp)
	}
}

func TestAnswerOutOfRange(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{Text: sampleQuiz}))
	id := env.newSession(t)
	env.withKB(t, id, "Material.")
	expectStatus(t, env.doJSON(t, http.MethodPost, "/sessions/"+id+"/quiz", ""), http.StatusOK)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"question too high", "/quiz/answers/3", `{"option":1}`, http.StatusBadRequest},
		{"question zero", "/quiz/answers/0", `{"option":1}`, http.StatusBadRequest},
		{"option too high", "/quiz/answers/1", `{"option":5}`, http.StatusBadRequest},
		{"option missing", "/quiz/answers/1", ``, http.StatusBadRequest},
		{"not a number", "/quiz/answers/one", `{"option":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPut, "/sessions/"+id+tt.path, tt.body)
			expectStatus(t, rec, tt.status)
		})
	}
}

func TestExportNothing(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	id := env.newSession(t)

	for _, file := range []string{"quiz.csv", "session.xml", "other.json"} {
		rec := env.doJSON(t, http.MethodGet, "/sessions/"+id+"/export/"+file, "")
		expectStatus(t, rec, http.StatusNotFound)
	}

	rec := env.doJSON(t, http.MethodGet, "/sessions/"+id+"/export/chat.csv", "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.Len() != 0 {
		t.Errorf("expected an empty chat export, got %q", rec.Body.String())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{Text: "Chloroplasts."}, llm.Reply{}))
	src := env.newSession(t)
	env.withKB(t, src, "Plants make sugar.")
	expectStatus(t, env.doJSON(t, http.MethodPost, "/sessions/"+src+"/chat", `{"message":"Where?"}`), http.StatusOK)

	rec := env.doJSON(t, http.MethodGet, "/sessions/"+src+"/export/chat.csv", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Body.String(), "ts,role,text\n") {
		t.Errorf("unexpected chat csv: %q", rec.Body.String())
	}

	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodGet, "/sessions/"+src+"/export/session."+format, "")
			expectStatus(t, rec, http.StatusOK)
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "memory_kb."+format) {
				t.Errorf("Content-Disposition = %q", cd)
			}

			dst := env.newSession(t)
			rec = env.do(t, http.MethodPost, "/sessions/"+dst+"/import?format="+format, "", rec.Body)
			expectStatus(t, rec, http.StatusOK)
			resp := decode(t, rec)
			if resp.Message != "Import successful. Open the chat or quiz to see the result." {
				t.Errorf("message = %q", resp.Message)
			}

			sess, err := env.store.GetSession(dst)
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if sess.KBText != "Plants make sugar." || len(sess.Messages) != 2 {
				t.Errorf("unexpected imported session: kb=%q turns=%d", sess.KBText, len(sess.Messages))
			}
		})
	}
}

func TestImportMalformed(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{}, llm.Reply{}))
	id := env.newSession(t)
	env.withKB(t, id, "keep me")

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty", "application/json", ""},
		{"broken json", "application/json", `{"messages": [`},
		{"null", "application/json", `null`},
		{"broken yaml", "application/yaml", "messages: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/sessions/"+id+"/import", tt.contentType, strings.NewReader(tt.body))
			expectStatus(t, rec, http.StatusBadRequest)
			if msg := decode(t, rec).Message; !strings.HasPrefix(msg, "Import failed: ") {
				t.Errorf("message = %q", msg)
			}
		})
	}

	sess, err := env.store.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.KBText != "keep me" {
		t.Errorf("failed import changed the session: kb=%q", sess.KBText)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, fakeModel(llm.Reply{Text: "ok"}, llm.Reply{}))
	id := env.newSession(t)
	env.withKB(t, id, "material")
	expectStatus(t, env.doJSON(t, http.MethodPost, "/sessions/"+id+"/chat", `{"message":"hi"}`), http.StatusOK)

	rec := env.doJSON(t, http.MethodPost, "/sessions/"+id+"/reset", "")
	expectStatus(t, rec, http.StatusOK)
	resp := decode(t, rec)
	if resp.Session.ID != id || resp.Session.Name != "bio" {
		t.Errorf("identity not kept: %+v", resp.Session)
	}
	if len(resp.Session.Messages) != 0 || resp.Session.KBLength != 0 {
		t.Errorf("session not cleared: %+v", resp.Session)
	}
}
