package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, status int, body string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			if got != nil {
				if err := json.NewDecoder(r.Body).Decode(got); err != nil {
					t.Errorf("decode request: %v", err)
				}
			}
		case "/v1/models":
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReplyDisplay(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"text", Reply{Text: "answer"}, "answer"},
		{"empty", Reply{}, ""},
		{"failure", Failed(errors.New("boom")), "(Failed to call model: boom)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reply.Display(); got != tt.want {
				t.Errorf("Display() = %q, want %q", got, tt.want)
			}
		})
	}
	if !strings.HasPrefix(Failed(errors.New("x")).Display(), FailurePrefix) {
		t.Error("failure text should start with FailurePrefix")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Photosynthesis.\n"}, "finish_reason": "stop"}]
	}`, &got)

	c := NewOpenAI(srv.URL+"/v1", "key", "test-model")
	reply := c.Generate(context.Background(), Request{System: "be brief", User: "what?", Temperature: 0.2})
	if !reply.OK() {
		t.Fatalf("Generate: %v", reply.Err)
	}
	if reply.Text != "Photosynthesis." {
		t.Errorf("text = %q, want trimmed reply", reply.Text)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	for i, m := range got.Messages {
		if m.Role != "user" {
			t.Errorf("message %d role = %q, want user", i, m.Role)
		}
	}
	if got.Messages[0].Content != "SYSTEM:\nbe brief" {
		t.Errorf("system part = %q", got.Messages[0].Content)
	}
	if got.Messages[1].Content != "what?" {
		t.Errorf("user part = %q", got.Messages[1].Content)
	}
	if got.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got.Temperature)
	}
}

func TestOpenAIGenerateZeroTemperature(t *testing.T) {
	var body map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": []}`))
	}))
	t.Cleanup(srv.Close)

	reply := NewOpenAI(srv.URL+"/v1", "key", "m").Generate(context.Background(), Request{User: "q", Temperature: 0})
	if !reply.OK() {
		t.Fatalf("Generate: %v", reply.Err)
	}
	raw, ok := body["temperature"]
	if !ok {
		t.Fatal("temperature missing from the request")
	}
	var temp float64
	if err := json.Unmarshal(raw, &temp); err != nil {
		t.Fatalf("decode temperature: %v", err)
	}
	if temp <= 0 || temp > 1e-6 {
		t.Errorf("temperature = %v, want a value just above 0", temp)
	}
}

func TestWireTemperature(t *testing.T) {
	tests := []struct {
		in       float32
		wantSame bool
	}{
		{0, false},
		{0.2, true},
		{1, true},
	}
	for _, tt := range tests {
		got := wireTemperature(tt.in)
		if tt.wantSame && got != tt.in {
			t.Errorf("wireTemperature(%v) = %v", tt.in, got)
		}
		if !tt.wantSame && got == 0 {
			t.Errorf("wireTemperature(%v) = 0, want a positive value", tt.in)
		}
	}
}

func TestGeminiParts(t *testing.T) {
	parts := geminiParts(Request{System: "be brief", User: "what?", Temperature: 0.2})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0] != genai.Text("SYSTEM:\nbe brief") {
		t.Errorf("system part = %#v", parts[0])
	}
	if parts[1] != genai.Text("what?") {
		t.Errorf("user part = %#v", parts[1])
	}
}

func TestCandidateText(t *testing.T) {
	content := func(parts ...genai.Part) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
		}
	}
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"no content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{"single part trimmed", content(genai.Text("  Photosynthesis.\n")), "Photosynthesis."},
		{"parts joined", content(genai.Text(" Photo"), genai.Text("synthesis. ")), "Photosynthesis."},
		{"non-text parts skipped", content(genai.Blob{MIMEType: "image/png"}, genai.Text("ok")), "ok"},
		{"whitespace only", content(genai.Text(" \n\t")), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := candidateText(tt.resp); got != tt.want {
				t.Errorf("candidateText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "choices": []}`, nil)
	reply := NewOpenAI(srv.URL+"/v1", "key", "m").Generate(context.Background(), Request{User: "q"})
	if !reply.OK() {
		t.Fatalf("Generate: %v", reply.Err)
	}
	if reply.Text != "" {
		t.Errorf("expected empty text, got %q", reply.Text)
	}
}

func TestOpenAIGenerateFailure(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError,
		`{"error": {"message": "server exploded", "type": "server_error"}}`, nil)
	reply := NewOpenAI(srv.URL+"/v1", "key", "m").Generate(context.Background(), Request{User: "q"})
	if reply.OK() {
		t.Fatal("expected a failed reply")
	}
	if !strings.HasPrefix(reply.Display(), FailurePrefix) {
		t.Errorf("Display() = %q, want failure prefix", reply.Display())
	}
	if !strings.HasSuffix(reply.Display(), ")") {
		t.Errorf("Display() = %q, want closing parenthesis", reply.Display())
	}
}

func TestOpenAIGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	reply := NewOpenAI(url+"/v1", "key", "m").Generate(context.Background(), Request{User: "q"})
	if reply.OK() {
		t.Fatal("expected a failed reply")
	}
}

func TestOpenAIPing(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"object": "list", "data": [{"id": "m", "object": "model"}]}`, nil)
	if err := NewOpenAI(srv.URL+"/v1", "key", "m").Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	bad := newTestServer(t, http.StatusUnauthorized, `{"error": {"message": "bad key"}}`, nil)
	if err := NewOpenAI(bad.URL+"/v1", "key", "m").Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail on 401")
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, Config{BaseURL: "http://localhost:1/v1", Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(*OpenAI); !ok {
		t.Errorf("empty provider should select OpenAI, got %T", b)
	}

	if _, err := New(ctx, Config{Provider: "gemini"}); err == nil {
		t.Error("expected an error for gemini without a key")
	}
	if _, err := New(ctx, Config{Provider: "mystery"}); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestGeneratorFunc(t *testing.T) {
	var seen Request
	g := GeneratorFunc(func(_ context.Context, req Request) Reply {
		seen = req
		return Reply{Text: "ok"}
	})
	reply := g.Generate(context.Background(), Request{System: "s", User: "u", Temperature: 0.3})
	if reply.Text != "ok" || seen.User != "u" || seen.System != "s" {
		t.Errorf("unexpected call: reply=%+v req=%+v", reply, seen)
	}
}
