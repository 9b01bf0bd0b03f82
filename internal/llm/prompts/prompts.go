package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// maxQuestionRunes caps the user question placed in a prompt.
const maxQuestionRunes = 10000

var systemMarkerRegex = regexp.MustCompile(`(?im)^\s*SYSTEM:\s*`)

// Language is an output language for generated text.
type Language string

const (
	// English is the default output language.
	English Language = "en"
	// Indonesian is the language of the original course material.
	Indonesian Language = "id"
)

var languageTags = map[Language]language.Tag{
	English:    language.English,
	Indonesian: language.Indonesian,
}

// Kind is a prompt family.
type Kind string

const (
	KindTutor Kind = "tutor"
	KindQuiz  Kind = "quiz"
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]map[Language]*template.Template
)

// IsValidLanguage checks if a language code has prompt templates.
func IsValidLanguage(lang string) bool {
	_, ok := languageTags[Language(lang)]
	return ok
}

// TutorData holds template data for tutor prompts.
type TutorData struct {
	Domain   string
	Style    string
	KB       string
	Question string
}

// KBLength is the knowledge base size in characters.
func (d TutorData) KBLength() int {
	return utf8.RuneCountInString(d.KB)
}

// QuizData holds template data for quiz prompts.
type QuizData struct {
	Count   int
	Schema  string
	Context string
}

// Load parses the embedded prompt templates.
// It uses sync.Once to ensure templates are loaded only once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[Kind]map[Language]*template.Template)
		for _, kind := range []Kind{KindTutor, KindQuiz} {
			templates[kind] = make(map[Language]*template.Template)
			for lang, tag := range languageTags {
				file := "templates/" + string(kind) + "_" + string(lang) + ".txt"
				content, err := templatesFS.ReadFile(file)
				if err != nil {
					loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
					return
				}
				tmpl, err := template.New(file).Funcs(funcs(tag)).Parse(string(content))
				if err != nil {
					loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
					return
				}
				templates[kind][lang] = tmpl
			}
		}
	})
	return loadErr
}

func funcs(tag language.Tag) template.FuncMap {
	p := message.NewPrinter(tag)
	return template.FuncMap{
		"lower": strings.ToLower,
		"count": func(n int) string { return p.Sprintf("%d", n) },
	}
}

// BuildTutor renders the tutor system and user prompts.
func BuildTutor(lang Language, data TutorData) (system, user string, err error) {
	data.Question = sanitizeQuestion(data.Question)
	return build(KindTutor, lang, data)
}

// BuildQuiz renders the quiz system and user prompts.
func BuildQuiz(lang Language, data QuizData) (system, user string, err error) {
	return build(KindQuiz, lang, data)
}

func build(kind Kind, lang Language, data any) (string, string, error) {
	if err := Load(); err != nil {
		return "", "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[kind][lang]
	if !ok {
		return "", "", fmt.Errorf("unsupported prompt language: %q", lang)
	}

	var sys, usr bytes.Buffer
	if err := tmpl.ExecuteTemplate(&sys, "system", data); err != nil {
		return "", "", fmt.Errorf("render %s system prompt: %w", kind, err)
	}
	if err := tmpl.ExecuteTemplate(&usr, "user", data); err != nil {
		return "", "", fmt.Errorf("render %s user prompt: %w", kind, err)
	}
	return sys.String(), usr.String(), nil
}

// sanitizeQuestion strips line-leading system markers and caps the length.
func sanitizeQuestion(q string) string {
	q = systemMarkerRegex.ReplaceAllString(q, "")
	q = strings.TrimSpace(q)

	if utf8.RuneCountInString(q) > maxQuestionRunes {
		runes := []rune(q)
		q = string(runes[:maxQuestionRunes]) + "\n\n[Question truncated due to length]"
	}
	return q
}
