package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/edumentor/internal/handler"
	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/kb"
	"github.com/pavelanni/edumentor/internal/llm"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/quiz"
	"github.com/pavelanni/edumentor/internal/store"
	"github.com/pavelanni/edumentor/internal/tutor"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "edumentor",
		Short:        "Study assistant: tutor chat and quizzes grounded in your own material",
		SilenceUsage: true,
	}
	addCommonFlags(root)

	serve := serveCmd()
	root.AddCommand(serve, sessionCmd(), indexCmd(), askCmd(), quizCmd(), exportCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `edumentor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every subcommand shares.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("db", "edumentor.db", "SQLite database path")
	f.String("provider", llm.ProviderOpenAI, "Model provider (openai, gemini)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "", "Model name (provider default when empty)")
	f.String("gemini-key", "", "API key for Gemini")
	f.Float64("temperature", float64(tutor.DefaultTemperature), "Chat sampling temperature")
	f.StringP("lang", "l", "en", "Language for answers and messages (en, id)")
	f.String("style", "", "Answer style, e.g. formal or semi-formal")
	f.String("domain", "", "Subject area the tutor speaks for")
	f.Int("chunk-size", kb.DefaultChunkSize, "Knowledge base chunk size in characters")
	f.Int("chunk-overlap", kb.DefaultChunkOverlap, "Overlap between consecutive chunks in characters")
	f.Int("context-budget", kb.DefaultBudget, "Maximum knowledge base size in characters")
	f.Int("quiz-count", quiz.DefaultCount, "Default number of quiz questions")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EDUMENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("edumentor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/edumentor")
	v.AddConfigPath("/etc/edumentor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is the wiring shared by all commands.
type app struct {
	v       *viper.Viper
	store   *store.Store
	tutor   *tutor.Service
	backend llm.Backend // nil for commands that never call the model
}

var errNoModel = errors.New("this command does not call the model")

// newApp opens the store, loads translations and builds the tutor service.
// The model backend is created only when withModel is set.
func newApp(cmd *cobra.Command, withModel bool) (*app, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	a := &app{v: v}
	var gen llm.Generator = llm.GeneratorFunc(func(context.Context, llm.Request) llm.Reply {
		return llm.Failed(errNoModel)
	})
	if withModel {
		backend, err := llm.New(cmd.Context(), llm.Config{
			Provider:  v.GetString("provider"),
			BaseURL:   v.GetString("llm-url"),
			APIKey:    v.GetString("llm-key"),
			Model:     v.GetString("llm-model"),
			GeminiKey: v.GetString("gemini-key"),
		})
		if err != nil {
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		a.backend = backend
		gen = backend
	}

	svc, err := tutor.New(gen, &kb.Builder{
		ChunkSize:    v.GetInt("chunk-size"),
		ChunkOverlap: v.GetInt("chunk-overlap"),
		Budget:       v.GetInt("context-budget"),
	}, model.TutorConfig{
		Language:    lang,
		Style:       v.GetString("style"),
		Domain:      v.GetString("domain"),
		Temperature: float32(v.GetFloat64("temperature")),
		QuizCount:   v.GetInt("quiz-count"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create tutor: %w", err)
	}
	a.tutor = svc

	db, err := store.New(v.GetString("db"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.store = db
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()
	v := a.v

	if err := a.backend.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "provider", v.GetString("provider"), "model", v.GetString("llm-model"))

	h := handler.New(a.store, a.tutor)

	addr := v.GetString("addr")
	cfg := a.tutor.Config()
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", cfg.Language,
		"domain", cfg.Domain,
		"quiz_count", cfg.QuizCount,
		"context_budget", v.GetInt("context-budget"),
	)
	return http.ListenAndServe(addr, h.Router())
}
