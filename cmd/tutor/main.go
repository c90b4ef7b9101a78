package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/tutor/internal/handler"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Conversational homework review powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, chatCmd(), configCmd(), resetCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tutor HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("llm-key", "", "Server API key for the OpenAI-compatible backend (or set TUTOR_LLM_KEY)")
	f.String("gemini-key", "", "Server API key for Gemini models (or set TUTOR_GEMINI_KEY)")
	f.StringP("model", "m", "gpt-4o-mini", "Default model when a request names none")
	f.Duration("llm-timeout", 60*time.Second, "Deadline for one upstream model call (0 = none)")
	f.Int64("max-body", 1<<20, "Maximum request body size in bytes")
	f.StringP("lang", "l", "es", "Default language for error messages (en, es)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServerConfig{
		APIKey:       strings.TrimSpace(v.GetString("llm-key")),
		GeminiKey:    strings.TrimSpace(v.GetString("gemini-key")),
		DefaultModel: strings.TrimSpace(v.GetString("model")),
		LLMTimeout:   v.GetDuration("llm-timeout"),
		MaxBodyBytes: v.GetInt64("max-body"),
	}
	if cfg.APIKey == "" && cfg.GeminiKey == "" {
		slog.Warn("no server API key configured; requests must supply apiKey")
	}

	tutor := llm.NewTutor(llm.NewRouter(llm.NewOpenAI(v.GetString("llm-url")), llm.NewGemini()))
	h := handler.New(tutor, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", cfg.DefaultModel,
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"llm_timeout", cfg.LLMTimeout,
		"server_key", cfg.APIKey != "",
		"gemini_key", cfg.GeminiKey != "",
	)
	return http.ListenAndServe(addr, r)
}
