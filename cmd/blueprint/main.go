// Package main is the entry point for the Blueprint Engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/blueprint-engine/internal/classify"
	"github.com/anthropics/blueprint-engine/internal/config"
	"github.com/anthropics/blueprint-engine/internal/guard"
	"github.com/anthropics/blueprint-engine/internal/ipc"
	"github.com/anthropics/blueprint-engine/internal/llm"
	"github.com/anthropics/blueprint-engine/internal/retrieval"
	"github.com/anthropics/blueprint-engine/internal/store"
	"github.com/anthropics/blueprint-engine/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration YAML file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		fmt.Printf("blueprint %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	// Resolve config path: -config flag > BLUEPRINT_CONFIG env > auto-discover.
	// With no file anywhere, built-in defaults apply.
	path := *configPath
	if path == "" {
		path = os.Getenv("BLUEPRINT_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
		logger.Info("no config file found, using defaults")
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			fatal(fmt.Sprintf("load config: %v", err))
		}
		cfg = loaded
		logger.Info("config loaded", "path", path)
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()
	recorder := store.NewRecorder(db)

	vocab, err := classify.LoadVocabulary(cfg.VocabularyPath)
	if err != nil {
		fatal(fmt.Sprintf("load vocabulary: %v", err))
	}

	g := guard.New(guard.Limits{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SpendBudgetUSD:     cfg.SpendBudgetUSD,
	})

	client := llm.NewAnthropic(llmOptions(cfg, logger)...)

	// Wire the engine.
	engine := workflow.NewEngine(client, g, logger)
	engine.Recorder = recorder
	engine.Classifier = classify.NewClassifier(vocab)
	engine.IterationLimit = cfg.IterationLimit
	engine.Executor.Timeout = time.Duration(cfg.ParticipantTimeoutSec) * time.Second

	if cfg.ReferenceDocsPath != "" {
		docs, err := retrieval.LoadDirectory(cfg.ReferenceDocsPath)
		if err != nil {
			fatal(fmt.Sprintf("load reference docs: %v", err))
		}
		engine.Searcher = retrieval.NewMemoryIndex(docs)
		logger.Info("reference corpus loaded", "documents", len(docs))
	}

	handler := &ipc.Handler{
		Engine:   engine,
		Recorder: recorder,
		Guard:    g,
		Logger:   logger,
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("blueprint engine listening", "addr", cfg.ListenAddr, "model", client.Model())

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		fatal(fmt.Sprintf("server error: %v", err))
	}
}

// llmOptions converts the config's llm section into client options, leaving
// client defaults in place for empty fields.
func llmOptions(cfg *config.Config, logger *slog.Logger) []llm.Option {
	opts := []llm.Option{llm.WithLogger(logger)}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Model != "" {
		opts = append(opts, llm.WithModel(cfg.LLM.Model))
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	if cfg.LLM.MaxRetries > 0 {
		opts = append(opts, llm.WithMaxRetries(cfg.LLM.MaxRetries))
	}
	if key := os.Getenv(cfg.LLM.APIKeyEnv); key != "" {
		opts = append(opts, llm.WithAPIKey(key))
	}
	return opts
}

// discoverConfig looks for blueprint.yaml next to the executable, then in
// the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "blueprint.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("blueprint.yaml"); err == nil {
		return "blueprint.yaml"
	}
	return ""
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	os.Exit(1)
}
