package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-splitter/internal/advisor"
	"github.com/zombor/receipt-splitter/internal/config"
	"github.com/zombor/receipt-splitter/internal/ledger"
	"github.com/zombor/receipt-splitter/internal/metrics"
	"github.com/zombor/receipt-splitter/internal/model"
	"github.com/zombor/receipt-splitter/internal/receipt"
	"github.com/zombor/receipt-splitter/internal/server"
	"github.com/zombor/receipt-splitter/internal/storage"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", config.Help())
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(cfg.Logger(os.Stderr))

	ctx := context.Background()

	provider, err := newProvider(cfg)
	if err != nil {
		slog.Error("Failed to initialize model provider", "provider", cfg.Provider, "error", err)
		os.Exit(1)
	}
	defer provider.Close()
	invoker := model.WithRetries(provider, cfg.MaxIterations, slog.Default())

	// Initialize storage
	slog.Info("Initializing storage...", "bucket", cfg.Storage.Bucket, "region", cfg.Storage.Region)
	s3Client, err := storage.NewS3Client(ctx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to create S3 client", "error", err)
		os.Exit(1)
	}
	store, err := storage.NewBlobStore(ctx, cfg.Storage, s3Client)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	led, err := newLedger(cfg)
	if err != nil {
		slog.Error("Failed to initialize ledger", "ledger", cfg.Ledger, "error", err)
		os.Exit(1)
	}
	defer led.Close()

	extractor := receipt.NewExtractor(store, invoker,
		receipt.WithTimeout(cfg.ModelTimeout),
		receipt.WithRecorder(metrics.Recorder{}),
	)
	adv := advisor.New(invoker, advisor.WithTimeout(cfg.ModelTimeout))

	srv := server.NewServer(extractor, adv, led, server.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", cfg.Addr(), "provider", cfg.Provider, "ledger", cfg.Ledger, "version", version)
	if cfg.AuthUser != "" || cfg.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}

func newProvider(cfg *config.Config) (model.Provider, error) {
	settings := model.Settings{Model: cfg.Model, Temperature: float32(cfg.Temperature)}

	switch cfg.Provider {
	case config.ProviderGemini:
		slog.Info("Initializing Gemini provider...", "model", cfg.Model)
		return model.NewGemini(cfg.GeminiKey, settings)
	case config.ProviderOllama:
		slog.Info("Initializing Ollama provider...", "url", cfg.OllamaURL, "model", cfg.Model)
		return model.NewOllama(cfg.OllamaURL, settings)
	case config.ProviderOpenAI:
		slog.Info("Initializing OpenAI provider...", "url", cfg.OpenAIURL, "model", cfg.Model)
		return model.NewOpenAI(cfg.OpenAIURL, cfg.OpenAIKey, settings)
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func newLedger(cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger {
	case config.LedgerSplitwise:
		slog.Info("Initializing Splitwise ledger...", "url", cfg.SplitwiseURL)
		return ledger.NewSplitwise(cfg.SplitwiseURL, cfg.SplitwiseKey, slog.Default())
	case config.LedgerLocal:
		slog.Info("Initializing local ledger...", "path", cfg.LedgerDB)
		local, err := ledger.NewLocal(cfg.LedgerDB)
		if err != nil {
			return nil, err
		}
		if cfg.LedgerSeed != "" {
			if err := local.ImportFile(cfg.LedgerSeed); err != nil {
				local.Close()
				return nil, err
			}
			slog.Info("Loaded ledger seed", "path", cfg.LedgerSeed)
		}
		return local, nil
	}
	return nil, fmt.Errorf("unknown ledger %q", cfg.Ledger)
}
