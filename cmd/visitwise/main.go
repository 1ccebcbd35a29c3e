package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/visitwise/visitwise/config"
	"github.com/visitwise/visitwise/internal/delivery/telegram"
	"github.com/visitwise/visitwise/internal/delivery/web"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/infrastructure/gemini"
	"github.com/visitwise/visitwise/internal/infrastructure/llm"
	"github.com/visitwise/visitwise/internal/infrastructure/ollama"
	"github.com/visitwise/visitwise/internal/infrastructure/openai"
	"github.com/visitwise/visitwise/internal/infrastructure/parser"
	"github.com/visitwise/visitwise/internal/infrastructure/storage"
	"github.com/visitwise/visitwise/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("VisitWise stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.Info("Config loaded", slog.Any("config", cfg))

	// Repositories
	medicineRepo := storage.NewMemoryMedicineRepository()
	medicineUseCase := usecase.NewMedicineUseCase(medicineRepo)

	catalogPath, err := catalogPath(cfg)
	if err != nil {
		return err
	}
	count, err := medicineUseCase.Load(ctx, parser.NewMedicineLoader(catalogPath), catalogPath)
	if err != nil {
		return err
	}
	slog.Info("Medicine catalog loaded", slog.String("path", catalogPath), slog.Int("records", count))

	sessionRepo, err := newSessionRepository(cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("session store", sessionRepo)

	aiRepo, err := newAIRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("model client", aiRepo)

	// Use cases
	triageUseCase := usecase.NewTriageUseCase(aiRepo, sessionRepo, medicineRepo, cfg.Model.Timeout)

	// Delivery
	var bot *telegram.BotHandler
	if cfg.Telegram.Token != "" {
		bot, err = telegram.NewBotHandler(cfg.Telegram.Token, triageUseCase, medicineUseCase)
		if err != nil {
			return err
		}
		slog.Info("Telegram front end enabled", slog.String("bot", bot.GetBotUsername()))
	} else {
		slog.Info("TELEGRAM_BOT_TOKEN not set, Telegram front end disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewHandler(triageUseCase, medicineUseCase).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram bot: %w", err)
			}
		}()
	}

	if cfg.Data.SessionIdleTTL > 0 {
		go sweepIdleSessions(ctx, triageUseCase, cfg.Data.SessionIdleTTL)
	}

	slog.Info("VisitWise successfully started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("HTTP server shutdown failed", slog.Any("error", shutdownErr))
	}

	slog.Info("VisitWise gracefully shutdown")
	return err
}

// sweepIdleSessions evicts idle sessions every quarter TTL, at most once a minute
func sweepIdleSessions(ctx context.Context, triageUseCase usecase.TriageUseCase, ttl time.Duration) {
	interval := max(ttl/4, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := triageUseCase.PruneIdle(ctx, ttl)
			if err != nil {
				slog.Error("Failed to prune idle sessions", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				slog.Info("Pruned idle sessions", slog.Int("removed", removed))
			}
		}
	}
}

// catalogPath MEDICINES_FILE wins over DATA_DIR/medicines.csv
func catalogPath(cfg *config.Config) (string, error) {
	if cfg.Data.MedicinesFile != "" {
		return cfg.Data.MedicinesFile, nil
	}
	path, err := parser.ResolveCatalogPath(cfg.Data.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve medicine catalog: %w", err)
	}
	return path, nil
}

func newSessionRepository(cfg *config.Config) (repository.SessionRepository, error) {
	if cfg.Data.ChatDBPath == "" {
		return storage.NewMemorySessionRepository(), nil
	}
	repo, err := storage.NewSQLiteSessionRepository(cfg.Data.ChatDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	slog.Info("Chat transcripts stored in SQLite", slog.String("path", cfg.Data.ChatDBPath))
	return repo, nil
}

func newAIRepository(ctx context.Context, cfg *config.Config) (repository.AIRepository, error) {
	settings := llm.Settings{
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	}

	switch cfg.Model.Provider {
	case config.ProviderGemini:
		return gemini.NewGeminiClient(ctx, cfg.Model.GeminiAPIKey, settings)
	case config.ProviderOllama:
		return ollama.NewOllamaClient(cfg.Model.OllamaHost, settings, nil)
	default:
		return openai.NewOpenAIClient(openai.Options{
			APIKey:   cfg.Model.OpenAIAPIKey,
			BaseURL:  cfg.Model.OpenAIBaseURL,
			Settings: settings,
		})
	}
}

func closeQuietly(name string, v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Close failed", slog.String("component", name), slog.Any("error", err))
	}
}
