package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docstream/internal/adapter/gemini"
	"docstream/internal/app"
	"docstream/internal/config"
	"docstream/internal/logger"
	"docstream/internal/worker"
)

func main() {
	// Initialize structured logger
	base := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(base)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	var embedder worker.Embedder
	if cfg.EnableWorker {
		gem, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create embedding client", "error", err)
			os.Exit(1)
		}
		defer gem.Close()
		embedder = gem
	}

	a, err := app.New(cfg, deps.DB, deps.Producer, deps.VectorStore, embedder)
	if err != nil {
		slog.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	slog.Info("starting", "api", cfg.EnableAPI, "worker", cfg.EnableWorker)
	if err := a.Run(ctx); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}
