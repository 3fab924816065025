package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/companion/internal/api"
	"github.com/hyperengineering/companion/internal/config"
	"github.com/hyperengineering/companion/internal/engine"
	"github.com/hyperengineering/companion/internal/fallback"
	"github.com/hyperengineering/companion/internal/journal"
	"github.com/hyperengineering/companion/internal/ritual"
	"github.com/hyperengineering/companion/internal/store"
	"github.com/hyperengineering/companion/internal/webhook"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Companion - Personal Chat Service",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Outbound webhook client, ritual trigger, journal
	client := webhook.NewClient(time.Duration(cfg.Chat.WebhookTimeout))
	registry := ritual.NewRegistry(db)
	trigger := ritual.NewService(registry, db, client, logger)
	answers := journal.NewService(db)

	// 6. Fallback responder: configured webhook wins, model when a key is set
	var model fallback.Responder
	if cfg.Fallback.APIKey != "" {
		model = fallback.NewModel(cfg.Fallback.APIKey, cfg.Fallback.Model)
		slog.Info("fallback model initialized", "model", cfg.Fallback.Model)
	}
	fb := fallback.NewFunc(func(ctx context.Context) string {
		s, err := db.GetSettings(ctx)
		if err != nil {
			return ""
		}
		return s.FallbackWebhook
	}, client, model)

	// 7. Load persisted history and build the engine
	history := engine.NewHistory()
	msgs, err := db.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	history.Load(msgs)
	slog.Info("history loaded", "messages", len(msgs))

	eng := engine.New(history, db, db, registry, trigger, answers, client, fb, engine.Options{
		ContextWindow: cfg.Chat.ContextWindow,
		Logger:        logger,
	})

	// 8. HTTP router with the live event feed
	hub := api.NewHub(history, logger)
	handler := api.NewHandler(db, eng, trigger, answers, fb, Version)
	router := api.NewRouter(handler, hub)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Worker lifecycle infrastructure
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "countdown", func(ctx context.Context) {
		// Fire timers that expired while the process was down, then let the
		// engine's shared clock take over.
		eng.Resume(ctx)
		<-ctx.Done()
	})

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	hub.Close()
	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
