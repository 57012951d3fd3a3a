// Hangman - browser word-guessing game server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/hangman/internal/api"
	"github.com/ashureev/hangman/internal/config"
	"github.com/ashureev/hangman/internal/display"
	"github.com/ashureev/hangman/internal/game"
	"github.com/ashureev/hangman/internal/health"
	"github.com/ashureev/hangman/internal/identity"
	"github.com/ashureev/hangman/internal/middleware"
	"github.com/ashureev/hangman/internal/shared"
	"github.com/ashureev/hangman/internal/store"
	"github.com/ashureev/hangman/internal/words"
	"github.com/ashureev/hangman/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const (
	sweepInterval       = 5 * time.Minute
	healthCheckInterval = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Path, cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	source, err := newWordSource(cfg.Words, logger)
	if err != nil {
		slog.Error("Failed to initialize word source", "error", err)
		os.Exit(1)
	}
	slog.Info("Word source ready", "source", cfg.Words.Source, "filter", cfg.Words.Filter)

	// Initialize services.
	hub := display.NewHub()
	games := game.NewManager(game.Config{
		MaxAttempts:       cfg.Game.MaxAttempts,
		DefaultWordLength: cfg.Game.DefaultWordLength,
		MinWordLength:     cfg.Game.MinWordLength,
		MaxWordLength:     cfg.Game.MaxWordLength,
		UsedWordTTL:       cfg.UsedWordTTL,
		Retry: shared.RetryPolicy{
			MaxRetries: cfg.Retry.DatabaseMaxRetries,
			BaseDelay:  cfg.Retry.DatabaseRetryBaseDelay,
		},
	}, source, repo, hub)

	// Initialize handlers.
	origins := cfg.AllowedOrigins()
	gameHandler := api.NewGameHandler(api.NewHandler(repo), games)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	wsHandler := display.NewWebSocketHandler(games, hub, repo, origins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Player routes use the anonymous identity cookie.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		gameHandler.RegisterRoutes(r)
		r.Get("/ws/game", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler(web.Assets()))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	games.StartSweeper(ctx, cfg.SessionTTL, sweepInterval)

	if cfg.GRPCPort != "" {
		checker := health.NewChecker(repo, cfg.Timeout.HealthCheck)
		checker.Start(ctx, healthCheckInterval)
		go func() {
			if err := health.Serve(ctx, ":"+cfg.GRPCPort, checker); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newWordSource builds the configured word source chain.
func newWordSource(cfg config.WordsConfig, logger *slog.Logger) (words.Source, error) {
	table := words.DefaultFrequencyTable()
	if cfg.FreqFile != "" {
		f, err := os.Open(cfg.FreqFile)
		if err != nil {
			return nil, fmt.Errorf("open frequency file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if table, err = words.LoadFrequencyTable(f); err != nil {
			return nil, fmt.Errorf("load frequency file: %w", err)
		}
	}

	var accept words.Predicate = words.AcceptAll
	if cfg.Filter == "zipf" {
		accept = words.MinZipf(table, cfg.MinZipf)
	}

	apiSource := func() words.Source {
		return words.NewAPISource(words.APIConfig{
			URL:           cfg.APIURL,
			Timeout:       cfg.APITimeout,
			CacheTTL:      cfg.CacheTTL,
			RatePerSecond: cfg.FetchRate,
			Accept:        accept,
		}, logger)
	}

	switch cfg.Source {
	case "api":
		return apiSource(), nil
	case "embedded":
		return words.NewEmbeddedSource(table), nil
	case "api+embedded":
		return words.Chain(apiSource(), words.NewEmbeddedSource(table)), nil
	default:
		return nil, fmt.Errorf("unknown word source %q", cfg.Source)
	}
}
