package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/possync/internal/app"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/handlers"
	"github.com/prudhvinik1/possync/internal/logger"
	"github.com/prudhvinik1/possync/internal/services"
	"golang.org/x/exp/slog"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	// Initialize store connections and the sync service
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	deps := handlers.RouterDeps{
		Syncer:            a.Sync,
		WebhookSecretHash: cfg.WebhookSecretHash,
		Metrics:           a.Metrics,
		Gatherer:          a.Prometheus,
		AllowedOrigins:    cfg.AllowedOrigins(),
		Status: handlers.StatusOptions{
			StatusEnv: cfg.TableServiceEnv(),
			HealthEnv: cfg.MCPEnv(),
		},
		Log: log,
	}
	if a.MCP.Configured() {
		deps.Status.MCP = a.MCP
	}
	if cfg.JWTSecret != "" {
		deps.Auth = services.NewDispatcherAuth(cfg.JWTSecret)
	}

	// Start Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("starting server", slog.String("port", cfg.ServerPort), slog.String("env", cfg.Env))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.Any("error", err))
		a.Close()
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}
