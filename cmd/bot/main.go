package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	environment "iptv-bot/internal/env"
)

func main() {
	ctx := context.Background()

	env, err := environment.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup environment: %v", err)
	}
	defer env.Close()

	logger := env.Logger
	logger.Info("Starting iptv-bot", slog.Bool("test_mode", env.Config.TestMode))

	if err := env.Services.Dispatcher.Start(); err != nil {
		logger.Error("Failed to start dispatcher", slog.Any("error", err))
		return
	}

	if err := env.Services.Workers.Start(); err != nil {
		logger.Error("Failed to start workers", slog.Any("error", err))
		_ = env.Services.Dispatcher.Stop()
		return
	}

	serve("observability", env.Servers.HTTP.Observability, logger)
	serve("api", env.Servers.HTTP.API, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bot started successfully")
	<-quit

	logger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.Config.ShutdownDuration)
	defer cancel()

	// Inbound traffic stops first so queued messages and provisioning jobs can drain.
	if err := env.Servers.HTTP.API.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", slog.Any("error", err))
	}

	env.Services.Workers.Stop(shutdownCtx)

	if err := env.Services.Dispatcher.Stop(); err != nil {
		logger.Error("Dispatcher shutdown error", slog.Any("error", err))
	}

	drained := make(chan struct{})
	go func() {
		env.Services.Pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("Provisioning jobs still running at shutdown deadline")
	}

	if err := env.Servers.HTTP.Observability.Shutdown(shutdownCtx); err != nil {
		logger.Error("Observability server shutdown error", slog.Any("error", err))
	}

	logger.Info("Application stopped")
}

func serve(name string, srv *http.Server, logger *slog.Logger) {
	go func() {
		logger.Info("Starting server", slog.String("name", name), slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", slog.String("name", name), slog.Any("error", err))
		}
	}()
}
