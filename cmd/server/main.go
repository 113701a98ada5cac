package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-inventory/internal/logging"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/api"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(os.Stdout, cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	cfg.Logger = logger

	svc, err := cfg.BuildService()
	if err != nil {
		return fmt.Errorf("building service: %w", err)
	}
	defer func() {
		if err := cfg.Close(); err != nil {
			logger.Error("failed to close stores", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}

	logger.Info("inventory server starting",
		"addr", ln.Addr().String(),
		"environment", cfg.Environment,
		"record_store", cfg.Records.Type,
		"asset_store", cfg.Assets.Type)

	return serve(ctx, &http.Server{Handler: newHandler(svc, cfg)}, ln, logger)
}

func newHandler(svc simpleinventory.Service, cfg *config.ServerConfig) http.Handler {
	return api.NewServer(svc, api.ServerOptions{
		Logger:         cfg.Logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Environment:    cfg.Environment,
	})
}

// serve runs srv on ln until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
