package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"loanbook/internal/app/server/api"
	"loanbook/internal/app/server/config"
	"loanbook/internal/infrastructure/migration"
	"loanbook/internal/infrastructure/storage/postgres"
	"loanbook/internal/utils/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	sessionGCPeriod = time.Hour
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := migration.NewMigration(cfg.DB.DatabaseURI, nil, log).Up(); err != nil {
		return err
	}

	storage, err := postgres.New(ctx, cfg.DB.DatabaseURI, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	go collectExpiredSessions(ctx, postgres.NewSessionRepository(storage, log), log)

	srv := &http.Server{
		Addr:              cfg.Server.RunAddress,
		Handler:           api.New(storage, cfg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "address", cfg.Server.RunAddress, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func collectExpiredSessions(ctx context.Context, repo *postgres.SessionRepository, log *slog.Logger) {
	ticker := time.NewTicker(sessionGCPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				log.Warn("delete expired sessions", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("expired sessions deleted", "count", n)
			}
		}
	}
}
