// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

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

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/database"
	"codeberg.org/oliverandrich/resumekit/internal/handlers"
	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// App is an opened database with the services wired on top of it.
type App struct {
	Config   *config.Config
	DB       *sqlx.DB
	Services *Services
}

// Open reads the configuration, sets up logging and opens the database.
func Open(cmd *cli.Command) (*App, error) {
	cfg := config.NewFromCLI(cmd)
	setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// i18n
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	// Database and migrations
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sender, err := email.NewSender(&cfg.SMTP)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create mail sender: %w", err)
	}

	svc, err := NewServices(cfg, repository.New(db), sender)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{Config: cfg, DB: db, Services: svc}, nil
}

// Close releases the database.
func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	app, err := Open(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.Services.Janitor.Run(ctx)

	e := NewEcho(cfg, app.DB, app.Services)
	return startWithGracefulShutdown(ctx, e, cfg)
}

// NewEcho builds the HTTP server with middleware and routes.
func NewEcho(cfg *config.Config, db *sqlx.DB, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg, svc)
	setupRoutes(e, db, svc)

	return e
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
