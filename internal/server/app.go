// Package server initializes and runs the backend: database, migrations,
// services, the watch hub and the HTTP endpoint, with graceful shutdown on
// OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kollectcare/trialsync/internal/logging"
	"github.com/kollectcare/trialsync/internal/server/archive"
	"github.com/kollectcare/trialsync/internal/server/config"
	"github.com/kollectcare/trialsync/internal/server/httpapi"
	"github.com/kollectcare/trialsync/internal/server/hub"
	"github.com/kollectcare/trialsync/internal/server/repositories/repomanager"
	"github.com/kollectcare/trialsync/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	// A typed nil inside the interface would dodge the nil check in the
	// document service, so the assignment is conditional.
	var archiver archive.Archiver
	if s3a, err := archive.NewS3Archiver(ctx, cfg); err == nil {
		archiver = s3a
	} else {
		logger.Warn(ctx, "archive disabled", "error", err)
	}

	h := hub.New()
	us := services.NewUserService(db, rm, cfg)
	ds := services.NewDocumentService(db, rm, h, archiver, logger)

	srv := httpapi.NewServer(cfg.EndpointAddr, us, ds, h, logger)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until an OS signal arrives, then shuts down and closes the
// database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.initSignalHandler(cancel)

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(ctx, "db close failed", "error", err)
		}
	}()

	return app.server.Run(ctx)
}
