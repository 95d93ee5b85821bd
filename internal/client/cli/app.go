// Package cli is the interactive client: a prompt loop over the sync
// engine, mirroring what the mobile form UI drives in production.
package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/kollectcare/trialsync/internal/client/config"
	"github.com/kollectcare/trialsync/internal/client/lifecycle"
	"github.com/kollectcare/trialsync/internal/client/listener"
	"github.com/kollectcare/trialsync/internal/client/remote"
	"github.com/kollectcare/trialsync/internal/client/service"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/client/syncer"
	"github.com/kollectcare/trialsync/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	store      *store.Store
	remote     *remote.HTTPStore
	subscriber *remote.WSSubscriber
	service    *service.Service
	controller *lifecycle.Controller

	userName string
	Mode     Mode
	reader   *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	st, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	rs := remote.NewHTTPStore(c.ServerEndpointAddr, "", 0)
	sub := remote.NewWSSubscriber(c.ServerEndpointAddr, "", logger)

	sy := syncer.New(st, rs, logger)
	ln := listener.New(st, sub, logger)
	ctrl := lifecycle.New(sy, ln, logger, c.SyncInterval)

	svc := service.New(st, sy, logger)

	return &App{
		config:     c,
		logger:     logger,
		store:      st,
		remote:     rs,
		subscriber: sub,
		service:    svc,
		controller: ctrl,
		Mode:       ModeOffline,
		reader:     bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
		a.controller.SetOnline(ctx, mode == ModeOnline)
	}
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.controller.Start(ctx)
	defer a.controller.Stop()
	defer a.store.Close()

	a.Root(ctx)
}
