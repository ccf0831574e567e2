package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/ban"
	bansqlite "github.com/parlorchat/parlor-server/internal/ban/sqlite"
	"github.com/parlorchat/parlor-server/internal/config"
	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/log"
	"github.com/parlorchat/parlor-server/internal/transport/ws"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	persist         *bansqlite.Persister
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	var persist ban.Persister
	var sqlitePersist *bansqlite.Persister
	if cfg.BanDBPath != "" {
		p, err := bansqlite.New(cfg.BanDBPath)
		if err != nil {
			return nil, fmt.Errorf("init ban db: %w", err)
		}
		persist = p
		sqlitePersist = p
		logger.Info().Str("ban_db_path", cfg.BanDBPath).Msg("ban database initialized")
	}

	bans, err := ban.NewStore(log.Component(logger, "ban"), persist, nil)
	if err != nil {
		return nil, fmt.Errorf("init ban store: %w", err)
	}

	coreLog := log.Component(logger, "core")
	reg := core.NewRegistry(cfg, bans, coreLog)
	bans.SetKicker(reg)

	coord := core.NewCoordinator(cfg.Reconnect, reg, coreLog, nil)
	server := ws.NewServer(reg, coord, cfg, log.Component(logger, "ws"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		persist:         sqlitePersist,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the ban database and other resources.
func (a *App) cleanup() {
	if a.persist != nil {
		if err := a.persist.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close ban db")
		} else {
			a.log.Info().Msg("ban db closed")
		}
	}
}
