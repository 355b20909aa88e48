// Package server assembles the catchkeeper sync server: PostgreSQL storage,
// the gRPC sync service and the HTTP health endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/server/config"
	"github.com/dmitrijs2005/catchkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/catchkeeper/internal/server/services"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/catchkeeper/internal/server/grpc"
)

// Seams for tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	servers []runner
	closers []io.Closer
}

// NewApp opens the database, applies migrations and builds the servers.
// Nothing listens until Run.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	app := &App{config: cfg, logger: logger, closers: []io.Closer{logCloser}}

	secret := cfg.SecretKey
	if secret == "" {
		if secret, err = common.MakeRandHexString(32); err != nil {
			return nil, errors.Join(fmt.Errorf("secret key: %w", err), app.Close())
		}
		logger.Warn(ctx, "No secret key configured; generated an ephemeral one, tokens will not survive a restart")
	}

	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("db init error: %w", err), app.Close())
	}
	app.db = db
	app.closers = append(app.closers, db)

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, errors.Join(fmt.Errorf("migrations: %w", err), app.Close())
	}

	users := services.NewUserService(db, rm, []byte(secret), cfg.AccessTokenValidityDuration, timex.System)
	catches := services.NewSyncService(db, rm, cfg.MaxBatchSize)

	app.servers = append(app.servers, gs.NewGRPCServer(cfg.EndpointAddrGRPC, logger, users, catches, db, []byte(secret)))
	if cfg.EndpointAddrHTTP != "" {
		app.servers = append(app.servers, httpapi.NewServer(cfg.EndpointAddrHTTP, db, timex.System, logger))
	}
	return app, nil
}

// Run serves until ctx is cancelled or any server fails; a failure stops
// the others.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range app.servers {
		g.Go(func() error { return s.Run(gctx) })
	}
	err := g.Wait()

	app.logger.Info(ctx, "App stopped")
	return err
}

// Close releases the database and the log file, newest first.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}
