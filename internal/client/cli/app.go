package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/catchkeeper/internal/client/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/client/backup"
	"github.com/dmitrijs2005/catchkeeper/internal/client/cache"
	"github.com/dmitrijs2005/catchkeeper/internal/client/config"
	"github.com/dmitrijs2005/catchkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/catchkeeper/internal/client/remote"
	"github.com/dmitrijs2005/catchkeeper/internal/client/scheduler"
	"github.com/dmitrijs2005/catchkeeper/internal/client/services"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncqueue"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
)

type backupRunner interface {
	Run(ctx context.Context) (string, error)
}

// App bundles the services a command runs against.
type App struct {
	cfg     *config.Config
	logger  logging.Logger
	catches services.CatchService
	auth    services.AuthService
	cache   *cache.Cache
	backup  backupRunner

	// closers run in reverse order on Close.
	closers []func() error
}

// AppFactory builds the App for one command invocation.
type AppFactory func(ctx context.Context, cfg *config.Config) (*App, error)

// offlineAuthenticator stands in for the server when none is configured.
type offlineAuthenticator struct{}

func (offlineAuthenticator) Register(context.Context, string, string) (string, error) {
	return "", common.ErrUnavailable
}

func (offlineAuthenticator) Login(context.Context, string, string) (string, error) {
	return "", common.ErrUnavailable
}

func (offlineAuthenticator) Ping(context.Context) error {
	return common.ErrUnavailable
}

// NewApp opens the local database under cfg.DataDir and wires the sync
// engine to the configured server, or to none when ServerEndpointAddr is
// empty.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	logger, logCloser, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	app.logger = logger
	app.closers = append(app.closers, logCloser.Close)

	fail := func(err error) (*App, error) {
		_ = app.closeAll()
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, cfg.DataDir, cfg.DatabaseFile)
	if err != nil {
		return fail(fmt.Errorf("open local database: %w", err))
	}
	app.closers = append(app.closers, db.Close)

	kv := storage.NewSQLiteKV(db)
	clock := timex.System

	store := localstore.New(kv, clock, logger)
	if err := store.Init(ctx); err != nil {
		return fail(fmt.Errorf("load catches: %w", err))
	}
	queue := syncqueue.New(kv, clock, logger)
	if err := queue.Init(ctx); err != nil {
		return fail(fmt.Errorf("load sync queue: %w", err))
	}
	identity := auth.NewTokenIdentity(kv, clock, logger)

	var (
		rs            remote.Store           = remote.Disabled{}
		authenticator services.Authenticator = offlineAuthenticator{}
	)
	if cfg.RemoteEnabled() {
		g, err := remote.NewGRPCStore(cfg.ServerEndpointAddr, identity, cfg.RemoteTimeout)
		if err != nil {
			return fail(fmt.Errorf("connect %s: %w", cfg.ServerEndpointAddr, err))
		}
		app.closers = append(app.closers, g.Close)
		rs, authenticator = g, g
	}

	engine, err := syncer.New(store, queue, rs, identity, logger, syncer.Config{
		BatchSize:     cfg.BatchSize,
		PullLimit:     cfg.PullLimit,
		FullSyncLimit: cfg.FullSyncLimit,
		CommitTimeout: cfg.RemoteTimeout,
	})
	if err != nil {
		return fail(err)
	}

	app.catches = services.NewCatchService(services.Deps{
		Store:     store,
		Queue:     queue,
		Engine:    engine,
		Scheduler: scheduler.New(engine, cfg.PullLimit, logger),
		Clock:     clock,
		Logger:    logger,
	})
	app.auth = services.NewAuthService(authenticator, identity)
	app.cache = cache.New(kv, clock, logger)
	app.backup = backup.NewService(backup.Settings{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Passphrase:   cfg.BackupPassphrase,
	}, store, queue, identity, clock, logger)

	return app, nil
}

// Close stops background work, flushes the store and releases the database
// and remote connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.catches != nil {
		if err := a.catches.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
