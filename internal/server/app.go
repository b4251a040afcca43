// Package server assembles the chat server: storage, crypto, services, the
// realtime gateway and the HTTP API, and runs them until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/cryptox"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/dmitrijs2005/sealchat/internal/server/blobstore"
	"github.com/dmitrijs2005/sealchat/internal/server/config"
	"github.com/dmitrijs2005/sealchat/internal/server/httpapi"
	"github.com/dmitrijs2005/sealchat/internal/server/ratelimit"
	"github.com/dmitrijs2005/sealchat/internal/server/realtime"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/redis/go-redis/v9"
)

const (
	tokenPurgeInterval   = time.Hour
	limiterPruneInterval = time.Minute
)

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newS3Store           = func(ctx context.Context, opts blobstore.S3Options) (blobstore.Store, error) {
		return blobstore.NewS3Store(ctx, opts)
	}
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	closers    []io.Closer
	users      *services.UserService
	httpServer *httpapi.Server
	// background runs for the lifetime of the app alongside the HTTP server.
	background []func(ctx context.Context)
}

// NewApp wires every component from cfg. Migrations are applied before
// it returns.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(cfg.LogBackend, logOut)
	app := &App{config: cfg, logger: logger}

	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	app.db = db

	m := newRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := app.blobStore(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	cipher, err := cryptox.NewSymmetricCipher(cfg.EncryptionKey, cfg.MessageTTL)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("encryption key error: %w", err)
	}

	hub := realtime.NewHub(logger)
	limiter, broker := app.fanOut(hub)

	keys := services.NewKeyVaultService(db, m, logger)
	codec := services.NewMessageCodec(cipher, keys, blobs, logger)
	app.users = services.NewUserService(db, m, keys, cfg, logger)
	publisher := realtime.NewPublisher(broker)
	messages := services.NewMessageService(db, m, codec, limiter, publisher, cfg, logger)
	groups := services.NewGroupService(db, m, cipher, limiter, publisher, cfg, logger)
	friends := services.NewFriendService(db, m, logger)

	gateway := realtime.NewGateway(hub, messages, realtime.GatewayOptions{
		AllowAnonymous: cfg.AllowAnonymous,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Users:    app.users,
		Messages: messages,
		Friends:  friends,
		Groups:   groups,
		Resolver: auth.NewResolver([]byte(cfg.SecretKey), app.users, logger),
		Gateway:  gateway,
		DB:       db,
	}, cfg, logger)

	app.httpServer = httpapi.NewServer(cfg.EndpointAddrHTTP, router, logger)
	app.background = append(app.background, app.purgeRefreshTokens)

	return app, nil
}

func (app *App) blobStore(ctx context.Context) (blobstore.Store, error) {
	switch app.config.BlobBackend {
	case "memory":
		app.logger.Warn(ctx, "attachments are kept in memory and lost on restart")
		return blobstore.NewMemoryStore(), nil
	case "s3", "":
		s, err := newS3Store(ctx, blobstore.S3Options{
			Region:       app.config.S3Region,
			AccessKey:    app.config.S3RootUser,
			SecretKey:    app.config.S3RootPassword,
			Bucket:       app.config.S3Bucket,
			BaseEndpoint: app.config.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", app.config.BlobBackend)
	}
}

// fanOut picks the rate limiter and room broker. With Redis configured both
// are shared across server processes; otherwise they live in this process.
func (app *App) fanOut(hub *realtime.Hub) (ratelimit.Limiter, realtime.Broker) {
	opts := ratelimit.Options{Max: app.config.RateLimitMessages, Window: app.config.RateLimitWindow}

	if app.config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
		app.closers = append(app.closers, client)

		broker := realtime.NewRedisBroker(client, hub, app.logger)
		app.background = append(app.background, func(ctx context.Context) {
			// Run keeps resubscribing until ctx is done
			if err := broker.Run(ctx); err != nil {
				app.logger.Error(ctx, "redis broker stopped", "error", err)
			}
		})
		return ratelimit.NewRedisLimiter(client, opts), broker
	}

	limiter := ratelimit.NewMemoryLimiter(opts, nil)
	app.background = append(app.background, func(ctx context.Context) {
		limiter.RunPruner(ctx, limiterPruneInterval)
	})
	return limiter, realtime.NewLocalBroker(hub)
}

func (app *App) purgeRefreshTokens(ctx context.Context) {
	t := time.NewTicker(tokenPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := app.users.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// HTTP server fails, then releases every resource.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup
	for _, task := range app.background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task(ctx)
		}()
	}

	err := app.httpServer.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
	}
	cancelFunc()
	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) close() {
	var errs []error
	for _, c := range app.closers {
		errs = append(errs, c.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(context.Background(), "shutdown error", "error", err)
	}
}
