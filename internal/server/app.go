// Package server wires the authentication core together and runs the HTTP
// and gRPC transports plus the refresh token sweeper until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/retryx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/blacklist"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const totpSealSalt = "authkeeper/totp-seed/v1"

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	blacklist   *blacklist.RedisBlacklist
	authService *services.AuthService
	sweeper     *services.Sweeper
}

// NewApp opens the stores, applies migrations and builds the services.
// cfg must already be validated.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	codec, err := auth.NewCodec([]byte(cfg.SecretKey), cfg.Issuer)
	if err != nil {
		return nil, err
	}

	// rotating SecretKey makes stored TOTP seeds unreadable
	box, err := cryptox.NewBox(cryptox.DeriveKey([]byte(cfg.SecretKey), []byte(totpSealSalt)))
	if err != nil {
		return nil, err
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	policy := retryx.Policy{
		Attempts:  cfg.StoreRetryAttempts,
		BaseDelay: cfg.StoreRetryBaseDelay,
		Timeout:   cfg.StoreTimeout,
	}

	bl := blacklist.NewRedisBlacklist(rdb, cfg.BlacklistKeyPrefix, cfg.BlacklistDefaultTTL, policy, logger.With("module", "blacklist"))
	if err := bl.Ping(ctx); err != nil {
		// requests fail with StoreUnavailable until redis is reachable
		logger.Warn(ctx, "redis is not reachable at startup", "address", cfg.RedisAddr, "error", err)
	}

	store := services.NewRefreshTokenStore(db, rm, cfg.RefreshTokenValidityDuration, policy, logger)
	gate := auth.NewTOTPGate(cfg.TOTPIssuer, cfg.TOTPPeriod, cfg.TOTPSkew)
	svc := services.NewAuthService(db, rm, codec, gate, box, bl, store, cfg.AccessTokenValidityDuration, policy, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		redis:       rdb,
		blacklist:   bl,
		authService: svc,
		sweeper:     services.NewSweeper(store, cfg.SweepInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.authService, app.logger,
		httpapi.ReadinessCheck{Name: "postgres", Check: app.db.PingContext},
		httpapi.ReadinessCheck{Name: "redis", Check: app.blacklist.Ping},
	)

	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	identity := gs.NewIdentityServer(
		gs.ReadinessCheck{Name: "postgres", Check: app.db.PingContext},
		gs.ReadinessCheck{Name: "redis", Check: app.blacklist.Ping},
	)
	opts := []gs.Option{gs.WithIdentityService(identity)}
	if app.config.Env != logging.EnvProd {
		opts = append(opts, gs.WithReflection())
	}

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService, opts...)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives, ctx is cancelled or a transport fails,
// then waits for every component to stop and closes the stores.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "redis close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
