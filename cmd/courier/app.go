package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/db"
	"github.com/nkiryanov/courier/internal/handlers"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/repository"
	"github.com/nkiryanov/courier/internal/repository/memory"
	"github.com/nkiryanov/courier/internal/repository/postgres"
	"github.com/nkiryanov/courier/internal/service/auth"
	"github.com/nkiryanov/courier/internal/service/chat"
	"github.com/nkiryanov/courier/internal/service/effects"
	"github.com/nkiryanov/courier/internal/service/ledger"
	"github.com/nkiryanov/courier/internal/service/notify"
	"github.com/nkiryanov/courier/internal/service/order"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	hub     *notify.Hub
	sweeper *effects.Sweeper
	bridge  *notify.RedisBridge
	logger  logger.Logger

	// Release connections after server stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	minAmount, err := decimal.NewFromString(c.LedgerMinAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger min amount %q: %w", c.LedgerMinAmount, err)
	}

	tokenManager, err := auth.NewTokenManager(auth.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger}

	// Connect to the database and run migrations
	var storage repository.Storage
	if c.DatabaseDSN == "" {
		logger.Warn("Database is not configured, data is kept in memory")
		storage = memory.NewStorage()
	} else {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		storage = postgres.NewStorage(pool)
	}

	// Changes reach local subscribers directly and other instances through redis
	hub := notify.NewHub(notify.DefaultBufferSize, logger.With("component", "notify"))
	app.hub = hub
	publisher := notify.Publishers{hub}
	if c.RedisAddr != "" {
		client := notify.NewRedisClient(c.RedisAddr)
		if err := client.Ping(ctx).Err(); err != nil {
			app.close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		app.bridge = notify.NewRedisBridge(client, hub, logger.With("component", "notify"))
		publisher = append(publisher, notify.NewRedisPublisher(client))
	}

	// Initialize services
	ledgerService := ledger.NewService(storage, ledger.Config{Currency: c.Currency, MinAmount: minAmount}, publisher, logger.With("component", "ledger"))
	chatService := chat.NewService(storage, publisher, logger.With("component", "chat"))
	dispatcher := effects.NewDispatcher(storage, ledgerService, chatService, logger.With("component", "effects"))
	orderService := order.NewService(storage, dispatcher, publisher, c.Currency, logger.With("component", "order"))

	app.sweeper = effects.NewSweeper(storage, dispatcher, effects.SweeperConfig{
		Workers:    c.EffectWorkers,
		Interval:   c.SweepInterval,
		RetryDelay: c.EffectRetryDelay,
	}, logger.With("component", "sweeper"))

	app.Handler = handlers.NewRouter(handlers.Services{
		Tokens:  tokenManager,
		Orders:  orderService,
		Wallets: ledgerService,
		Chat:    chatService,
		Events:  hub,
	}, logger.With("component", "http"))

	return app, nil
}

// Run starts http server with background workers and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never finish on their own
	httpServer.RegisterOnShutdown(s.hub.Close)

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	var bridgeStopped <-chan struct{}
	if s.bridge != nil {
		var err error
		bridgeStopped, err = s.bridge.Start(srvCtx)
		if err != nil {
			return err
		}
	}
	sweeperStopped := s.sweeper.Sweep(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
			_ = httpServer.Close()
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	<-sweeperStopped
	if bridgeStopped != nil {
		<-bridgeStopped
	}

	return err
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
