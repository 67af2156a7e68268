package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/directory"
	"github.com/BrandonDHaskell/canteen/internal/canteen/notify"
	"github.com/BrandonDHaskell/canteen/internal/canteen/service"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store/sqlite"
	"github.com/BrandonDHaskell/canteen/internal/db"
	"github.com/BrandonDHaskell/canteen/internal/grpcapi"
	"github.com/BrandonDHaskell/canteen/internal/httpapi"
	"github.com/BrandonDHaskell/canteen/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admission HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) (err error) {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	m := metrics.New()

	// DB
	sqlDB, err := db.Open(ctx, cfg.DB(logger))
	if err != nil {
		return err
	}
	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, sqlDB); err != nil {
			logger.Warn("dev seed failed", zap.Error(err))
		}
	}
	writer := db.NewWorker(sqlDB,
		db.WithAcquireTimeout(cfg.WriteLockTimeout),
		db.WithWaitObserver(m.ObserveWriteWait),
	)

	// Stores
	ledger := sqlite.NewLedger(sqlDB, writer)
	cache := directory.New(sqlite.NewDirectoryStore(sqlDB), directory.Config{
		MaxAge:    cfg.DirectoryMaxAge,
		OnRefresh: m.DirectoryRefreshed,
	}, logger)
	if err := cache.Refresh(ctx); err != nil {
		// Lookups read through to the database until a refresh succeeds.
		logger.Warn("initial directory load failed", zap.Error(err))
	}
	refresher := directory.NewRefresher(cache, cfg.DirectoryRefreshInterval, logger)

	// Notifications
	sinks := []notify.Notifier{notify.NewLogNotifier(logger)}
	var broker *notify.AMQPNotifier
	if cfg.RabbitURL != "" {
		broker, err = notify.DialAMQP(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return err
		}
		sinks = append(sinks, broker)
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Buffer:     cfg.NotifyBuffer,
		MaxRetries: 3,
		OnDrop:     m.NotificationDropped,
		OnFail:     m.NotificationFailed,
	}, logger, sinks...)

	// Services
	norm := service.NewNormalizer(loc, time.Now)
	registry := service.NewDeviceRegistry(cache, sqlite.NewDeviceStore(writer), logger)
	admissions := service.NewAdmissionService(cache, ledger, norm, logger,
		service.WithPublisher(dispatcher),
		service.WithObserver(m),
		service.WithDeviceRegistry(registry),
	)
	queries := service.NewQueryService(ledger, norm)

	ready := func(ctx context.Context) error { return sqlDB.PingContext(ctx) }

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Admissions: admissions,
		Queries:    queries,
		Directory:  cache,
		Metrics:    m.Handler(),
		Ready:      ready,
		RetryAfter: cfg.WriteLockTimeout,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	refresher.Start(runCtx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("tz", loc.String()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var health *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		health = grpcapi.NewServer(grpcapi.Config{Ready: ready, Interval: 5 * time.Second}, logger)
		go func() {
			if err := health.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-runCtx.Done():
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	// Stop intake first, then drain writes and notifications before closing
	// the database.
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	var result *multierror.Error
	if health != nil {
		health.Stop(shutdownCtx)
	}
	if e := srv.Shutdown(shutdownCtx); e != nil {
		result = multierror.Append(result, e)
	}
	refresher.Stop()
	if e := registry.Close(shutdownCtx); e != nil {
		result = multierror.Append(result, e)
	}
	writer.Close()
	if e := dispatcher.Close(shutdownCtx); e != nil {
		result = multierror.Append(result, e)
	}
	if broker != nil {
		if e := broker.Close(); e != nil {
			result = multierror.Append(result, e)
		}
	}
	if e := sqlDB.Close(); e != nil {
		result = multierror.Append(result, e)
	}

	if err != nil {
		result = multierror.Append(result, err)
	}
	logger.Info("stopped")
	return result.ErrorOrNil()
}
