package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"racketoutlet-be/internal/config"
	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv, zap.String("service", cfg.ServiceName))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Error("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.AppEnv, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.L().Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	flushSentry, err := telemetry.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer flushSentry()

	database := db.InitDB(cfg)
	defer database.Close()

	redisClient := newRedisClient(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier, closeNotifier := newNotifier(cfg)
	defer closeNotifier()

	a := newApp(cfg, database, redisClient, notifier)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.L().Info("shutting down http server")
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		return a.reconciler.Run(gctx)
	})

	g.Go(func() error {
		a.limiter.Cleanup(gctx)
		return nil
	})

	return g.Wait()
}
