package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/api"
	"github.com/selivandex/market-pulse/internal/app"
	"github.com/selivandex/market-pulse/internal/health"
	"github.com/selivandex/market-pulse/internal/sentiment"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.InitConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("market pulse api starting...",
		zap.String("mode", cfg.API.QueryMode),
		zap.String("port", cfg.API.Port),
	)

	infra, err := app.InitInfrastructure(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	checker := health.NewChecker()
	checker.Add("database", infra.DB.Health)
	if infra.Redis != nil {
		checker.Add("redis", infra.Redis.Health)
	}

	server := api.NewServer(cfg.API.Port, newStrategy(cfg, infra), checker)

	scheduler, err := startScheduler(cfg, infra)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, starting graceful shutdown...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		scheduler.Stop(20 * time.Second)
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server stop error", zap.Error(err))
	}

	logger.Info("shutdown completed")
	return nil
}

func newStrategy(cfg *config.Config, infra *app.Infra) api.Strategy {
	if cfg.API.QueryMode != config.QueryModeLive {
		return api.NewPrecomputedStrategy(infra.DB.DB())
	}

	opts := []api.LiveOption{
		api.WithHistory(sentiment.NewRepository(infra.DB.DB())),
		api.WithStoredStocks(stocks.NewRepository(infra.DB.DB())),
	}
	if infra.Redis != nil {
		opts = append(opts, api.WithCache(infra.Redis))
	}

	return api.NewLiveStrategy(
		api.LiveConfigFrom(cfg),
		app.NewPostFetcher(cfg),
		app.NewMarketData(cfg),
		app.NewScorer(cfg),
		opts...,
	)
}

// startScheduler runs the ingest job in-process when INGEST_SCHEDULE is set
func startScheduler(cfg *config.Config, infra *app.Infra) (*worker.Scheduler, error) {
	if cfg.Ingest.Schedule == "" {
		return nil, nil
	}

	scheduler := worker.NewScheduler()
	if err := scheduler.Add(cfg.Ingest.Schedule, app.NewIngestJob(cfg, infra)); err != nil {
		return nil, err
	}
	scheduler.Start()

	return scheduler, nil
}
