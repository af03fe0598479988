package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/app"
	"github.com/selivandex/market-pulse/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one ingest run. Resources are closed before returning so a
// failed run can exit non-zero without skipping cleanup.
func run(ctx context.Context) error {
	cfg, err := app.InitConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	infra, err := app.InitInfrastructure(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	job := app.NewIngestJob(cfg, infra)

	result, err := job.Execute(ctx)
	if err != nil {
		return fmt.Errorf("ingest run failed: %w", err)
	}

	logger.Info("ingest finished",
		zap.String("run_id", result.RunID.String()),
		zap.Int("posts", result.PostsStored),
		zap.Int("stocks", result.StocksStored),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return nil
}
