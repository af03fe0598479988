package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
)

// Worker interface that background workers should implement
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// Scheduler runs workers on cron specs. A run that is still going when the
// next tick fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	names  []string
}

// NewScheduler creates new scheduler; times are evaluated in UTC
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{})),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules worker on spec (standard 5-field cron or @every/@hourly)
func (s *Scheduler) Add(spec string, w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddJob(spec, s.job(w)); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, w.Name(), err)
	}

	s.names = append(s.names, w.Name())
	logger.Info("worker scheduled",
		zap.String("worker", w.Name()),
		zap.String("schedule", spec),
	)
	return nil
}

// job wraps w so overlapping ticks are skipped and failures are logged
func (s *Scheduler) job(w Worker) cron.Job {
	run := cron.FuncJob(func() {
		start := time.Now()
		if err := w.Run(s.ctx); err != nil {
			logger.Error("worker execution failed",
				zap.String("worker", w.Name()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}

		logger.Debug("worker execution finished",
			zap.String("worker", w.Name()),
			zap.Duration("duration", time.Since(start)),
		)
	})

	return cron.NewChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})).Then(run)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()

	logger.Info("scheduler started",
		zap.Strings("workers", s.names),
	)
}

// Stop cancels running workers and waits up to timeout for them to return
func (s *Scheduler) Stop(timeout time.Duration) {
	logger.Info("stopping scheduler...")

	// stopped is done once every running job has returned
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		logger.Info("scheduler stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("scheduler stop timeout")
	}
}

// cronLogger routes robfig/cron logging through zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
