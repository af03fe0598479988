package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
)

// DistributedLock wraps redlock-go so only one process runs a job at a time
type DistributedLock struct {
	lockManager *redlock.RedLock
	jobName     string
	lockName    string
	ttl         time.Duration

	mu     sync.Mutex
	locked bool
	stop   context.CancelFunc
}

// NewDistributedLock creates new distributed lock using redlock-go
func NewDistributedLock(lockManager *redlock.RedLock, jobName string, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &DistributedLock{
		lockManager: lockManager,
		jobName:     jobName,
		lockName:    fmt.Sprintf("job:lock:%s", jobName),
		ttl:         ttl,
	}
}

// TryAcquire attempts to acquire exclusive lock using Redlock algorithm
// Returns true if lock was acquired, false if the job runs elsewhere
func (dl *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.locked {
		return false, nil
	}

	expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
	if err != nil {
		logger.Debug("job lock already held",
			zap.String("job", dl.jobName),
			zap.String("lock_name", dl.lockName),
		)
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock: invalid expiry %v", expiry)
	}

	dl.locked = true

	renewCtx, cancel := context.WithCancel(context.Background())
	dl.stop = cancel

	logger.Debug("job lock acquired",
		zap.String("job", dl.jobName),
		zap.Duration("ttl", dl.ttl),
		zap.Duration("expiry", expiry),
	)

	// Start automatic lock renewal
	go dl.renewLock(renewCtx)

	return true, nil
}

// Release releases the Redis distributed lock
func (dl *DistributedLock) Release(ctx context.Context) error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if !dl.locked {
		return nil
	}

	if dl.stop != nil {
		dl.stop()
		dl.stop = nil
	}
	dl.locked = false

	if err := dl.lockManager.UnLock(ctx, dl.lockName); err != nil {
		// lock may have already expired
		logger.Warn("failed to release job lock",
			zap.String("job", dl.jobName),
			zap.Error(err),
		)
	}
	return nil
}

// renewLock extends the lock at 2/3 of its TTL until released
func (dl *DistributedLock) renewLock(ctx context.Context) {
	renewInterval := (dl.ttl * 2) / 3
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			// redlock-go has no extend, so release and re-acquire
			dl.mu.Lock()
			if !dl.locked {
				dl.mu.Unlock()
				return
			}

			_ = dl.lockManager.UnLock(ctx, dl.lockName)
			expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("job lock lost during renewal",
					zap.String("job", dl.jobName),
					zap.Error(err),
				)
				dl.locked = false
				dl.mu.Unlock()
				return
			}
			dl.mu.Unlock()
		}
	}
}

func (dl *DistributedLock) Name() string {
	return dl.jobName
}
