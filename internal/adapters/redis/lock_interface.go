package redis

import (
	"context"
	"sync"
)

// JobLock guards a job against concurrent runs.
// This allows swapping implementations (in-process, Redis, PostgreSQL, ...)
type JobLock interface {
	// TryAcquire attempts to acquire exclusive lock for the job
	// Returns true if lock was acquired, false if already locked
	TryAcquire(ctx context.Context) (bool, error)

	// Release releases the lock
	Release(ctx context.Context) error

	// Name returns the job name this lock is for
	Name() string
}

// LocalLock is an in-process JobLock, used when Redis is not configured
type LocalLock struct {
	mu   sync.Mutex
	name string
}

// NewLocalLock creates an in-process lock
func NewLocalLock(name string) *LocalLock {
	return &LocalLock{name: name}
}

func (l *LocalLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *LocalLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

func (l *LocalLock) Name() string {
	return l.name
}
