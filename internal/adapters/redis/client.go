package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/pkg/logger"
)

// Client wraps RedLock manager for the ingest job lock + standard Redis for
// the live response cache
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
	redisAddrs  []string
}

// New creates new Redis client with RedLock support + caching
func New(cfg *config.RedisConfig) (*Client, error) {
	// Single instance; redlock accepts more addresses for a quorum
	redisAddrs := []string{"tcp://" + cfg.Addr()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("redis redlock manager initialized",
		zap.Strings("addresses", redisAddrs),
	)

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		_ = cacheClient.Close()
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}

	logger.Info("redis cache client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{
		lockManager: lockManager,
		redisAddrs:  redisAddrs,
		cache:       cacheClient,
	}, nil
}

// NewJobLock returns a distributed lock for the named job
func (c *Client) NewJobLock(name string, ttl time.Duration) JobLock {
	return NewDistributedLock(c.lockManager, name, ttl)
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}

	return nil
}

// Health checks redis health
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// ============ CACHING METHODS ============

// Lookup returns the cached value for key; found is false on a miss
func (c *Client) Lookup(ctx context.Context, key string) (value []byte, found bool, err error) {
	value, err = c.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Store caches value under key with TTL
func (c *Client) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.cache.Set(ctx, key, value, ttl).Err()
}
