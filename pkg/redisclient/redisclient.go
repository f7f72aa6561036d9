package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/metrics"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTimeout            = errors.New("operation timeout")
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32 // 0: closed, 1: open, 2: half-open
}

// New constructs a Client with sensible defaults & retry logic
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.New("invalid REDIS_URL: " + err.Error())
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Seconds()

	metrics.RedisOperationDuration.WithLabelValues(operation, getStatus(err)).Observe(duration)
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}

	return err
}

func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// checkCircuitBreaker opens the breaker after 5 consecutive failures and
// half-opens it again on the next success.
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil {
		atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

		if atomic.LoadInt64(&c.failureCount) >= 5 {
			atomic.CompareAndSwapInt32(&c.state, 0, 1) // closed -> open
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
		}
	} else {
		atomic.StoreInt64(&c.failureCount, 0)
		atomic.CompareAndSwapInt32(&c.state, 1, 2) // open -> half-open
	}
}

// HSet sets a hash with retry
func (c *Client) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return c.withMetrics("hset", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := c.rdb.HSet(ctx, key, values).Err()
			c.checkCircuitBreaker(err)
			return err
		}
		return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	})
}

// Publish wraps rdb.Publish with a short timeout
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	return c.withMetrics("publish", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := c.rdb.Publish(ctx, channel, msg).Err()
		c.checkCircuitBreaker(err)
		return err
	})
}

// Expire sets a TTL on a key so stale window snapshots age out
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.withMetrics("expire", func() error {
		if atomic.LoadInt32(&c.state) == 1 {
			return ErrCircuitBreakerOpen
		}

		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		err := c.rdb.Expire(ctx, key, ttl).Err()
		c.checkCircuitBreaker(err)
		return err
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Client returns the underlying Redis client for direct access
func (c *Client) Client() *redis.Client {
	return c.rdb
}
