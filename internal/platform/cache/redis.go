package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options configures the Redis client shared by the role cache and the asynq
// queue.
type Options struct {
	Addr string
	// OpTimeout bounds each read and write. Role lookups fall back to Postgres
	// when it expires, so it should stay below the store timeout.
	OpTimeout time.Duration
	PoolSize  int
}

func (o Options) redisOptions() *redis.Options {
	opts := &redis.Options{Addr: o.Addr, PoolSize: o.PoolSize}
	if o.OpTimeout > 0 {
		opts.DialTimeout = o.OpTimeout
		opts.ReadTimeout = o.OpTimeout
		opts.WriteTimeout = o.OpTimeout
		opts.PoolTimeout = o.OpTimeout
	}
	return opts
}

// New creates a Redis client and verifies it answers a ping.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.redisOptions())

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
