package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// MarkResetConsumed marks a reset token as used via SETNX, so exactly one of
// any concurrent consume attempts wins. Returns true on first use, false if
// the token was already consumed.
func (r *RedisRepo) MarkResetConsumed(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkResetConsumed"

	key := fmt.Sprintf("reset:used:%s", tokenHash)

	success, err := r.client.SetNX(ctx, key, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
