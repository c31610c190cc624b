package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"overtone/internal/config"
)

const (
	queueKey   = "overtone:signals"
	pendingKey = "overtone:signals:pending"
)

// RedisTransport carries wake-up signals over a Redis list. Dequeue
// moves the signal into a pending list atomically, so a worker crash
// between dequeue and ack leaves the signal recoverable; Ack removes it
// and Nack pushes it back for redelivery.
type RedisTransport struct {
	rdb *redis.Client
}

// NewRedis connects to Redis and verifies the connection before
// returning.
func NewRedis(ctx context.Context, cfg *config.Redis) (*RedisTransport, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisTransport{rdb: rdb}, nil
}

func (t *RedisTransport) Enqueue(ctx context.Context, jobID string) error {
	if err := t.rdb.LPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue signal: %w", err)
	}
	return nil
}

func (t *RedisTransport) Dequeue(ctx context.Context, block time.Duration) (Delivery, error) {
	id, err := t.rdb.BLMove(ctx, queueKey, pendingKey, "RIGHT", "LEFT", block).Result()
	if errors.Is(err, redis.Nil) {
		return Delivery{}, ErrEmpty
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("dequeue signal: %w", err)
	}
	return Delivery{JobID: id}, nil
}

func (t *RedisTransport) Ack(ctx context.Context, d Delivery) error {
	if err := t.rdb.LRem(ctx, pendingKey, 1, d.JobID).Err(); err != nil {
		return fmt.Errorf("ack signal: %w", err)
	}
	return nil
}

func (t *RedisTransport) Nack(ctx context.Context, d Delivery) error {
	pipe := t.rdb.TxPipeline()
	pipe.LRem(ctx, pendingKey, 1, d.JobID)
	pipe.LPush(ctx, queueKey, d.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack signal: %w", err)
	}
	return nil
}

func (t *RedisTransport) Depth(ctx context.Context) (int64, error) {
	depth, err := t.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}
