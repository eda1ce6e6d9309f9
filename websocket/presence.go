package websocket

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// presenceStore keeps per-user connection counters that expire unless
// refreshed, so counters of a crashed instance eventually disappear.
type presenceStore interface {
	Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	Touch(ctx context.Context, key string, seed int64, ttl time.Duration) error
	Get(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

type redisPresence struct {
	client *redis.Client
}

func (p redisPresence) Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, delta)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Touch extends the key's lifetime, recreating it with seed if it expired
func (p redisPresence) Touch(ctx context.Context, key string, seed int64, ttl time.Duration) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, seed, ttl)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (p redisPresence) Get(ctx context.Context, key string) (int64, error) {
	n, err := p.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (p redisPresence) Delete(ctx context.Context, key string) error {
	return p.client.Del(ctx, key).Err()
}
