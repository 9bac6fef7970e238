package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot keeps slots in redis. A zero ttl keeps keys forever; otherwise
// each write refreshes the expiry with up to maxJitter added so that guest
// carts written together do not expire together.
type RedisSlot struct {
	client    *redis.Client
	ttl       time.Duration
	maxJitter time.Duration
}

func NewRedisSlot(client *redis.Client, ttl time.Duration) *RedisSlot {
	return &RedisSlot{
		client:    client,
		ttl:       ttl,
		maxJitter: 5 * time.Minute,
	}
}

func (r *RedisSlot) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, slotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisSlot) Write(ctx context.Context, key string, blob []byte) error {
	ttl := r.ttl
	if ttl > 0 {
		ttl += time.Duration(rand.Int63n(int64(r.maxJitter) + 1))
	}
	if err := r.client.Set(ctx, slotKey(key), blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSlot) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, slotKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisSlot) Close() error {
	return r.client.Close()
}

func slotKey(key string) string {
	return fmt.Sprintf("storefront:%s", key)
}
