package app

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/redis/go-redis/v9"
)

// OpenSlot opens the durable slot selected by the storage driver.
func OpenSlot(ctx context.Context, cfg config.Storage) (repository.Slot, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return repository.NewSQLiteSlot(cfg.SQLitePath)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return repository.NewRedisSlot(client, cfg.RedisTTL), nil
	case config.DriverMongo:
		return repository.OpenMongoSlot(ctx, cfg.MongoURI, cfg.MongoDB)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
