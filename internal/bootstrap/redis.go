package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptops/insight-pipeline/internal/config"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const redisPingTimeout = 5 * time.Second

// SetupRedis connects to Redis, which backs both the job queue and the
// analysis cache.
func SetupRedis(cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	return client, nil
}
