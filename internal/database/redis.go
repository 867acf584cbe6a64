package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/imbroke/backend/internal/config"
	"go.uber.org/zap"
)

// ConnectRedis returns a ready client, or nil when Redis cannot be reached.
// Every Redis consumer in the service treats a nil client as "feature off".
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, continuing without redis",
			zap.String("addr", cfg.Addr()),
			zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr()))
	return rdb
}
