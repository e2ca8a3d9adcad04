package main

import (
	"fmt"
	"os"

	"github.com/aescanero/factllm/internal/config"
	eventsmemory "github.com/aescanero/factllm/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/factllm/pkg/adapters/events/redis"
	limitermemory "github.com/aescanero/factllm/pkg/adapters/ratelimit/memory"
	limiterredis "github.com/aescanero/factllm/pkg/adapters/ratelimit/redis"
	storagememory "github.com/aescanero/factllm/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/factllm/pkg/adapters/storage/redis"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const consumerGroup = "factllm-workers"

// newRateLimiter returns the limiter shared by every call of this process,
// or by every process using the same credential when backed by Redis
func newRateLimiter(cfg *config.Config, cc domain.ClientConfig, client *goredis.Client, logger *zap.Logger) (ports.RateLimiter, error) {
	if cfg.RateLimitBackend == config.BackendRedis {
		key := limiterredis.KeyForClient(cc)
		logger.Info("using shared rate limiter", zap.String("key", key))
		return limiterredis.NewSlidingWindowLimiter(client, key, cc.MaxRequestsPerMinute, cc.Window(), logger)
	}
	return limitermemory.NewSlidingWindowLimiter(cc.MaxRequestsPerMinute, cc.Window(), limitermemory.WithLogger(logger))
}

func newRunStorage(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.RunStorage {
	if cfg.StorageBackend == config.BackendRedis {
		return storageredis.NewRunStorage(client, cfg.Runs.TTL, logger)
	}
	return storagememory.NewInMemoryRunStorage()
}

func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.EventBus, error) {
	if cfg.EventsBackend != config.BackendRedis {
		return eventsmemory.NewInMemoryEventBus(logger), nil
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "factllm"
	}
	consumer := fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])

	return eventsredis.NewStreamsEventBus(client, consumerGroup, consumer, logger,
		eventsredis.WithBroadcastTopics(ports.TopicProgress))
}
