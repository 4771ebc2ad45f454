package config

import (
	"sync"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig backs the asynq queue and the task status cache
type RedisConfig struct {
	Addr        string
	DB          int
	Concurrency int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()

		redisConfig = &RedisConfig{
			Addr:        envString("REDIS_ADDR", "localhost:6379"),
			DB:          envInt("REDIS_DB", 0),
			Concurrency: envInt("WORKER_CONCURRENCY", 10),
		}
	})
	return redisConfig
}
