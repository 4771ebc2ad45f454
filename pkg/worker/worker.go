package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	Queues      map[string]int
}

// ConfigFromEnv builds the worker configuration from REDIS_ADDR, REDIS_DB and
// WORKER_CONCURRENCY, weighting the queues 6:3:1 by priority
func ConfigFromEnv() *Config {
	rc := cfg.GetRedisConfig()
	return &Config{
		RedisAddr:   rc.Addr,
		RedisDB:     rc.DB,
		Concurrency: rc.Concurrency,
		Queues: map[string]int{
			queue.QueueCritical: 6,
			queue.QueueDefault:  3,
			queue.QueueLow:      1,
		},
	}
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopOnce sync.Once
}

func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		w.server.Shutdown()
	})
	return nil
}
