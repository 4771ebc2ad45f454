package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
	"github.com/feichai0017/pdf-dispatcher/pkg/worker"
)

func main() {
	dc := cfg.GetDispatcherConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(dc.LogLevel),
		logger.WithEncoding(dc.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"version": version.Version}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docService, err := document.GetService(ctx, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}

	documentWorker, err := worker.NewDocumentWorker(worker.ConfigFromEnv(), docService, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// uploads, images and results past the retention period
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := docService.CleanupTasks(ctx); err != nil {
					log.Error("Cleanup failed", logger.Error(err))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	cancel()
	documentWorker.Stop()
	log.Info("Worker stopped")
}
