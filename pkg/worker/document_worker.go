package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/queue"
)

// DocumentWorker consumes document dispatch tasks from asynq
type DocumentWorker struct {
	BaseWorker
	docService document.DocumentProcessor
}

func NewDocumentWorker(wc *Config, docService document.DocumentProcessor, log logger.Logger) (*DocumentWorker, error) {
	if wc == nil || wc.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	log = log.Named("worker")

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: wc.RedisAddr, DB: wc.RedisDB},
		asynq.Config{
			Concurrency: wc.Concurrency,
			Queues:      wc.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		docService: docService,
	}
	w.mux.HandleFunc(queue.TaskTypeDocumentDispatch, w.handleDocumentDispatch)
	return w, nil
}

func (w *DocumentWorker) handleDocumentDispatch(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	if task.ID == "" || task.Metadata == nil || task.Payload == nil {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("metadata", task.Metadata),
		)
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	ctx = logger.WithTaskID(ctx, task.ID)
	w.logger.Info("Dispatching document task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Metadata["filename"]),
	)

	w.writeStatus(t, `{"status":"running","progress":0}`)
	if err := w.docService.HandleDocument(ctx, &task); err != nil {
		w.writeStatus(t, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		return err
	}
	w.writeStatus(t, `{"status":"completed","progress":100}`)
	return nil
}

// writeStatus records status as the asynq task result. Tasks built outside a server have no
// result writer.
func (w *DocumentWorker) writeStatus(t *asynq.Task, status string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(status)); err != nil {
		w.logger.Error("Failed to write task status", logger.Error(err))
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
