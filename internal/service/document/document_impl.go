package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/agent"
	"github.com/feichai0017/pdf-dispatcher/internal/classifier"
	"github.com/feichai0017/pdf-dispatcher/internal/dispatch"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/converters"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/queue"
	"github.com/feichai0017/pdf-dispatcher/pkg/sink"
	"github.com/feichai0017/pdf-dispatcher/pkg/storage"
)

// ErrResultNotReady is returned for results of tasks that have not completed
var ErrResultNotReady = errors.New("result is not ready")

// Pipeline is the part of *dispatch.Pipeline the service drives
type Pipeline interface {
	Classify(ctx context.Context, doc *models.Document) classifier.Classification
	Process(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

type DocumentService struct {
	pipeline  Pipeline
	queue     queue.Queue
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter *converters.JSONConverter
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	UploadPrefix    string
	ImagePrefix     string
	ResultPrefix    string
	QueuePriority   int
	MaxConcurrent   int
	ProcessTimeout  time.Duration
	RetentionPeriod time.Duration
	StartPage       int
	Debug           bool
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		UploadPrefix:    "uploads",
		ImagePrefix:     "images",
		ResultPrefix:    "results",
		QueuePriority:   2,
		MaxConcurrent:   5,
		ProcessTimeout:  30 * time.Minute,
		RetentionPeriod: 24 * time.Hour,
	}
}

func NewService(
	pipeline Pipeline,
	q queue.Queue,
	store storage.Storage,
	v *validator.DocumentValidator,
	log logger.Logger,
	sc *ServiceConfig,
) *DocumentService {
	if sc == nil {
		sc = DefaultServiceConfig()
	}
	if v == nil {
		v = validator.NewDocumentValidator(log, nil)
	}
	return &DocumentService{
		pipeline:  pipeline,
		queue:     q,
		storage:   store,
		validator: v,
		converter: converters.NewJSONConverter(),
		logger:    log.Named("document-service"),
		config:    sc,
	}
}

// GetService wires the service from the dispatcher, redis and storage configuration
func GetService(ctx context.Context, log logger.Logger) (*DocumentService, error) {
	dc := cfg.GetDispatcherConfig()

	store, err := storage.NewStorage(ctx, storage.StorageType(dc.Storage), dc.LocalRoot, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	pipeline, err := agent.NewEngineFactory(dc, log).NewPipeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	vc := validator.DefaultValidatorConfig()
	vc.MaxFileSize = dc.MaxFileSize

	sc := DefaultServiceConfig()
	sc.ImagePrefix = dc.ImagePrefix
	sc.ResultPrefix = dc.ResultPrefix
	sc.StartPage = dc.StartPage
	sc.Debug = dc.Debug
	if dc.DocumentTimeout > 0 {
		sc.ProcessTimeout = dc.DocumentTimeout
	}

	return NewService(pipeline, q, store, validator.NewDocumentValidator(log, vc), log, sc), nil
}

func (s *DocumentService) readUpload(header *multipart.FileHeader) ([]byte, error) {
	result, data, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}
	return data, nil
}

// ClassifyFile classifies an upload synchronously without dispatching it
func (s *DocumentService) ClassifyFile(ctx context.Context, header *multipart.FileHeader) (*classifier.Classification, error) {
	data, err := s.readUpload(header)
	if err != nil {
		return nil, err
	}
	cls := s.pipeline.Classify(ctx, &models.Document{ID: header.Filename, Data: data})
	return &cls, nil
}

// ProcessFile stores an upload and queues it for dispatch
func (s *DocumentService) ProcessFile(ctx context.Context, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	data, err := s.readUpload(header)
	if err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	filename := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	now := time.Now()

	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentDispatch,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": filename,
			"size":     fmt.Sprintf("%d", len(data)),
		},
	}

	fileID, err := s.storage.Store(ctx, bytes.NewReader(data), path.Join(s.config.UploadPrefix, taskID, filename))
	if err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: map[string]interface{}{
			"fileId":   fileID,
			"filename": filename,
		},
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
	}
	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    queue.StatusPending,
		StartedAt: now,
	})

	s.logger.Info("File processing task created",
		logger.String("taskId", taskID),
		logger.String("filename", filename),
	)
	return task, nil
}

// ProcessBatch queues every file. Tasks are returned in the order of files; on error the
// tasks created so far are returned with it.
func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}
	for i, header := range files {
		i, header := i, header
		g.Go(func() error {
			task, err := s.ProcessFile(gctx, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			tasks[i] = task
			return nil
		})
	}
	err := g.Wait()

	created := make([]*models.ProcessingTask, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			created = append(created, t)
		}
	}
	return created, err
}

// HandleDocument runs the dispatch pipeline for a queued task and stores the result
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.Payload == nil || task.Metadata == nil {
		return fmt.Errorf("invalid task: missing required data")
	}
	fileID, _ := task.Payload["fileId"].(string)
	if fileID == "" {
		return fmt.Errorf("invalid task %s: missing file id", task.ID)
	}

	ctx = logger.WithTaskID(ctx, task.ID)
	log := logger.FromContext(ctx, s.logger)
	log.Info("Processing document", logger.String("filename", task.Metadata["filename"]))

	started := time.Now()
	s.saveStatus(ctx, &queue.TaskStatus{TaskID: task.ID, Status: queue.StatusRunning, StartedAt: started})

	if s.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ProcessTimeout)
		defer cancel()
	}

	data, err := s.load(ctx, fileID)
	if err != nil {
		s.finish(ctx, task, started, nil, err)
		return err
	}

	docID := task.Metadata["filename"]
	if docID == "" {
		docID = path.Base(fileID)
	}
	doc := &models.Document{ID: docID, Data: data}

	res, err := s.pipeline.Process(ctx, dispatch.Request{
		Document:  doc,
		Images:    sink.NewStorageSink(s.storage, path.Join(s.config.ImagePrefix, task.ID), s.logger),
		StartPage: s.config.StartPage,
		Debug:     s.config.Debug,
	})
	if errors.Is(err, dispatch.ErrUnknownDocument) {
		log.Warn("Skipping unknown document", logger.Error(err))
		s.finish(ctx, task, started, res, err)
		return nil
	}
	if err != nil {
		log.Error("Document failed", logger.Error(err))
		s.finish(ctx, task, started, res, err)
		return fmt.Errorf("failed to dispatch document: %w", err)
	}

	if err := s.storeResult(ctx, task.ID, &models.DocumentResult{
		DocumentID: doc.ID,
		Type:       res.Classification.Type,
		Status:     models.DocumentSucceeded,
		Outcome:    res.Outcome,
		Duration:   time.Since(started),
	}); err != nil {
		s.finish(ctx, task, started, res, err)
		return err
	}

	s.finish(ctx, task, started, res, nil)
	log.Info("Document processing completed",
		logger.String("type", string(res.Classification.Type)),
		logger.String("parseType", string(res.Outcome.ParseType)),
		logger.Int("pages", len(res.Outcome.Pages)),
	)
	return nil
}

func (s *DocumentService) load(ctx context.Context, fileID string) ([]byte, error) {
	reader, err := s.storage.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *DocumentService) resultKey(taskID string) string {
	return path.Join(s.config.ResultPrefix, taskID+".json")
}

func (s *DocumentService) storeResult(ctx context.Context, taskID string, result *models.DocumentResult) error {
	processed, err := s.converter.Convert(result)
	if err != nil {
		return fmt.Errorf("failed to convert document: %w", err)
	}
	processed.TaskID = taskID

	data, err := json.Marshal(processed)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), s.resultKey(taskID)); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// finish records the terminal status of a task
func (s *DocumentService) finish(ctx context.Context, task *queue.Task, started time.Time, res *dispatch.Result, err error) {
	status := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1.0,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if res != nil {
		status.DocumentType = string(res.Classification.Type)
		if res.Outcome != nil {
			status.ParseType = string(res.Outcome.ParseType)
		}
	}
	switch {
	case errors.Is(err, dispatch.ErrUnknownDocument):
		status.Status = queue.StatusSkipped
		status.Error = err.Error()
	case err != nil:
		status.Status = queue.StatusFailed
		status.Error = err.Error()
	}
	// the task context may already be done
	s.saveStatus(context.WithoutCancel(ctx), status)
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case queue.StatusRunning:
		taskStatus = models.StatusRunning
	case queue.StatusCompleted:
		taskStatus = models.StatusCompleted
	case queue.StatusSkipped:
		taskStatus = models.StatusSkipped
	case queue.StatusFailed:
		taskStatus = models.StatusFailed
	case queue.StatusCancelled:
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	metadata := make(map[string]string)
	if status.DocumentType != "" {
		metadata["documentType"] = status.DocumentType
	}
	if status.ParseType != "" {
		metadata["parseType"] = status.ParseType
	}

	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    taskStatus,
		Type:      queue.TaskTypeDocumentDispatch,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  metadata,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: task is %s", ErrResultNotReady, status.Status)
	}

	reader, err := s.storage.Get(ctx, s.resultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes uploads, images and results older than the retention period
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

var _ DocumentProcessor = (*DocumentService)(nil)
