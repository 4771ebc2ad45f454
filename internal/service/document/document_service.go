package document

import (
	"context"
	"mime/multipart"

	"github.com/feichai0017/pdf-dispatcher/internal/classifier"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/converters"
	"github.com/feichai0017/pdf-dispatcher/pkg/queue"
)

type DocumentProcessor interface {
	ClassifyFile(ctx context.Context, header *multipart.FileHeader) (*classifier.Classification, error)
	ProcessFile(ctx context.Context, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
}
