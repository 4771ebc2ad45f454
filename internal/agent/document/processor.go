package document

import (
	"context"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/sink"
)

// Engine is an extraction engine (text layer or OCR) driven by a parse strategy
type Engine interface {
	// Name identifies the engine in logs and outcomes
	Name() string

	// Parse extracts the document content. Images are written to req.Images as a side effect.
	Parse(ctx context.Context, req *ParseRequest) (*models.EngineResult, error)
}

// ParseRequest carries everything an engine needs for one run
type ParseRequest struct {
	Document  *models.Document
	Analysis  *models.ModelAnalysis
	Images    sink.ImageSink
	StartPage int // 0-based, pages before it are skipped
	Debug     bool
}

// FirstPage converts the 0-based StartPage into a 1-based page number
func (r *ParseRequest) FirstPage() int {
	if r.StartPage < 0 {
		return 1
	}
	return r.StartPage + 1
}

// Sink returns the image sink, falling back to one that drops everything
func (r *ParseRequest) Sink() sink.ImageSink {
	if r.Images == nil {
		return sink.Discard
	}
	return r.Images
}
