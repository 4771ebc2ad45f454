package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/classifier"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/strategy"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/sink"
)

// ErrUnknownDocument is returned for documents that could not be classified. They are
// skipped, not failed.
var ErrUnknownDocument = errors.New("document could not be classified")

// DocumentClassifier is the classification step of the pipeline
type DocumentClassifier interface {
	Inspect(ctx context.Context, doc *models.Document) classifier.Classification
}

// Request is one document to dispatch
type Request struct {
	Document *models.Document
	// Images receives extracted images; it is scoped to the document namespace by Process
	Images    sink.ImageSink
	StartPage int
	Debug     bool
}

// Result describes how a document was dispatched
type Result struct {
	Classification classifier.Classification
	Path           Path
	Outcome        *models.ParseOutcome
}

// Pipeline classifies one document, analyzes it and runs the routed strategy
type Pipeline struct {
	classifier DocumentClassifier
	analyzer   Analyzer
	text       *strategy.Strategy
	ocr        *strategy.Strategy
	union      *Union
	logger     logger.Logger
}

func NewPipeline(c DocumentClassifier, analyzer Analyzer, text, ocr *strategy.Strategy, log logger.Logger) *Pipeline {
	return &Pipeline{
		classifier: c,
		analyzer:   analyzer,
		text:       text,
		ocr:        ocr,
		union:      NewUnion(text, ocr, analyzer, log),
		logger:     log.Named("pipeline"),
	}
}

// Classify runs only the classification step
func (p *Pipeline) Classify(ctx context.Context, doc *models.Document) classifier.Classification {
	return p.classifier.Inspect(ctx, doc)
}

// Process dispatches req.Document. The returned Result is never nil, so callers can
// report the classification of failed and skipped documents.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	doc := req.Document
	cls := p.classifier.Inspect(ctx, doc)
	result := &Result{Classification: cls, Path: Route(cls.Type)}

	if result.Path == PathSkip {
		if cls.Err != nil {
			return result, fmt.Errorf("%w: %v", ErrUnknownDocument, cls.Err)
		}
		return result, ErrUnknownDocument
	}

	analysis, err := p.analyzer.Analyze(ctx, doc.Data, false)
	if err != nil {
		return result, fmt.Errorf("analysis failed: %w", err)
	}

	parseReq := &document.ParseRequest{
		Document:  doc,
		Analysis:  analysis,
		Images:    sink.Scoped(req.Images, doc.Namespace()),
		StartPage: req.StartPage,
		Debug:     req.Debug,
	}

	logger.FromContext(logger.WithDocumentID(ctx, doc.ID), p.logger).Debug("Dispatching document",
		logger.String("type", string(cls.Type)),
		logger.String("path", string(result.Path)),
	)

	switch result.Path {
	case PathText:
		result.Outcome, err = p.text.Run(ctx, parseReq)
	case PathOCR:
		result.Outcome, err = p.ocr.Run(ctx, parseReq)
	case PathUnion:
		result.Outcome, err = p.union.Run(ctx, parseReq)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
