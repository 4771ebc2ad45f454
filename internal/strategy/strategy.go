// Package strategy wraps extraction engines into the two parse strategies the
// dispatcher chooses between: text-layer extraction and OCR.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// StrategyExecutionError is a failed run of a single strategy
type StrategyExecutionError struct {
	Kind       models.ParseType
	DocumentID string
	Err        error
}

func (e *StrategyExecutionError) Error() string {
	return fmt.Sprintf("%s strategy failed for %s: %v", e.Kind, e.DocumentID, e.Err)
}

func (e *StrategyExecutionError) Unwrap() error {
	return e.Err
}

// Strategy runs one engine and tags its result. The zero value is not usable;
// build one with NewText or NewOCR.
type Strategy struct {
	kind    models.ParseType
	engine  document.Engine
	version string
	logger  logger.Logger
}

// NewText builds the strategy that trusts the embedded text layer
func NewText(engine document.Engine, version string, log logger.Logger) *Strategy {
	return newStrategy(models.ParseTypeTxt, engine, version, log)
}

// NewOCR builds the strategy that recognizes page images
func NewOCR(engine document.Engine, version string, log logger.Logger) *Strategy {
	return newStrategy(models.ParseTypeOCR, engine, version, log)
}

func newStrategy(kind models.ParseType, engine document.Engine, version string, log logger.Logger) *Strategy {
	return &Strategy{
		kind:    kind,
		engine:  engine,
		version: version,
		logger:  log.Named(string(kind) + "-strategy"),
	}
}

func (s *Strategy) Kind() models.ParseType {
	return s.kind
}

// Run extracts req.Document. On success the outcome carries the strategy tag and the
// dispatcher version; NeedDrop is reported on the outcome, not as an error.
func (s *Strategy) Run(ctx context.Context, req *document.ParseRequest) (*models.ParseOutcome, error) {
	doc := req.Document
	start := time.Now()

	result, err := s.engine.Parse(ctx, req)
	if err == nil && result == nil {
		err = fmt.Errorf("engine %s returned no result", s.engine.Name())
	}
	if err != nil {
		s.logger.Warn("Strategy failed",
			logger.String("document", doc.ID),
			logger.String("engine", s.engine.Name()),
			logger.Error(err),
		)
		return nil, &StrategyExecutionError{Kind: s.kind, DocumentID: doc.ID, Err: err}
	}

	outcome := &models.ParseOutcome{
		ParseType:   s.kind,
		VersionName: s.version,
		NeedDrop:    result.NeedDrop,
		DropReason:  result.DropReason,
		Engine:      s.engine.Name(),
		Pages:       result.Pages,
		Images:      result.Images,
		Debug:       result.Debug,
	}

	s.logger.Info("Strategy finished",
		logger.String("document", doc.ID),
		logger.String("engine", outcome.Engine),
		logger.Int("pages", len(outcome.Pages)),
		logger.Bool("needDrop", outcome.NeedDrop),
		logger.Duration("elapsed", time.Since(start)),
	)
	return outcome, nil
}
