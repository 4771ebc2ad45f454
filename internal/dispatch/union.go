// Package dispatch decides which parse strategy handles a document and runs the
// text-then-OCR fallback for mixed documents.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/strategy"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// Analyzer produces the layout analysis the strategies consume. Calls with different
// ocrMode values for the same bytes must be independent.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, ocrMode bool) (*models.ModelAnalysis, error)
}

// BothStrategiesFailedError is returned when neither text extraction nor OCR produced
// an acceptable outcome for a mixed document.
type BothStrategiesFailedError struct {
	DocumentID string
	// TextErr is nil when the text strategy ran but its outcome was flagged for drop
	TextErr    error
	DropReason string
	OCRErr     error
}

func (e *BothStrategiesFailedError) Error() string {
	text := "dropped"
	if e.TextErr != nil {
		text = e.TextErr.Error()
	} else if e.DropReason != "" {
		text = "dropped: " + e.DropReason
	}
	return fmt.Sprintf("both strategies failed for %s: text: %s; ocr: %v", e.DocumentID, text, e.OCRErr)
}

// Unwrap exposes both causes to errors.Is and errors.As
func (e *BothStrategiesFailedError) Unwrap() []error {
	var errs []error
	if e.TextErr != nil {
		errs = append(errs, e.TextErr)
	}
	if e.OCRErr != nil {
		errs = append(errs, e.OCRErr)
	}
	return errs
}

type unionState int

const (
	stateTryText unionState = iota
	stateCheckDrop
	stateTryOCR
)

func (s unionState) String() string {
	switch s {
	case stateTryText:
		return "try-text"
	case stateCheckDrop:
		return "check-drop"
	case stateTryOCR:
		return "try-ocr"
	default:
		return fmt.Sprintf("unionState(%d)", int(s))
	}
}

// Union runs the text strategy first and falls back to OCR when text extraction fails or
// its outcome must be discarded. OCR always runs on an OCR-mode analysis.
type Union struct {
	text     *strategy.Strategy
	ocr      *strategy.Strategy
	analyzer Analyzer
	logger   logger.Logger
}

func NewUnion(text, ocr *strategy.Strategy, analyzer Analyzer, log logger.Logger) *Union {
	return &Union{
		text:     text,
		ocr:      ocr,
		analyzer: analyzer,
		logger:   log.Named("union"),
	}
}

func (u *Union) Run(ctx context.Context, req *document.ParseRequest) (*models.ParseOutcome, error) {
	var (
		state   = stateTryText
		outcome *models.ParseOutcome
		failure = &BothStrategiesFailedError{DocumentID: req.Document.ID}
	)

	for {
		switch state {
		case stateTryText:
			var err error
			outcome, err = u.text.Run(ctx, req)
			if err != nil {
				failure.TextErr = err
				state = stateTryOCR
				continue
			}
			state = stateCheckDrop

		case stateCheckDrop:
			if !outcome.NeedDrop {
				return outcome, nil
			}
			failure.DropReason = outcome.DropReason
			state = stateTryOCR

		case stateTryOCR:
			u.logger.Info("Falling back to OCR",
				logger.String("document", req.Document.ID),
				logger.String("reason", fallbackReason(failure)),
			)

			ocrReq, err := u.ocrRequest(ctx, req)
			if err != nil {
				failure.OCRErr = err
				return nil, failure
			}
			outcome, err = u.ocr.Run(ctx, ocrReq)
			if err != nil {
				failure.OCRErr = err
				return nil, failure
			}
			return outcome, nil

		default:
			return nil, fmt.Errorf("union dispatch reached invalid state %s", state)
		}
	}
}

// ocrRequest copies req with an OCR-mode analysis, re-analyzing unless req already holds one
func (u *Union) ocrRequest(ctx context.Context, req *document.ParseRequest) (*document.ParseRequest, error) {
	ocrReq := *req
	if req.Analysis != nil && req.Analysis.OCRMode {
		return &ocrReq, nil
	}

	analysis, err := u.analyzer.Analyze(ctx, req.Document.Data, true)
	if err != nil {
		return nil, fmt.Errorf("ocr-mode analysis failed: %w", err)
	}
	if analysis == nil || !analysis.OCRMode {
		return nil, errors.New("analyzer did not return an ocr-mode analysis")
	}
	ocrReq.Analysis = analysis
	return &ocrReq, nil
}

func fallbackReason(f *BothStrategiesFailedError) string {
	if f.TextErr != nil {
		return "text strategy failed: " + f.TextErr.Error()
	}
	if f.DropReason == "" {
		return "text outcome dropped"
	}
	return "text outcome dropped: " + f.DropReason
}
