// Package batch drives the dispatch pipeline over a document source.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-dispatcher/internal/dispatch"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/sink"
	"github.com/feichai0017/pdf-dispatcher/pkg/source"
)

// Processor dispatches a single document. *dispatch.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// ResultWriter persists the result of a successfully dispatched document
type ResultWriter interface {
	WriteResult(ctx context.Context, result *models.DocumentResult) error
}

type RunOptions struct {
	StartPage int
	Debug     bool
	// Concurrency bounds how many documents are in flight. Values below 1 mean 1.
	Concurrency int
	// DocumentTimeout bounds each document, zero means no limit. A document that runs past
	// it is reported as failed and its slot is released, but an engine that ignores
	// cancellation keeps running in the background and may still write images. Such
	// documents are counted in BatchReport.Abandoned, so in-flight work can briefly
	// exceed Concurrency.
	DocumentTimeout time.Duration
	// OnProgress is called after every document. Calls are serialized.
	OnProgress func(progress models.BatchProgress, documentID string)
	Results    ResultWriter
}

type Runner struct {
	processor Processor
	logger    logger.Logger
}

func NewRunner(p Processor, log logger.Logger) *Runner {
	return &Runner{
		processor: p,
		logger:    log.Named("batch"),
	}
}

// Run processes every document of src in enumeration order. Per-document failures are
// recorded in the report; an error is returned only when src cannot be listed.
func (r *Runner) Run(ctx context.Context, src source.Collection, images sink.ImageSink, opts RunOptions) (*models.BatchReport, error) {
	ids, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	report := &models.BatchReport{
		Total:   len(ids),
		Results: make([]models.DocumentResult, len(ids)),
	}
	r.logger.Info("Batch started",
		logger.Int("documents", len(ids)),
		logger.Int("concurrency", concurrency),
	)

	var mu sync.Mutex
	var abandoned atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)

	start := time.Now()
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			result := r.processOne(ctx, src, id, images, opts, &abandoned)

			mu.Lock()
			defer mu.Unlock()
			report.Results[i] = result
			r.record(report, result, opts.OnProgress)
			return nil
		})
	}
	_ = g.Wait()
	report.Abandoned = int(abandoned.Load())

	r.logger.Info("Batch finished",
		logger.Int("total", report.Total),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
		logger.Int("abandoned", report.Abandoned),
		logger.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// record must be called with the report lock held
func (r *Runner) record(report *models.BatchReport, result models.DocumentResult, onProgress func(models.BatchProgress, string)) {
	switch result.Status {
	case models.DocumentSucceeded:
		report.Succeeded++
	case models.DocumentSkipped:
		report.Skipped++
	default:
		report.Failed++
	}
	report.Processed++

	progress := models.BatchProgress{Processed: report.Processed, Total: report.Total}
	r.logger.Info(fmt.Sprintf("%d/%d: %s", progress.Processed, progress.Total, result.DocumentID),
		logger.String("status", string(result.Status)),
	)
	if onProgress != nil {
		onProgress(progress, result.DocumentID)
	}
}

func (r *Runner) processOne(ctx context.Context, src source.Collection, id string, images sink.ImageSink, opts RunOptions, abandoned *atomic.Int64) (result models.DocumentResult) {
	result = models.DocumentResult{DocumentID: id, Type: models.TypeUnknown}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if opts.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DocumentTimeout)
		defer cancel()
	}

	doc, err := src.Load(ctx, id)
	if err != nil {
		return r.fail(result, "Failed to load document", err)
	}

	res, err := r.process(ctx, dispatch.Request{
		Document:  doc,
		Images:    images,
		StartPage: opts.StartPage,
		Debug:     opts.Debug,
	}, abandoned)
	if res != nil {
		result.Type = res.Classification.Type
	}
	switch {
	case errors.Is(err, dispatch.ErrUnknownDocument):
		r.logger.Warn("Skipping unknown document",
			logger.String("document", id),
			logger.Error(err),
		)
		result.Status = models.DocumentSkipped
		result.Error = err.Error()
		return result
	case err != nil:
		return r.fail(result, "Document failed", err)
	}

	result.Status = models.DocumentSucceeded
	result.Outcome = res.Outcome
	if opts.Results != nil {
		if err := opts.Results.WriteResult(ctx, &result); err != nil {
			result.Outcome = nil
			return r.fail(result, "Failed to write result", err)
		}
	}
	return result
}

// process runs the pipeline but stops waiting once ctx is done, so an engine that ignores
// cancellation only holds on to its own goroutine. Each such goroutine is counted in abandoned.
func (r *Runner) process(ctx context.Context, req dispatch.Request, abandoned *atomic.Int64) (*dispatch.Result, error) {
	type reply struct {
		res *dispatch.Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := r.processor.Process(ctx, req)
		done <- reply{res, err}
	}()

	select {
	case rep := <-done:
		return rep.res, rep.err
	case <-ctx.Done():
		abandoned.Add(1)
		return nil, fmt.Errorf("document abandoned: %w", context.Cause(ctx))
	}
}

func (r *Runner) fail(result models.DocumentResult, msg string, err error) models.DocumentResult {
	r.logger.Error(msg,
		logger.String("document", result.DocumentID),
		logger.String("type", string(result.Type)),
		logger.Error(err),
	)
	result.Status = models.DocumentFailed
	result.Error = err.Error()
	return result
}
