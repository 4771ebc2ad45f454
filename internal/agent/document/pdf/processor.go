package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

const (
	EngineName = "pdf-text"
	sourceText = "text-layer"
)

// TextEngine extracts the embedded text layer page by page and flags outputs that
// should not be trusted.
type TextEngine struct {
	logger     logger.Logger
	maxWorkers int
	thresholds Thresholds
}

type TextOption func(*TextEngine)

// WithMaxWorkers bounds the number of pages extracted in parallel
func WithMaxWorkers(n int) TextOption {
	return func(e *TextEngine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

func WithThresholds(t Thresholds) TextOption {
	return func(e *TextEngine) {
		e.thresholds = t
	}
}

func NewTextEngine(log logger.Logger, opts ...TextOption) *TextEngine {
	e := &TextEngine{
		logger:     log.Named("text-engine"),
		maxWorkers: 4,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *TextEngine) Name() string {
	return EngineName
}

func (e *TextEngine) Parse(ctx context.Context, req *document.ParseRequest) (*models.EngineResult, error) {
	doc := req.Document
	pages, err := e.extract(ctx, doc.Data, req.FirstPage())
	if err != nil {
		return nil, err
	}

	result := &models.EngineResult{Pages: pages}

	images, err := e.writeImages(ctx, req)
	if err != nil {
		return nil, err
	}
	result.Images = images

	quality := MeasureQuality(pages, req.Analysis)
	if reason := quality.DropReason(e.thresholds); reason != "" {
		result.NeedDrop = true
		result.DropReason = reason
		e.logger.Info("Text layer flagged for drop",
			logger.String("document", doc.ID),
			logger.String("reason", reason),
		)
	}
	if req.Debug {
		result.Debug = map[string]interface{}{"quality": quality}
	}
	return result, nil
}

func (e *TextEngine) extract(ctx context.Context, data []byte, firstPage int) (pages []models.PageContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("text layer parser panic: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	if firstPage > numPages {
		return nil, fmt.Errorf("start page %d is beyond the last page %d", firstPage, numPages)
	}

	pages = make([]models.PageContent, numPages-firstPage+1)
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.maxWorkers)

	for i := firstPage; i <= numPages; i++ {
		pageNum := i
		g.Go(func() (err error) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("text layer parser panic on page %d: %v", pageNum, r)
				}
			}()

			content := models.PageContent{PageNr: pageNum, Source: sourceText}
			page := pdfReader.Page(pageNum)
			if !page.V.IsNull() {
				text, err := page.GetPlainText(nil)
				if err != nil {
					return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
				}
				content.Text = cleanText(text)
			}
			pages[pageNum-firstPage] = content
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// writeImages stores the embedded images of every page in range. Failing to read the
// images is logged and does not fail the text extraction; failing to write them does.
func (e *TextEngine) writeImages(ctx context.Context, req *document.ParseRequest) ([]string, error) {
	if req.Images == nil {
		return nil, nil
	}

	pdfCtx, err := OpenContext(req.Document.Data)
	if err != nil {
		e.logger.Warn("Skipping image extraction",
			logger.String("document", req.Document.ID),
			logger.Error(err),
		)
		return nil, nil
	}

	var names []string
	for pageNr := req.FirstPage(); pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if layout := req.Analysis.Page(pageNr); layout != nil && len(layout.ImageObjNrs) == 0 {
			continue
		}
		images, err := ExtractImages(pdfCtx, pageNr)
		if err != nil {
			e.logger.Warn("Failed to extract page images",
				logger.String("document", req.Document.ID),
				logger.Int("page", pageNr),
				logger.Error(err),
			)
			continue
		}
		for _, img := range images {
			name, err := req.Images.WriteImage(ctx, img.Key(), img.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to write image of page %d: %w", pageNr, err)
			}
			names = append(names, name)
		}
	}
	return names, nil
}

// cleanText normalizes line endings, drops control characters and trims trailing blanks
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
