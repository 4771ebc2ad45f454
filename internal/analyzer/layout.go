// Package analyzer provides the layout analysis consumed by the parse strategies.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

const LayoutProducer = "pdfcpu-layout"

// LayoutAnalyzer derives a per-page layout from the PDF structure: whether the content
// stream shows text and which image objects the page references. In OCR mode every page
// is marked for OCR.
type LayoutAnalyzer struct {
	logger logger.Logger
}

func NewLayoutAnalyzer(log logger.Logger) *LayoutAnalyzer {
	return &LayoutAnalyzer{logger: log.Named("layout-analyzer")}
}

func (a *LayoutAnalyzer) Analyze(ctx context.Context, data []byte, ocrMode bool) (analysis *models.ModelAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			analysis, err = nil, fmt.Errorf("layout analysis panic: %v", r)
		}
	}()

	pdfCtx, err := pdf.OpenContext(data)
	if err != nil {
		return nil, err
	}

	analysis = &models.ModelAnalysis{
		OCRMode:  ocrMode,
		Producer: LayoutProducer,
		Pages:    make([]models.PageLayout, 0, pdfCtx.PageCount),
	}
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pdf.PageContentText(pdfCtx, pageNr)
		if err != nil {
			a.logger.Debug("Page content unreadable",
				logger.Int("page", pageNr),
				logger.Error(err),
			)
		}
		analysis.Pages = append(analysis.Pages, models.PageLayout{
			PageNr:      pageNr,
			HasText:     strings.TrimSpace(text) != "",
			ImageObjNrs: pdf.ImageObjNrs(pdfCtx, pageNr),
			ForceOCR:    ocrMode,
		})
	}

	a.logger.Debug("Layout analyzed",
		logger.Int("pages", len(analysis.Pages)),
		logger.Bool("ocrMode", ocrMode),
	)
	return analysis, nil
}
