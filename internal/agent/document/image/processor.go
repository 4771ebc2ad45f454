package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// pageSource is the page-level view of a PDF the OCR engine works on
type pageSource interface {
	PageCount() int
	Images(pageNr int) ([]pdf.PageImage, error)
	Text(pageNr int) (string, error)
}

type pdfcpuSource struct {
	ctx *model.Context
}

func openPDF(data []byte) (pageSource, error) {
	ctx, err := pdf.OpenContext(data)
	if err != nil {
		return nil, err
	}
	return &pdfcpuSource{ctx: ctx}, nil
}

func (s *pdfcpuSource) PageCount() int { return s.ctx.PageCount }

func (s *pdfcpuSource) Images(pageNr int) ([]pdf.PageImage, error) {
	return pdf.ExtractImages(s.ctx, pageNr)
}

func (s *pdfcpuSource) Text(pageNr int) (string, error) {
	return pdf.PageContentText(s.ctx, pageNr)
}

// Processor is the OCR engine: it recognizes the embedded page images of every page the
// analysis marks for OCR and keeps the text layer of the others.
type Processor struct {
	recognizer   Recognizer
	pipeline     []Preprocessor
	minImageSide int
	lowConf      float64
	logger       logger.Logger
	open         func([]byte) (pageSource, error)
}

type Option func(*Processor)

func WithPreprocess(cfg PreprocessConfig) Option {
	return func(p *Processor) {
		p.pipeline = NewPipeline(cfg)
	}
}

// WithMinImageSide skips images whose sides are both smaller, such as bullets and logos
func WithMinImageSide(px int) Option {
	return func(p *Processor) {
		p.minImageSide = px
	}
}

// WithLowConfidence sets the page confidence under which a recognized page is reported
// as low confidence in debug output
func WithLowConfidence(threshold float64) Option {
	return func(p *Processor) {
		p.lowConf = threshold
	}
}

func NewProcessor(recognizer Recognizer, log logger.Logger, opts ...Option) *Processor {
	p := &Processor{
		recognizer:   recognizer,
		pipeline:     NewPipeline(DefaultPreprocessConfig()),
		minImageSide: 16,
		lowConf:      60,
		logger:       log.Named("ocr-engine"),
		open:         openPDF,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Name() string {
	return "ocr-" + p.recognizer.Name()
}

func (p *Processor) Parse(ctx context.Context, req *document.ParseRequest) (*models.EngineResult, error) {
	doc := req.Document
	src, err := p.open(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := src.PageCount()
	first := req.FirstPage()
	if first > numPages {
		return nil, fmt.Errorf("start page %d is beyond the last page %d", first, numPages)
	}

	result := &models.EngineResult{}
	var lowConfidence []int
	for pageNr := first; pageNr <= numPages; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		images, err := src.Images(pageNr)
		if err != nil {
			return nil, fmt.Errorf("failed to extract images of page %d: %w", pageNr, err)
		}
		for _, img := range images {
			name, err := req.Sink().WriteImage(ctx, img.Key(), img.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to write image of page %d: %w", pageNr, err)
			}
			result.Images = append(result.Images, name)
		}

		if !needsOCR(req.Analysis.Page(pageNr)) {
			text, err := src.Text(pageNr)
			if err != nil {
				return nil, fmt.Errorf("failed to read text of page %d: %w", pageNr, err)
			}
			result.Pages = append(result.Pages, models.PageContent{
				PageNr: pageNr,
				Text:   strings.TrimSpace(text),
				Source: "text-layer",
			})
			continue
		}

		page, err := p.recognizePage(ctx, req, pageNr, images)
		if err != nil {
			return nil, err
		}
		if page.Confidence > 0 && page.Confidence < p.lowConf {
			lowConfidence = append(lowConfidence, pageNr)
		}
		result.Pages = append(result.Pages, page)
	}

	p.logger.Info("OCR completed",
		logger.String("document", doc.ID),
		logger.Int("pages", len(result.Pages)),
		logger.Int("images", len(result.Images)),
	)
	if req.Debug {
		result.Debug = map[string]interface{}{
			"recognizer":         p.recognizer.Name(),
			"lowConfidencePages": lowConfidence,
		}
	}
	return result, nil
}

func needsOCR(layout *models.PageLayout) bool {
	return layout == nil || layout.ForceOCR || !layout.HasText
}

func (p *Processor) recognizePage(ctx context.Context, req *document.ParseRequest, pageNr int, images []pdf.PageImage) (models.PageContent, error) {
	page := models.PageContent{PageNr: pageNr, Source: p.recognizer.Name()}

	var (
		texts  []string
		total  float64
		weight int
	)
	for _, img := range images {
		decoded, err := imaging.Decode(bytes.NewReader(img.Data))
		if err != nil {
			// e.g. JPX or CCITT streams the image package cannot decode
			p.logger.Warn("Skipping undecodable image",
				logger.String("document", req.Document.ID),
				logger.Int("page", pageNr),
				logger.String("fileType", img.FileType),
				logger.Error(err),
			)
			continue
		}
		if b := decoded.Bounds(); b.Dx() < p.minImageSide && b.Dy() < p.minImageSide {
			continue
		}

		png, err := p.preprocess(decoded)
		if err != nil {
			return page, fmt.Errorf("page %d image %d: %w", pageNr, img.ObjNr, err)
		}
		if req.Debug {
			name := fmt.Sprintf("page_%d/ocr_%d.png", pageNr, img.ObjNr)
			if _, err := req.Sink().WriteImage(ctx, name, png); err != nil {
				return page, fmt.Errorf("failed to write debug image: %w", err)
			}
		}

		rec, err := p.recognizer.Recognize(ctx, png)
		if err != nil {
			return page, fmt.Errorf("%s failed on page %d: %w", p.recognizer.Name(), pageNr, err)
		}
		if rec.Text != "" {
			texts = append(texts, rec.Text)
		}
		w := rec.Words
		if w == 0 && rec.Confidence > 0 {
			w = 1
		}
		total += rec.Confidence * float64(w)
		weight += w
	}

	page.Text = strings.Join(texts, "\n")
	if weight > 0 {
		page.Confidence = total / float64(weight)
	}
	return page, nil
}

func (p *Processor) preprocess(img image.Image) ([]byte, error) {
	processed, err := Apply(img, p.pipeline)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
