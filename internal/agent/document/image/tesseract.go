package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

type TesseractOptions struct {
	Languages   []string
	PageSegMode gosseract.PageSegMode
	Whitelist   string
}

func DefaultTesseractOptions() TesseractOptions {
	return TesseractOptions{
		Languages:   []string{"eng"},
		PageSegMode: gosseract.PSM_AUTO,
	}
}

// TesseractRecognizer runs a local tesseract through gosseract. A client is created per
// call because gosseract clients are not safe for concurrent use.
type TesseractRecognizer struct {
	opts TesseractOptions
}

func NewTesseractRecognizer(opts TesseractOptions) *TesseractRecognizer {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	return &TesseractRecognizer{opts: opts}
}

func (r *TesseractRecognizer) Name() string {
	return "tesseract"
}

func (r *TesseractRecognizer) Recognize(ctx context.Context, png []byte) (*Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.opts.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(r.opts.PageSegMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetVariable("load_system_dawg", "1"); err != nil {
		return nil, err
	}
	if r.opts.Whitelist != "" {
		if err := client.SetWhitelist(r.opts.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to get text: %w", err)
	}

	rec := &Recognition{Text: strings.TrimSpace(text)}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// text is still usable without confidences
		return rec, nil
	}
	rec.Confidence, rec.Words = wordConfidence(boxes)
	return rec, nil
}

// wordConfidence is the mean confidence over every recognized word
func wordConfidence(boxes []gosseract.BoundingBox) (float64, int) {
	var total float64
	words := 0
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		total += box.Confidence
		words++
	}
	if words == 0 {
		return 0, 0
	}
	return total / float64(words), words
}
