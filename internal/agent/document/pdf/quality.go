package pdf

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
)

// Thresholds below which a text-layer extraction is flagged for drop
type Thresholds struct {
	MinPrintableRatio float64
	MinWordlikeRatio  float64
	// MinTokens is the token count below which the wordlike ratio is not judged
	MinTokens int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPrintableRatio: 0.85,
		MinWordlikeRatio:  0.3,
		MinTokens:         20,
	}
}

// Quality describes how trustworthy an extracted text layer is
type Quality struct {
	PageCount      int     `json:"pageCount"`
	UncoveredPages []int   `json:"uncoveredPages,omitempty"`
	CharsPerPage   float64 `json:"charsPerPage"`
	PrintableRatio float64 `json:"printableRatio"`
	WordlikeRatio  float64 `json:"wordlikeRatio"`
	Tokens         int     `json:"tokens"`
}

// MeasureQuality scores pages. A page is uncovered when it has no text although the
// analysis reports images on it or forces OCR; blank pages without images are fine.
func MeasureQuality(pages []models.PageContent, analysis *models.ModelAnalysis) Quality {
	q := Quality{PageCount: len(pages)}

	var all strings.Builder
	chars := 0
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			layout := analysis.Page(p.PageNr)
			if layout == nil || layout.ForceOCR || len(layout.ImageObjNrs) > 0 {
				q.UncoveredPages = append(q.UncoveredPages, p.PageNr)
			}
			continue
		}
		chars += len([]rune(text))
		all.WriteString(text)
		all.WriteByte('\n')
	}

	if q.PageCount > 0 {
		q.CharsPerPage = float64(chars) / float64(q.PageCount)
	}
	q.PrintableRatio = printableRatio(all.String())
	q.WordlikeRatio, q.Tokens = wordlikeRatio(all.String())
	return q
}

// DropReason explains why the extraction must be discarded, or returns ""
func (q Quality) DropReason(t Thresholds) string {
	switch {
	case q.PageCount == 0:
		return "no pages in range"
	case len(q.UncoveredPages) == q.PageCount:
		return "empty text layer"
	case len(q.UncoveredPages) > 0:
		return fmt.Sprintf("%d of %d pages have no text layer", len(q.UncoveredPages), q.PageCount)
	case q.PrintableRatio < t.MinPrintableRatio:
		return fmt.Sprintf("garbled text layer: printable ratio %.2f", q.PrintableRatio)
	case q.Tokens >= t.MinTokens && q.WordlikeRatio < t.MinWordlikeRatio:
		return fmt.Sprintf("garbled text layer: wordlike ratio %.2f", q.WordlikeRatio)
	default:
		return ""
	}
}

func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbage(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}

// private use area, replacement char and non-whitespace control chars come from broken font maps
func isGarbage(r rune) bool {
	return (r >= 0xE000 && r <= 0xF8FF) || r == unicode.ReplacementChar ||
		(r < 0x20 && r != '\n' && r != '\r' && r != '\t')
}

func wordlikeRatio(text string) (float64, int) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := len([]rune(f)); n >= 1 && n <= 25 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields)), len(fields)
}
