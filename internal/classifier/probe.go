package classifier

import (
	"fmt"
	"strings"
)

// PageReader is an opened document that can hand out per-page text
type PageReader interface {
	NumPage() int
	// PageText returns the extracted text of pageNr (1-based)
	PageText(pageNr int) (string, error)
}

// PageTextProbe decides whether a single page carries an extractable text layer
type PageTextProbe struct{}

// Probe reports whether the page text is non-empty after trimming whitespace. Extraction
// errors are returned so the caller can fail the whole document.
func (PageTextProbe) Probe(r PageReader, pageNr int) (bool, error) {
	text, err := r.PageText(pageNr)
	if err != nil {
		return false, fmt.Errorf("page %d: %w", pageNr, err)
	}
	return strings.TrimSpace(text) != "", nil
}
