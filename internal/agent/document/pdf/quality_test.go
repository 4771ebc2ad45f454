package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
)

func pages(texts ...string) []models.PageContent {
	out := make([]models.PageContent, len(texts))
	for i, t := range texts {
		out[i] = models.PageContent{PageNr: i + 1, Text: t}
	}
	return out
}

func TestQualityDropReason(t *testing.T) {
	prose := "The quarterly report covers revenue, costs and the outlook for the next period."
	withImageOnPage2 := &models.ModelAnalysis{Pages: []models.PageLayout{
		{PageNr: 1, HasText: true},
		{PageNr: 2, ImageObjNrs: []int{7}},
		{PageNr: 3},
	}}

	tests := []struct {
		name     string
		pages    []models.PageContent
		analysis *models.ModelAnalysis
		wantDrop bool
		contains string
	}{
		{
			name:  "clean prose is kept",
			pages: pages(prose, prose),
		},
		{
			name:     "no pages",
			wantDrop: true,
			contains: "no pages",
		},
		{
			name:     "every page empty",
			pages:    pages("", " "),
			wantDrop: true,
			contains: "empty text layer",
		},
		{
			name:     "empty page with image",
			pages:    pages(prose, "", prose),
			analysis: withImageOnPage2,
			wantDrop: true,
			contains: "1 of 3 pages",
		},
		{
			name:     "blank page without images is fine",
			pages:    pages(prose, prose, ""),
			analysis: withImageOnPage2,
		},
		{
			name:     "empty page without analysis counts as uncovered",
			pages:    pages(prose, ""),
			wantDrop: true,
			contains: "1 of 2 pages",
		},
		{
			name:     "private use glyphs",
			pages:    pages(strings.Repeat("\ue001\ue002\ue003 ", 20) + "ok"),
			wantDrop: true,
			contains: "printable ratio",
		},
		{
			name:     "run together glyph soup",
			pages:    pages(strings.Repeat(strings.Repeat("x", 40)+" ", 30)),
			wantDrop: true,
			contains: "wordlike ratio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := MeasureQuality(tt.pages, tt.analysis).DropReason(DefaultThresholds())
			if !tt.wantDrop {
				assert.Empty(t, reason)
				return
			}
			assert.Contains(t, reason, tt.contains)
		})
	}
}

func TestMeasureQualityCounts(t *testing.T) {
	q := MeasureQuality(pages("abcd", "ef"), nil)
	assert.Equal(t, 2, q.PageCount)
	assert.Equal(t, 3.0, q.CharsPerPage)
	assert.Equal(t, 1.0, q.PrintableRatio)
	assert.Empty(t, q.UncoveredPages)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "line one\nline two", cleanText("  line one  \r\nline two\x00\x07\n\n"))
	assert.Equal(t, "", cleanText(" \n\t "))
}
