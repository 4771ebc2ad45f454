package converters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
)

func TestJSONConverter(t *testing.T) {
	c := NewJSONConverter()
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	result := &models.DocumentResult{
		DocumentID: "scans/invoice.pdf",
		Type:       models.TypeMixed,
		Status:     models.DocumentSucceeded,
		Duration:   1500 * time.Millisecond,
		Outcome: &models.ParseOutcome{
			ParseType:   models.ParseTypeOCR,
			VersionName: "1.2.3",
			Engine:      "ocr-tesseract",
			Pages: []models.PageContent{
				{PageNr: 1, Text: "héllo", Source: "text-layer"},
				{PageNr: 2, Text: "world", Source: "ocr", Confidence: 80},
				{PageNr: 3, Text: "again", Source: "ocr", Confidence: 90},
			},
			Images: []string{"invoice/page_2/Im0_5.png"},
		},
	}

	doc, err := c.Convert(result)
	require.NoError(t, err)
	assert.Equal(t, "scans/invoice.pdf", doc.DocumentID)
	assert.Equal(t, models.ParseTypeOCR, doc.ParseType)
	assert.Equal(t, 3, doc.Metadata.PageCount)
	assert.Equal(t, 15, doc.Metadata.Characters)
	assert.InDelta(t, 85, doc.Metadata.Confidence, 0.001)
	assert.Equal(t, int64(1500), doc.Metadata.ProcessingMs)
	require.Len(t, doc.Content, 3)
	assert.Equal(t, 2, doc.Content[1].Position)
	assert.NotContains(t, doc.Content[0].Metadata, "confidence")

	data, err := c.Marshal(result)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "ocr", raw["_parse_type"])
	assert.Equal(t, "1.2.3", raw["_version_name"])
	assert.Equal(t, false, raw["_need_drop"])
	assert.Equal(t, "2024-05-01T12:00:00Z", raw["processedAt"])
}

func TestJSONConverterRequiresOutcome(t *testing.T) {
	c := NewJSONConverter()

	_, err := c.Convert(nil)
	assert.Error(t, err)

	_, err = c.Marshal(&models.DocumentResult{DocumentID: "a.pdf", Status: models.DocumentFailed})
	assert.Error(t, err)
}
