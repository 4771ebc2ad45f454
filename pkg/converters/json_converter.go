package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
)

// DocumentConverter turns a dispatched document into the structure handed downstream
type DocumentConverter interface {
	Convert(result *models.DocumentResult) (*ProcessedDocument, error)
}

// ProcessedDocument carries every field of the accepted outcome plus the _parse_type and
// _version_name tags
type ProcessedDocument struct {
	TaskID      string              `json:"taskId,omitempty"`
	DocumentID  string              `json:"documentId"`
	Type        models.DocumentType `json:"type"`
	ParseType   models.ParseType    `json:"_parse_type"`
	VersionName string              `json:"_version_name"`
	NeedDrop    bool                `json:"_need_drop"`
	DropReason  string              `json:"_drop_reason,omitempty"`
	Engine      string              `json:"engine"`
	Content     []ChunkContent      `json:"content"`
	Images      []string            `json:"images,omitempty"`
	Metadata    DocumentMetadata    `json:"metadata"`
	ProcessedAt time.Time           `json:"processedAt"`
}

type ChunkContent struct {
	Text     string                 `json:"text"`
	Position int                    `json:"position"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type DocumentMetadata struct {
	PageCount    int                    `json:"pageCount"`
	Characters   int                    `json:"characters"`
	Confidence   float64                `json:"confidence,omitempty"`
	ProcessingMs int64                  `json:"processingMs"`
	Debug        map[string]interface{} `json:"debug,omitempty"`
}

type JSONConverter struct {
	now func() time.Time
}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{now: time.Now}
}

func (c *JSONConverter) Convert(result *models.DocumentResult) (*ProcessedDocument, error) {
	if result == nil || result.Outcome == nil {
		return nil, fmt.Errorf("no outcome to convert")
	}
	o := result.Outcome

	doc := &ProcessedDocument{
		DocumentID:  result.DocumentID,
		Type:        result.Type,
		ParseType:   o.ParseType,
		VersionName: o.VersionName,
		NeedDrop:    o.NeedDrop,
		DropReason:  o.DropReason,
		Engine:      o.Engine,
		Content:     make([]ChunkContent, 0, len(o.Pages)),
		Images:      o.Images,
		Metadata: DocumentMetadata{
			PageCount:    len(o.Pages),
			ProcessingMs: result.Duration.Milliseconds(),
			Debug:        o.Debug,
		},
		ProcessedAt: c.now().UTC(),
	}

	var totalConfidence float64
	var scored int
	for _, page := range o.Pages {
		meta := map[string]interface{}{"source": page.Source}
		if page.Confidence > 0 {
			meta["confidence"] = page.Confidence
			totalConfidence += page.Confidence
			scored++
		}
		doc.Content = append(doc.Content, ChunkContent{
			Text:     page.Text,
			Position: page.PageNr,
			Type:     "page",
			Metadata: meta,
		})
		doc.Metadata.Characters += len([]rune(page.Text))
	}
	if scored > 0 {
		doc.Metadata.Confidence = totalConfidence / float64(scored)
	}

	return doc, nil
}

// Marshal converts result and encodes it as indented JSON
func (c *JSONConverter) Marshal(result *models.DocumentResult) ([]byte, error) {
	doc, err := c.Convert(result)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", result.DocumentID, err)
	}
	return data, nil
}
