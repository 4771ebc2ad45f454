package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DocumentType is the classification of a whole document
type DocumentType string

const (
	TypeNormal  DocumentType = "normal"
	TypeScanned DocumentType = "scanned"
	TypeMixed   DocumentType = "mixed"
	TypeUnknown DocumentType = "unknown"
)

// ParseType tags which strategy produced an accepted outcome
type ParseType string

const (
	ParseTypeTxt ParseType = "txt"
	ParseTypeOCR ParseType = "ocr"
)

// Document is one raw payload handed to the dispatcher. Data must not be modified after load.
type Document struct {
	ID   string `json:"id"`
	Data []byte `json:"-"`
}

// Namespace returns the per-document prefix under which extracted images are written.
// Distinct ids give distinct namespaces: directory components and the extension are kept,
// and when sanitizing changes the id the last segment gets a "~" plus a short hash of the
// raw id. "~" never survives sanitizing, so hashed and plain namespaces cannot meet.
func (d *Document) Namespace() string {
	var segments []string
	for _, seg := range strings.Split(strings.ReplaceAll(d.ID, "\\", "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, strings.Map(safeRune, seg))
	}
	if len(segments) == 0 {
		segments = []string{"document"}
	}
	if strings.Join(segments, "/") != d.ID {
		sum := sha256.Sum256([]byte(d.ID))
		segments[len(segments)-1] += "~" + hex.EncodeToString(sum[:4])
	}
	return strings.Join(segments, "/")
}

func safeRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		return r
	default:
		return '_'
	}
}

// PageLayout is the analyzer's view of one page
type PageLayout struct {
	PageNr      int   `json:"pageNr"`
	HasText     bool  `json:"hasText"`
	ImageObjNrs []int `json:"imageObjNrs,omitempty"`
	ForceOCR    bool  `json:"forceOcr"`
}

// ModelAnalysis is the layout analysis of a document. Results produced with OCRMode=false
// must not be fed to the OCR strategy.
type ModelAnalysis struct {
	OCRMode  bool         `json:"ocrMode"`
	Producer string       `json:"producer"`
	Pages    []PageLayout `json:"pages"`
}

// Page returns the layout for pageNr (1-based), or nil
func (m *ModelAnalysis) Page(pageNr int) *PageLayout {
	if m == nil {
		return nil
	}
	for i := range m.Pages {
		if m.Pages[i].PageNr == pageNr {
			return &m.Pages[i]
		}
	}
	return nil
}

// PageContent is the text extracted for one page
type PageContent struct {
	PageNr     int     `json:"pageNr"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EngineResult is what an extraction engine hands back before a strategy tags it
type EngineResult struct {
	NeedDrop   bool                   `json:"needDrop"`
	DropReason string                 `json:"dropReason,omitempty"`
	Pages      []PageContent          `json:"pages"`
	Images     []string               `json:"images,omitempty"`
	Debug      map[string]interface{} `json:"debug,omitempty"`
}

// ParseOutcome is the normalized, tagged result of one strategy run
type ParseOutcome struct {
	ParseType   ParseType              `json:"_parse_type"`
	VersionName string                 `json:"_version_name"`
	NeedDrop    bool                   `json:"_need_drop"`
	DropReason  string                 `json:"_drop_reason,omitempty"`
	Engine      string                 `json:"engine"`
	Pages       []PageContent          `json:"pages"`
	Images      []string               `json:"images,omitempty"`
	Debug       map[string]interface{} `json:"debug,omitempty"`
}

// Text joins all page texts
func (o *ParseOutcome) Text() string {
	var b strings.Builder
	for i, p := range o.Pages {
		if i > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// BatchProgress counts documents finished so far
type BatchProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// DocumentStatus is the terminal state of one document in a batch
type DocumentStatus string

const (
	DocumentSucceeded DocumentStatus = "succeeded"
	DocumentFailed    DocumentStatus = "failed"
	DocumentSkipped   DocumentStatus = "skipped"
)

// DocumentResult records what happened to one document
type DocumentResult struct {
	DocumentID string         `json:"documentId"`
	Type       DocumentType   `json:"type"`
	Status     DocumentStatus `json:"status"`
	Outcome    *ParseOutcome  `json:"outcome,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// BatchReport summarizes a batch run
type BatchReport struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// Abandoned counts documents whose engine was still running when they timed out
	Abandoned int              `json:"abandoned,omitempty"`
	Results   []DocumentResult `json:"results"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusSkipped   ProcessingStatus = "skipped"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
