package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

var errNoPages = errors.New("document has no pages")

// Classification is the detailed result behind a DocumentType
type Classification struct {
	Type         models.DocumentType `json:"type"`
	TextPages    int                 `json:"textPages"`
	ScannedPages int                 `json:"scannedPages"`
	TotalPages   int                 `json:"totalPages"`
	Err          error               `json:"-"`
}

// Classifier aggregates per-page probes into a DocumentType. It never returns an error:
// anything that prevents probing yields TypeUnknown.
type Classifier struct {
	opener PageOpener
	probe  PageTextProbe
	logger logger.Logger
}

func NewClassifier(opener PageOpener, log logger.Logger) *Classifier {
	return &Classifier{
		opener: opener,
		logger: log.Named("classifier"),
	}
}

// Classify returns the document type of doc
func (c *Classifier) Classify(ctx context.Context, doc *models.Document) models.DocumentType {
	return c.Inspect(ctx, doc).Type
}

// Inspect classifies doc and keeps the page counts
func (c *Classifier) Inspect(ctx context.Context, doc *models.Document) Classification {
	result, err := c.count(ctx, doc)
	if err != nil {
		c.logger.Warn("Classification failed",
			logger.String("document", doc.ID),
			logger.Error(err),
		)
		result.Type = models.TypeUnknown
		result.Err = err
		return result
	}

	result.Type = Decide(result.TextPages, result.ScannedPages)
	c.logger.Info("Document classified",
		logger.String("document", doc.ID),
		logger.String("type", string(result.Type)),
		logger.Int("textPages", result.TextPages),
		logger.Int("scannedPages", result.ScannedPages),
	)
	return result
}

func (c *Classifier) count(ctx context.Context, doc *models.Document) (result Classification, err error) {
	// third-party parsers panic on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while probing: %v", r)
		}
	}()

	reader, err := c.opener.Open(doc.Data)
	if err != nil {
		return result, err
	}

	result.TotalPages = reader.NumPage()
	if result.TotalPages <= 0 {
		return result, errNoPages
	}

	for pageNr := 1; pageNr <= result.TotalPages; pageNr++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		hasText, err := c.probe.Probe(reader, pageNr)
		if err != nil {
			return result, err
		}
		if hasText {
			result.TextPages++
		} else {
			result.ScannedPages++
		}
	}
	return result, nil
}

// Decide maps page counts to a DocumentType
func Decide(textPages, scannedPages int) models.DocumentType {
	switch {
	case textPages+scannedPages == 0:
		return models.TypeUnknown
	case scannedPages == 0:
		return models.TypeNormal
	case textPages == 0:
		return models.TypeScanned
	default:
		return models.TypeMixed
	}
}
