// Package source enumerates the documents a batch runs over.
package source

import (
	"context"
	"path"
	"strings"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
)

// Collection is an enumerable set of raw documents. List returns identifiers in a stable
// order; Load returns only payloads recognized as PDF.
type Collection interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*models.Document, error)
}

const pdfExt = ".pdf"

// isPDFName filters on the extension. Content is checked again on Load.
func isPDFName(name string) bool {
	return strings.EqualFold(path.Ext(name), pdfExt)
}
