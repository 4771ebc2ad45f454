package dispatch

import "github.com/feichai0017/pdf-dispatcher/internal/models"

// Path is the strategy route a document type maps to
type Path string

const (
	PathText  Path = "text"
	PathOCR   Path = "ocr"
	PathUnion Path = "union"
	PathSkip  Path = "skip"
)

// Route maps a classification to a strategy path
func Route(t models.DocumentType) Path {
	switch t {
	case models.TypeNormal:
		return PathText
	case models.TypeScanned:
		return PathOCR
	case models.TypeMixed:
		return PathUnion
	default:
		return PathSkip
	}
}
