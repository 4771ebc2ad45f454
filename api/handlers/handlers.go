package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(documentService document.DocumentProcessor, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
}

// HealthCheck reports liveness and the build version
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}
