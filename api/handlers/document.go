package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-dispatcher/internal/dispatch"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

type ClassifyResponse struct {
	Filename     string `json:"filename"`
	Type         string `json:"type"`
	Path         string `json:"path"`
	TextPages    int    `json:"textPages"`
	ScannedPages int    `json:"scannedPages"`
	TotalPages   int    `json:"totalPages"`
	Error        string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("http"),
	}
}

func processResponse(task *models.ProcessingTask, header *multipart.FileHeader) ProcessResponse {
	return ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
}

// ClassifyDocument reports the document type of an upload and the path it would take
func (h *DocumentHandler) ClassifyDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	cls, err := h.service.ClassifyFile(c.Request.Context(), header)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to classify file", err)
		return
	}

	resp := ClassifyResponse{
		Filename:     header.Filename,
		Type:         string(cls.Type),
		Path:         string(dispatch.Route(cls.Type)),
		TextPages:    cls.TextPages,
		ScannedPages: cls.ScannedPages,
		TotalPages:   cls.TotalPages,
	}
	if cls.Err != nil {
		resp.Error = cls.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	task, err := h.service.ProcessFile(c.Request.Context(), header)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, processResponse(task, header))
}

func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = processResponse(task, files[i])
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d documents", len(tasks)),
		"tasks":   responses,
	})
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	result, err := h.service.GetProcessedDocument(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get result", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.JSON(http.StatusOK, result)
}

func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// handleError writes an ErrorResponse. Validation failures become 400 and unfinished
// results 409 whatever status the caller asked for.
func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	switch {
	case errors.Is(err, validator.ErrInvalidDocument):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrResultNotReady):
		status = http.StatusConflict
	}

	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
