package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/internal/classifier"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/internal/utils/validator"
	"github.com/feichai0017/pdf-dispatcher/pkg/converters"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/queue"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeService struct {
	classification *classifier.Classification
	err            error
	cancelled      []string
}

func (f *fakeService) ClassifyFile(context.Context, *multipart.FileHeader) (*classifier.Classification, error) {
	return f.classification, f.err
}

func (f *fakeService) ProcessFile(_ context.Context, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProcessingTask{
		ID:        "task-" + header.Filename,
		Status:    models.StatusPending,
		Metadata:  map[string]string{"filename": header.Filename},
		CreatedAt: created,
	}, nil
}

func (f *fakeService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, 0, len(files))
	for _, h := range files {
		task, err := f.ProcessFile(ctx, h)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (f *fakeService) GetProcessingStatus(_ context.Context, taskID string) (*models.ProcessingTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusCompleted,
		Progress:  1,
		Metadata:  map[string]string{"documentType": "normal", "parseType": "txt"},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Second),
	}, nil
}

func (f *fakeService) HandleDocument(context.Context, *queue.Task) error {
	return nil
}

func (f *fakeService) GetProcessedDocument(_ context.Context, taskID string) (*converters.ProcessedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &converters.ProcessedDocument{
		TaskID:      taskID,
		DocumentID:  "a.pdf",
		Type:        models.TypeNormal,
		ParseType:   models.ParseTypeTxt,
		VersionName: "test",
	}, nil
}

func (f *fakeService) CancelTask(_ context.Context, taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc document.DocumentProcessor) *gin.Engine {
	h := NewHandlers(svc, logger.NewTestLogger())
	r := gin.New()
	r.GET("/health", HealthCheck)
	r.POST("/classify", h.Document.ClassifyDocument)
	r.POST("/process", h.Document.ProcessDocument)
	r.POST("/batch", h.Document.ProcessBatch)
	r.GET("/status/:taskId", h.Document.GetStatus)
	r.GET("/download/:taskId", h.Document.DownloadResult)
	r.DELETE("/task/:taskId", h.Document.CancelTask)
	return r
}

func multipartRequest(t *testing.T, url, field string, names ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, version.Version, decode(t, w)["version"])
}

func TestClassifyDocument(t *testing.T) {
	svc := &fakeService{classification: &classifier.Classification{
		Type:         models.TypeMixed,
		TextPages:    2,
		ScannedPages: 1,
		TotalPages:   3,
	}}
	w := serve(newRouter(svc), multipartRequest(t, "/classify", "file", "report.pdf"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ClassifyResponse{
		Filename:     "report.pdf",
		Type:         "mixed",
		Path:         "union",
		TextPages:    2,
		ScannedPages: 1,
		TotalPages:   3,
	}, resp)
}

func TestClassifyDocumentUnknown(t *testing.T) {
	svc := &fakeService{classification: &classifier.Classification{
		Type: models.TypeUnknown,
		Err:  fmt.Errorf("malformed xref"),
	}}
	w := serve(newRouter(svc), multipartRequest(t, "/classify", "file", "broken.pdf"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "skip", body["path"])
	assert.Equal(t, "malformed xref", body["error"])
}

func TestProcessDocument(t *testing.T) {
	w := serve(newRouter(&fakeService{}), multipartRequest(t, "/process", "file", "a.pdf"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-a.pdf", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, ".pdf", resp.FileType)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.CreatedAt)
}

func TestProcessDocumentErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		err    error
		status int
	}{
		{
			name:   "missing file",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/process", "other", "a.pdf") },
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid document",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/process", "file", "a.pdf") },
			err:    fmt.Errorf("%w a.pdf: bad mime", validator.ErrInvalidDocument),
			status: http.StatusBadRequest,
		},
		{
			name:   "queue down",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/process", "file", "a.pdf") },
			err:    fmt.Errorf("failed to enqueue task"),
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newRouter(&fakeService{err: tt.err}), tt.req(t))
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["message"])
		})
	}
}

func TestProcessBatch(t *testing.T) {
	r := newRouter(&fakeService{})

	w := serve(r, multipartRequest(t, "/batch", "files", "a.pdf", "b.pdf"))
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Processing 2 documents", body["message"])
	tasks := body["tasks"].([]interface{})
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-b.pdf", tasks[1].(map[string]interface{})["taskId"])

	w = serve(r, multipartRequest(t, "/batch", "files"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/status/t1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "t1", body["taskId"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "txt", body["metadata"].(map[string]interface{})["parseType"])
}

func TestDownloadResult(t *testing.T) {
	w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/download/t1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=result_t1.json", w.Header().Get("Content-Disposition"))
	body := decode(t, w)
	assert.Equal(t, "txt", body["_parse_type"])
	assert.Equal(t, "test", body["_version_name"])

	svc := &fakeService{err: fmt.Errorf("%w: task is running", document.ErrResultNotReady)}
	w = serve(newRouter(svc), httptest.NewRequest(http.MethodGet, "/download/t1", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelTask(t *testing.T) {
	svc := &fakeService{}
	w := serve(newRouter(svc), httptest.NewRequest(http.MethodDelete, "/task/t7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"t7"}, svc.cancelled)
}
