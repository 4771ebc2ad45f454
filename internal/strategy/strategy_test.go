package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

type fakeEngine struct {
	result *models.EngineResult
	err    error
	got    *document.ParseRequest
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Parse(_ context.Context, req *document.ParseRequest) (*models.EngineResult, error) {
	f.got = req
	return f.result, f.err
}

func parseRequest() *document.ParseRequest {
	return &document.ParseRequest{
		Document:  &models.Document{ID: "report.pdf"},
		Analysis:  &models.ModelAnalysis{},
		StartPage: 2,
		Debug:     true,
	}
}

func TestRunTagsOutcome(t *testing.T) {
	engine := &fakeEngine{result: &models.EngineResult{
		Pages:  []models.PageContent{{PageNr: 3, Text: "hello"}},
		Images: []string{"report/page_3/Im0_5.png"},
	}}

	tests := []struct {
		name     string
		strategy *Strategy
		want     models.ParseType
	}{
		{"text", NewText(engine, "1.2.0", logger.NewTestLogger()), models.ParseTypeTxt},
		{"ocr", NewOCR(engine, "1.2.0", logger.NewTestLogger()), models.ParseTypeOCR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := parseRequest()
			outcome, err := tt.strategy.Run(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.want, tt.strategy.Kind())
			assert.Equal(t, tt.want, outcome.ParseType)
			assert.Equal(t, "1.2.0", outcome.VersionName)
			assert.Equal(t, "fake", outcome.Engine)
			assert.Equal(t, "hello", outcome.Text())
			assert.Equal(t, []string{"report/page_3/Im0_5.png"}, outcome.Images)
			assert.Same(t, req, engine.got, "request is passed through unchanged")
		})
	}
}

func TestRunPropagatesNeedDrop(t *testing.T) {
	engine := &fakeEngine{result: &models.EngineResult{NeedDrop: true, DropReason: "empty text layer"}}

	outcome, err := NewText(engine, "v", logger.NewTestLogger()).Run(context.Background(), parseRequest())
	require.NoError(t, err)
	assert.True(t, outcome.NeedDrop)
	assert.Equal(t, "empty text layer", outcome.DropReason)
}

func TestRunWrapsEngineError(t *testing.T) {
	cause := errors.New("xref table broken")
	engine := &fakeEngine{err: cause}

	outcome, err := NewOCR(engine, "v", logger.NewTestLogger()).Run(context.Background(), parseRequest())
	require.Error(t, err)
	assert.Nil(t, outcome)

	var execErr *StrategyExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ParseTypeOCR, execErr.Kind)
	assert.Equal(t, "report.pdf", execErr.DocumentID)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ocr strategy failed for report.pdf")
}

func TestRunRejectsNilResult(t *testing.T) {
	_, err := NewText(&fakeEngine{}, "v", logger.NewTestLogger()).Run(context.Background(), parseRequest())

	var execErr *StrategyExecutionError
	assert.ErrorAs(t, err, &execErr)
}
