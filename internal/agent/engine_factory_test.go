package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/analyzer"
	"github.com/feichai0017/pdf-dispatcher/internal/dispatch"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/testutil"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

func TestNewAnalyzer(t *testing.T) {
	dc := cfg.DefaultDispatcherConfig()
	f := NewEngineFactory(dc, logger.NewTestLogger())

	a, err := f.NewAnalyzer()
	require.NoError(t, err)
	assert.IsType(t, &analyzer.LayoutAnalyzer{}, a)

	dc.Analyzer = AnalyzerRemote
	_, err = f.NewAnalyzer()
	assert.Error(t, err, "remote analyzer without endpoint")

	dc.AnalyzerEndpoint = "http://localhost:9000"
	a, err = f.NewAnalyzer()
	require.NoError(t, err)
	assert.IsType(t, &analyzer.RemoteAnalyzer{}, a)

	dc.Analyzer = "crystal-ball"
	_, err = f.NewAnalyzer()
	assert.Error(t, err)
}

func TestNewRecognizer(t *testing.T) {
	dc := cfg.DefaultDispatcherConfig()
	f := NewEngineFactory(dc, logger.NewTestLogger())

	rec, err := f.NewRecognizer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tesseract", rec.Name())

	dc.OCREngine = "abbyy"
	_, err = f.NewRecognizer(context.Background())
	assert.Error(t, err)
}

func TestNewClassifierRejectsUnknownProbe(t *testing.T) {
	dc := cfg.DefaultDispatcherConfig()
	dc.Probe = "pypdf"

	_, err := NewEngineFactory(dc, logger.NewTestLogger()).NewPipeline(context.Background())
	assert.Error(t, err)
}

func TestNewPipelineProcessesTextDocument(t *testing.T) {
	p, err := NewEngineFactory(nil, logger.NewTestLogger()).NewPipeline(context.Background())
	require.NoError(t, err)

	doc := &models.Document{
		ID:   "minutes.pdf",
		Data: testutil.BuildPDF(testutil.TextPage("The committee approved the plan")),
	}
	res, err := p.Process(context.Background(), dispatch.Request{Document: doc})
	require.NoError(t, err)

	assert.Equal(t, models.TypeNormal, res.Classification.Type)
	assert.Equal(t, dispatch.PathText, res.Path)
	assert.Equal(t, models.ParseTypeTxt, res.Outcome.ParseType)
	assert.Equal(t, "pdf-text", res.Outcome.Engine)
	assert.Contains(t, res.Outcome.Text(), "committee")
}
