package agent

import (
	"context"
	"fmt"

	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/agent/document/image"
	"github.com/feichai0017/pdf-dispatcher/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-dispatcher/internal/analyzer"
	"github.com/feichai0017/pdf-dispatcher/internal/classifier"
	"github.com/feichai0017/pdf-dispatcher/internal/dispatch"
	"github.com/feichai0017/pdf-dispatcher/internal/strategy"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
)

const (
	OCREngineTesseract = "tesseract"
	OCREngineTextract  = "textract"

	AnalyzerLayout = "layout"
	AnalyzerRemote = "remote"
)

// EngineFactory builds the classifier, analyzer and engines selected by the dispatcher
// configuration and assembles them into a pipeline
type EngineFactory struct {
	config *cfg.DispatcherConfig
	logger logger.Logger
}

func NewEngineFactory(dc *cfg.DispatcherConfig, log logger.Logger) *EngineFactory {
	if dc == nil {
		dc = cfg.DefaultDispatcherConfig()
	}
	return &EngineFactory{config: dc, logger: log}
}

func (f *EngineFactory) NewClassifier() (*classifier.Classifier, error) {
	opener, err := classifier.NewOpener(f.config.Probe)
	if err != nil {
		return nil, err
	}
	return classifier.NewClassifier(opener, f.logger), nil
}

func (f *EngineFactory) NewAnalyzer() (dispatch.Analyzer, error) {
	switch f.config.Analyzer {
	case AnalyzerLayout, "":
		return analyzer.NewLayoutAnalyzer(f.logger), nil
	case AnalyzerRemote:
		return analyzer.NewRemoteAnalyzer(analyzer.RemoteConfig{
			Endpoint: f.config.AnalyzerEndpoint,
			Timeout:  f.config.AnalyzerTimeout,
		}, f.logger)
	default:
		return nil, fmt.Errorf("unsupported analyzer: %s", f.config.Analyzer)
	}
}

func (f *EngineFactory) NewRecognizer(ctx context.Context) (image.Recognizer, error) {
	switch f.config.OCREngine {
	case OCREngineTesseract, "":
		opts := image.DefaultTesseractOptions()
		if len(f.config.OCRLanguages) > 0 {
			opts.Languages = f.config.OCRLanguages
		}
		return image.NewTesseractRecognizer(opts), nil
	case OCREngineTextract:
		textractCfg := cfg.GetTextractConfig()
		rec, err := image.NewTextractRecognizer(ctx, &image.TextractConfig{
			Region:        textractCfg.Region,
			Endpoint:      textractCfg.Endpoint,
			AccessKey:     textractCfg.AccessKey,
			SecretKey:     textractCfg.SecretKey,
			MinConfidence: float32(textractCfg.MinConfidence),
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract recognizer: %w", err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unsupported ocr engine: %s", f.config.OCREngine)
	}
}

// NewPipeline wires the configured components. Both strategies are stamped with the
// build version.
func (f *EngineFactory) NewPipeline(ctx context.Context) (*dispatch.Pipeline, error) {
	c, err := f.NewClassifier()
	if err != nil {
		return nil, err
	}
	a, err := f.NewAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}
	rec, err := f.NewRecognizer(ctx)
	if err != nil {
		return nil, err
	}

	text := pdf.NewTextEngine(f.logger)
	ocr := image.NewProcessor(rec, f.logger, image.WithPreprocess(image.DefaultPreprocessConfig()))

	f.logger.Info("Pipeline assembled",
		logger.String("probe", f.config.Probe),
		logger.String("analyzer", f.config.Analyzer),
		logger.String("textEngine", text.Name()),
		logger.String("ocrEngine", ocr.Name()),
		logger.String("version", version.Version),
	)

	return dispatch.NewPipeline(
		c,
		a,
		strategy.NewText(text, version.Version, f.logger),
		strategy.NewOCR(ocr, version.Version, f.logger),
		f.logger,
	), nil
}
