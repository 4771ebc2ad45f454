package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// analysisSchema is the response contract of the layout model service
const analysisSchema = `{
	"type": "object",
	"required": ["ocrMode", "pages"],
	"properties": {
		"ocrMode": {"type": "boolean"},
		"producer": {"type": "string"},
		"pages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["pageNr"],
				"properties": {
					"pageNr": {"type": "integer", "minimum": 1},
					"hasText": {"type": "boolean"},
					"imageObjNrs": {"type": "array", "items": {"type": "integer"}},
					"forceOcr": {"type": "boolean"}
				}
			}
		}
	}
}`

type RemoteConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type analyzeRequest struct {
	Document string `json:"document"`
	OCRMode  bool   `json:"ocrMode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RemoteAnalyzer asks an external layout model service for the analysis
type RemoteAnalyzer struct {
	endpoint   string
	httpClient *http.Client
	schema     *jsonschema.Schema
	logger     logger.Logger
}

func NewRemoteAnalyzer(cfg RemoteConfig, log logger.Logger) (*RemoteAnalyzer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote analyzer endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("analysis.json", strings.NewReader(analysisSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("analysis.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &RemoteAnalyzer{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		schema:     schema,
		logger:     log.Named("remote-analyzer"),
	}, nil
}

func (a *RemoteAnalyzer) Analyze(ctx context.Context, data []byte, ocrMode bool) (*models.ModelAnalysis, error) {
	reqData, err := json.Marshal(analyzeRequest{
		Document: base64.StdEncoding.EncodeToString(data),
		OCRMode:  ocrMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/analyze", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("analyzer error (status %d): %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := a.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("analysis does not match schema: %w", err)
	}

	var analysis models.ModelAnalysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if analysis.OCRMode != ocrMode {
		return nil, fmt.Errorf("analyzer answered ocrMode=%t for a request with ocrMode=%t", analysis.OCRMode, ocrMode)
	}
	if analysis.Producer == "" {
		analysis.Producer = a.endpoint
	}

	a.logger.Debug("Remote analysis received",
		logger.Int("pages", len(analysis.Pages)),
		logger.Bool("ocrMode", ocrMode),
		logger.Duration("elapsed", time.Since(start)),
	)
	return &analysis, nil
}

func (a *RemoteAnalyzer) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
