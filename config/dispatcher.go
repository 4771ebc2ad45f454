package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	dispatcherOnce   sync.Once
	dispatcherConfig *DispatcherConfig
)

// DispatcherConfig drives classification, dispatch and the batch runner
type DispatcherConfig struct {
	SourceDir       string        `yaml:"source_dir"`
	SourcePrefix    string        `yaml:"source_prefix"`
	StartPage       int           `yaml:"start_page"`
	Debug           bool          `yaml:"debug"`
	Concurrency     int           `yaml:"concurrency"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	MaxFileSize     int64         `yaml:"max_file_size"`

	// Probe selects the page text backend: ledongthuc or pdfcpu
	Probe string `yaml:"probe"`
	// Analyzer selects the layout analyzer: layout or remote
	Analyzer         string        `yaml:"analyzer"`
	AnalyzerEndpoint string        `yaml:"analyzer_endpoint"`
	AnalyzerTimeout  time.Duration `yaml:"analyzer_timeout"`
	// OCREngine selects the OCR backend: tesseract or textract
	OCREngine    string   `yaml:"ocr_engine"`
	OCRLanguages []string `yaml:"ocr_languages"`

	Storage     string `yaml:"storage"`
	LocalRoot   string `yaml:"local_root"`
	ImagePrefix string `yaml:"image_prefix"`
	// ResultPrefix is where accepted outcomes are written; empty disables result storage
	ResultPrefix string `yaml:"result_prefix"`

	LogLevel    string `yaml:"log_level"`
	LogEncoding string `yaml:"log_encoding"`
}

// DefaultDispatcherConfig reproduces the sequential reference behaviour
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		SourceDir:       ".",
		Concurrency:     1,
		MaxFileSize:     200 * 1024 * 1024,
		Probe:           "ledongthuc",
		Analyzer:        "layout",
		AnalyzerTimeout: 2 * time.Minute,
		OCREngine:       "tesseract",
		OCRLanguages:    []string{"eng"},
		Storage:         "local",
		LocalRoot:       "data",
		ImagePrefix:     "images",
		ResultPrefix:    "results",
		LogLevel:        "info",
		LogEncoding:     "json",
	}
}

// LoadDispatcherConfig applies the YAML file at path (if any) over the defaults, then the
// DISPATCHER_* environment variables over that.
func LoadDispatcherConfig(path string) (*DispatcherConfig, error) {
	cfg := DefaultDispatcherConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.SourceDir = envString("DISPATCHER_SOURCE_DIR", cfg.SourceDir)
	cfg.SourcePrefix = envString("DISPATCHER_SOURCE_PREFIX", cfg.SourcePrefix)
	cfg.StartPage = envInt("DISPATCHER_START_PAGE", cfg.StartPage)
	cfg.Debug = envBool("DISPATCHER_DEBUG", cfg.Debug)
	cfg.Concurrency = envInt("DISPATCHER_CONCURRENCY", cfg.Concurrency)
	cfg.DocumentTimeout = envDuration("DISPATCHER_DOCUMENT_TIMEOUT", cfg.DocumentTimeout)
	cfg.MaxFileSize = int64(envInt("DISPATCHER_MAX_FILE_SIZE", int(cfg.MaxFileSize)))
	cfg.Probe = envString("DISPATCHER_PROBE", cfg.Probe)
	cfg.Analyzer = envString("DISPATCHER_ANALYZER", cfg.Analyzer)
	cfg.AnalyzerEndpoint = envString("DISPATCHER_ANALYZER_ENDPOINT", cfg.AnalyzerEndpoint)
	cfg.AnalyzerTimeout = envDuration("DISPATCHER_ANALYZER_TIMEOUT", cfg.AnalyzerTimeout)
	cfg.OCREngine = envString("DISPATCHER_OCR_ENGINE", cfg.OCREngine)
	cfg.Storage = envString("DISPATCHER_STORAGE", cfg.Storage)
	cfg.LocalRoot = envString("DISPATCHER_LOCAL_ROOT", cfg.LocalRoot)
	cfg.ImagePrefix = envString("DISPATCHER_IMAGE_PREFIX", cfg.ImagePrefix)
	cfg.ResultPrefix = envString("DISPATCHER_RESULT_PREFIX", cfg.ResultPrefix)
	cfg.LogLevel = envString("DISPATCHER_LOG_LEVEL", cfg.LogLevel)
	cfg.LogEncoding = envString("DISPATCHER_LOG_ENCODING", cfg.LogEncoding)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the dispatcher cannot run with
func (c *DispatcherConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.StartPage < 0 {
		return fmt.Errorf("start page must not be negative, got %d", c.StartPage)
	}
	if c.DocumentTimeout < 0 {
		return fmt.Errorf("document timeout must not be negative, got %s", c.DocumentTimeout)
	}
	if c.Analyzer == "remote" && c.AnalyzerEndpoint == "" {
		return fmt.Errorf("remote analyzer requires an endpoint")
	}
	return nil
}

func GetDispatcherConfig() *DispatcherConfig {
	dispatcherOnce.Do(func() {
		loadEnv()

		cfg, err := LoadDispatcherConfig(os.Getenv("DISPATCHER_CONFIG_FILE"))
		if err != nil {
			log.Printf("Warning: %v, using defaults", err)
			cfg = DefaultDispatcherConfig()
		}
		dispatcherConfig = cfg
	})
	return dispatcherConfig
}
