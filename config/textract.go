package config

import (
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

// TextractConfig configures the cloud OCR recognizer. Words below MinConfidence (0-100) are dropped.
type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float64
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()

		textractConfig = &TextractConfig{
			Region:        envString("AWS_REGION", "us-east-1"),
			Endpoint:      envString("TEXTRACT_ENDPOINT", envString("AWS_ENDPOINT", "")),
			AccessKey:     envString("AWS_ACCESS_KEY", ""),
			SecretKey:     envString("AWS_SECRET_KEY", ""),
			MinConfidence: float64(envInt("TEXTRACT_MIN_CONFIDENCE", 80)),
		}
	})
	return textractConfig
}
