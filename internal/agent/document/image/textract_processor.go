package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

// TextractAPI is the part of the textract client the recognizer uses
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

// TextractRecognizer sends page images to AWS Textract
type TextractRecognizer struct {
	client TextractAPI
	logger logger.Logger
	config *TextractConfig
}

func NewTextractRecognizer(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractRecognizer, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTextractRecognizerWithClient(client, cfg, log), nil
}

func NewTextractRecognizerWithClient(client TextractAPI, cfg *TextractConfig, log logger.Logger) *TextractRecognizer {
	return &TextractRecognizer{
		client: client,
		logger: log.Named("textract"),
		config: cfg,
	}
}

func (r *TextractRecognizer) Name() string {
	return "textract"
}

func (r *TextractRecognizer) Recognize(ctx context.Context, png []byte) (*Recognition, error) {
	out, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: png},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	lines, confidence := r.processBlocks(out.Blocks)
	r.logger.Debug("Textract lines detected",
		logger.Int("blocks", len(out.Blocks)),
		logger.Int("lines", len(lines)),
	)
	return &Recognition{
		Text:       strings.Join(lines, "\n"),
		Confidence: confidence,
		Words:      countWords(out.Blocks),
	}, nil
}

// processBlocks keeps the text of LINE blocks at or above the configured confidence. The
// returned confidence is the mean over every line, dropped ones included.
func (r *TextractRecognizer) processBlocks(blocks []types.Block) ([]string, float64) {
	var (
		texts []string
		total float64
		lines int
	)
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil || block.Confidence == nil {
			continue
		}
		total += float64(*block.Confidence)
		lines++
		if *block.Confidence < r.config.MinConfidence {
			continue
		}
		texts = append(texts, *block.Text)
	}
	if lines == 0 {
		return nil, 0
	}
	return texts, total / float64(lines)
}

func countWords(blocks []types.Block) int {
	n := 0
	for _, block := range blocks {
		if block.BlockType == types.BlockTypeWord {
			n++
		}
	}
	return n
}
