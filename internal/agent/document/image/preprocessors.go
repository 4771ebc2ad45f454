package image

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Preprocessor transforms a page image before recognition
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

type PreprocessConfig struct {
	// MinWidth upscales narrower images; OCR accuracy drops sharply below ~300 DPI
	MinWidth          int     `yaml:"minWidth"`
	DenoiseStrength   float64 `yaml:"denoiseStrength"`
	Contrast          float64 `yaml:"contrast"`
	AdaptiveThreshold bool    `yaml:"adaptiveThreshold"`
	AdaptiveBlockSize int     `yaml:"adaptiveBlockSize"`
	AdaptiveConstant  float64 `yaml:"adaptiveConstant"`
	SharpenStrength   float64 `yaml:"sharpenStrength"`
}

func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		MinWidth:          1200,
		DenoiseStrength:   0.5,
		Contrast:          20,
		AdaptiveThreshold: true,
		AdaptiveBlockSize: 15,
		AdaptiveConstant:  10,
		SharpenStrength:   0.5,
	}
}

// NewPipeline builds the preprocessing chain; zero values disable a step
func NewPipeline(cfg PreprocessConfig) []Preprocessor {
	var pipeline []Preprocessor
	if cfg.MinWidth > 0 {
		pipeline = append(pipeline, NewScaleProcessor(cfg.MinWidth))
	}
	pipeline = append(pipeline, NewGrayscaleProcessor())
	if cfg.DenoiseStrength > 0 {
		pipeline = append(pipeline, NewDenoiseProcessor(cfg.DenoiseStrength))
	}
	if cfg.Contrast != 0 {
		pipeline = append(pipeline, NewContrastProcessor(cfg.Contrast))
	}
	if cfg.AdaptiveThreshold && cfg.AdaptiveBlockSize > 1 {
		pipeline = append(pipeline, NewAdaptiveThresholdProcessor(cfg.AdaptiveBlockSize, cfg.AdaptiveConstant))
	}
	if cfg.SharpenStrength > 0 {
		pipeline = append(pipeline, NewSharpenProcessor(cfg.SharpenStrength))
	}
	return pipeline
}

// Apply runs img through every preprocessor in order
func Apply(img image.Image, pipeline []Preprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var err error
	result := img
	for _, p := range pipeline {
		result, err = p.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}

type ScaleProcessor struct {
	minWidth int
}

func NewScaleProcessor(minWidth int) *ScaleProcessor {
	return &ScaleProcessor{minWidth: minWidth}
}

func (p *ScaleProcessor) Process(img image.Image) (image.Image, error) {
	if img.Bounds().Dx() >= p.minWidth {
		return img, nil
	}
	return imaging.Resize(img, p.minWidth, 0, imaging.Lanczos), nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// DenoiseProcessor applies a light gaussian blur
type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Blur(img, p.strength), nil
}

type ContrastProcessor struct {
	amount float64
}

func NewContrastProcessor(amount float64) *ContrastProcessor {
	return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.strength), nil
}

// AdaptiveThresholdProcessor binarizes against the mean of a blockSize window
// around each pixel, using an integral image so the cost does not grow with the window.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	return &AdaptiveThresholdProcessor{
		blockSize: blockSize,
		constant:  constant,
	}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// integral[y+1][x+1] holds the sum of all pixels above and left of (x, y), inclusive
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(gray.Pix[y*gray.Stride+x*4])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	half := p.blockSize / 2
	result := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h-1), clamp(y+half, 0, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w-1), clamp(x+half, 0, w-1)
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			mean := float64(sum) / float64(count)

			c := color.Gray{Y: 255}
			if float64(gray.Pix[y*gray.Stride+x*4]) < mean-p.constant {
				c.Y = 0
			}
			result.SetGray(bounds.Min.X+x, bounds.Min.Y+y, c)
		}
	}
	return result, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
