package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/internal/agent/document"
	"github.com/feichai0017/pdf-dispatcher/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4+y/4)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	images map[int][]pdf.PageImage
	texts  map[int]string
	pages  int
}

func (f *fakeSource) PageCount() int { return f.pages }

func (f *fakeSource) Images(pageNr int) ([]pdf.PageImage, error) {
	return f.images[pageNr], nil
}

func (f *fakeSource) Text(pageNr int) (string, error) {
	return f.texts[pageNr], nil
}

type fakeRecognizer struct {
	mu         sync.Mutex
	calls      int
	err        error
	confidence float64
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte) (*Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	confidence := f.confidence
	if confidence == 0 {
		confidence = 90
	}
	return &Recognition{Text: fmt.Sprintf("recognized %d", f.calls), Confidence: confidence, Words: 2}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (s *recordingSink) WriteImage(_ context.Context, name string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return name, nil
}

func newTestProcessor(rec Recognizer, src pageSource) *Processor {
	p := NewProcessor(rec, logger.NewTestLogger(), WithPreprocess(PreprocessConfig{}))
	p.open = func([]byte) (pageSource, error) { return src, nil }
	return p
}

func scannedSource(t *testing.T) *fakeSource {
	return &fakeSource{
		pages: 3,
		images: map[int][]pdf.PageImage{
			1: {{PageNr: 1, ObjNr: 4, Name: "Im0", FileType: "png", Data: pngBytes(t, 64, 64)}},
			3: {{PageNr: 3, ObjNr: 9, Name: "Im1", FileType: "png", Data: pngBytes(t, 64, 64)}},
		},
		texts: map[int]string{2: "typed page"},
	}
}

func request(analysis *models.ModelAnalysis, images *recordingSink) *document.ParseRequest {
	return &document.ParseRequest{
		Document: &models.Document{ID: "scan.pdf", Data: []byte("%PDF")},
		Analysis: analysis,
		Images:   images,
	}
}

func TestProcessorRecognizesForcedPages(t *testing.T) {
	rec := &fakeRecognizer{}
	images := &recordingSink{}
	analysis := &models.ModelAnalysis{OCRMode: true, Pages: []models.PageLayout{
		{PageNr: 1, ForceOCR: true},
		{PageNr: 2, HasText: true, ForceOCR: true},
		{PageNr: 3, ForceOCR: true},
	}}

	result, err := newTestProcessor(rec, scannedSource(t)).Parse(context.Background(), request(analysis, images))
	require.NoError(t, err)

	require.Len(t, result.Pages, 3)
	assert.Equal(t, "recognized 1", result.Pages[0].Text)
	assert.Equal(t, "fake", result.Pages[0].Source)
	assert.InDelta(t, 90, result.Pages[0].Confidence, 0.001)
	assert.Equal(t, "", result.Pages[1].Text, "forced page without images yields no text")
	assert.Equal(t, "recognized 2", result.Pages[2].Text)
	assert.Equal(t, 2, rec.calls)
	assert.Equal(t, []string{"page_1/Im0_4.png", "page_3/Im1_9.png"}, images.names)
	assert.Equal(t, images.names, result.Images)
	assert.False(t, result.NeedDrop)
}

func TestProcessorKeepsTextLayerPages(t *testing.T) {
	rec := &fakeRecognizer{}
	analysis := &models.ModelAnalysis{Pages: []models.PageLayout{
		{PageNr: 1},
		{PageNr: 2, HasText: true},
		{PageNr: 3, ImageObjNrs: []int{9}},
	}}

	result, err := newTestProcessor(rec, scannedSource(t)).Parse(context.Background(), request(analysis, &recordingSink{}))
	require.NoError(t, err)

	require.Len(t, result.Pages, 3)
	assert.Equal(t, "typed page", result.Pages[1].Text)
	assert.Equal(t, "text-layer", result.Pages[1].Source)
	assert.Equal(t, 2, rec.calls)
}

func TestProcessorStartPage(t *testing.T) {
	rec := &fakeRecognizer{}
	req := request(nil, &recordingSink{})
	req.StartPage = 2

	result, err := newTestProcessor(rec, scannedSource(t)).Parse(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, 3, result.Pages[0].PageNr)

	req.StartPage = 3
	_, err = newTestProcessor(rec, scannedSource(t)).Parse(context.Background(), req)
	assert.Error(t, err)
}

func TestProcessorRecognizerFailure(t *testing.T) {
	boom := errors.New("tesseract crashed")
	_, err := newTestProcessor(&fakeRecognizer{err: boom}, scannedSource(t)).
		Parse(context.Background(), request(nil, &recordingSink{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestProcessorSkipsUndecodableAndTinyImages(t *testing.T) {
	rec := &fakeRecognizer{}
	src := &fakeSource{
		pages: 1,
		images: map[int][]pdf.PageImage{1: {
			{PageNr: 1, ObjNr: 1, Name: "Im0", FileType: "jpx", Data: []byte("not an image")},
			{PageNr: 1, ObjNr: 2, Name: "Im1", FileType: "png", Data: pngBytes(t, 8, 8)},
		}},
	}

	result, err := newTestProcessor(rec, src).Parse(context.Background(), request(nil, &recordingSink{}))
	require.NoError(t, err)

	assert.Equal(t, 0, rec.calls)
	require.Len(t, result.Pages, 1)
	assert.Empty(t, result.Pages[0].Text)
}

func TestProcessorDebugWritesPreprocessedImages(t *testing.T) {
	images := &recordingSink{}
	req := request(nil, images)
	req.Debug = true

	result, err := newTestProcessor(&fakeRecognizer{}, scannedSource(t)).Parse(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, images.names, "page_1/ocr_4.png")
	assert.Contains(t, images.names, "page_3/ocr_9.png")
	assert.Equal(t, "fake", result.Debug["recognizer"])
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestProcessor(&fakeRecognizer{}, scannedSource(t)).Parse(ctx, request(nil, &recordingSink{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineProducesBinaryImage(t *testing.T) {
	src, err := png.Decode(bytes.NewReader(pngBytes(t, 40, 20)))
	require.NoError(t, err)

	cfg := DefaultPreprocessConfig()
	cfg.MinWidth = 80
	out, err := Apply(src, NewPipeline(cfg))
	require.NoError(t, err)

	assert.Equal(t, 80, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())
}

func TestAdaptiveThreshold(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 230
	}
	img.SetGray(4, 4, color.Gray{Y: 10})

	out, err := NewAdaptiveThresholdProcessor(5, 10).Process(img)
	require.NoError(t, err)

	gray := out.(*image.Gray)
	assert.Equal(t, uint8(0), gray.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(8, 8).Y)
}

func TestApplyRejectsNil(t *testing.T) {
	_, err := Apply(nil, NewPipeline(DefaultPreprocessConfig()))
	assert.Error(t, err)
}

func forcedAnalysis() *models.ModelAnalysis {
	return &models.ModelAnalysis{OCRMode: true, Pages: []models.PageLayout{
		{PageNr: 1, ForceOCR: true},
		{PageNr: 2, HasText: true},
		{PageNr: 3, ForceOCR: true},
	}}
}

func TestProcessorReportsLowConfidencePages(t *testing.T) {
	rec := &fakeRecognizer{confidence: 42}
	req := request(forcedAnalysis(), &recordingSink{})
	req.Debug = true

	result, err := newTestProcessor(rec, scannedSource(t)).Parse(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 42, result.Pages[0].Confidence, 0.001)
	assert.Equal(t, []int{1, 3}, result.Debug["lowConfidencePages"])
}

func TestProcessorLowConfidenceThreshold(t *testing.T) {
	rec := &fakeRecognizer{confidence: 42}
	req := request(forcedAnalysis(), &recordingSink{})
	req.Debug = true

	p := newTestProcessor(rec, scannedSource(t))
	WithLowConfidence(40)(p)
	result, err := p.Parse(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Debug["lowConfidencePages"])
}

func TestWordConfidenceCountsEveryWord(t *testing.T) {
	conf, words := wordConfidence([]gosseract.BoundingBox{
		{Word: "clear", Confidence: 90},
		{Word: "smudged", Confidence: 20},
		{Word: " ", Confidence: 0},
	})
	assert.Equal(t, 2, words)
	assert.InDelta(t, 55, conf, 0.001)

	conf, words = wordConfidence(nil)
	assert.Zero(t, conf)
	assert.Zero(t, words)
}

func TestTextractBlocksKeepConfidentLines(t *testing.T) {
	r := NewTextractRecognizerWithClient(nil, &TextractConfig{MinConfidence: 80}, logger.NewTestLogger())
	line := func(text string, conf float32) types.Block {
		return types.Block{BlockType: types.BlockTypeLine, Text: aws.String(text), Confidence: aws.Float32(conf)}
	}

	texts, conf := r.processBlocks([]types.Block{
		line("Invoice 42", 95),
		line("~~ noise ~~", 35),
		{BlockType: types.BlockTypeWord, Text: aws.String("Invoice"), Confidence: aws.Float32(95)},
	})
	assert.Equal(t, []string{"Invoice 42"}, texts)
	assert.InDelta(t, 65, conf, 0.001)
}
