package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-dispatcher/internal/models"
	"github.com/feichai0017/pdf-dispatcher/internal/testutil"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
)

type fakeReader struct {
	pages   []string
	failOn  int
	panicOn int
}

func (f *fakeReader) NumPage() int { return len(f.pages) }

func (f *fakeReader) PageText(pageNr int) (string, error) {
	if pageNr == f.panicOn {
		panic("broken xref")
	}
	if pageNr == f.failOn {
		return "", errors.New("bad font")
	}
	return f.pages[pageNr-1], nil
}

type fakeOpener struct {
	reader *fakeReader
	err    error
}

func (f fakeOpener) Open([]byte) (PageReader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reader, nil
}

func classify(t *testing.T, opener PageOpener) Classification {
	t.Helper()
	c := NewClassifier(opener, logger.NewTestLogger())
	return c.Inspect(context.Background(), &models.Document{ID: "doc.pdf", Data: []byte("%PDF-1.7")})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  models.DocumentType
	}{
		{"all pages carry text", []string{"intro", "body", "appendix"}, models.TypeNormal},
		{"single text page", []string{"only"}, models.TypeNormal},
		{"all pages empty", []string{"", "", ""}, models.TypeScanned},
		{"whitespace only counts as empty", []string{" \n\t", "\r\n"}, models.TypeScanned},
		{"text and empty pages", []string{"title", "", "notes"}, models.TypeMixed},
		{"leading scanned page", []string{"   ", "abstract"}, models.TypeMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, fakeOpener{reader: &fakeReader{pages: tt.pages}})
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, len(tt.pages), got.TotalPages)
			assert.Equal(t, got.TotalPages, got.TextPages+got.ScannedPages)
			assert.NoError(t, got.Err)
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	tests := []struct {
		name   string
		opener PageOpener
	}{
		{"open fails", fakeOpener{err: errors.New("not a pdf")}},
		{"one page fails", fakeOpener{reader: &fakeReader{pages: []string{"a", "b", "c"}, failOn: 2}}},
		{"parser panics", fakeOpener{reader: &fakeReader{pages: []string{"a", "b"}, panicOn: 1}}},
		{"no pages", fakeOpener{reader: &fakeReader{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, tt.opener)
			assert.Equal(t, models.TypeUnknown, got.Type)
			assert.Error(t, got.Err)
		})
	}
}

func TestClassifyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClassifier(fakeOpener{reader: &fakeReader{pages: []string{"a"}}}, logger.NewTestLogger())
	got := c.Classify(ctx, &models.Document{ID: "doc.pdf"})
	assert.Equal(t, models.TypeUnknown, got)
}

func TestClassifyLogsFailureAsWarning(t *testing.T) {
	log := logger.NewTestLogger()
	c := NewClassifier(fakeOpener{err: errors.New("truncated file")}, log)

	c.Classify(context.Background(), &models.Document{ID: "broken.pdf"})

	assert.Equal(t, []string{"Classification failed"}, log.Messages("WARN"))
}

func TestDecide(t *testing.T) {
	assert.Equal(t, models.TypeNormal, Decide(4, 0))
	assert.Equal(t, models.TypeScanned, Decide(0, 4))
	assert.Equal(t, models.TypeMixed, Decide(1, 3))
	assert.Equal(t, models.TypeUnknown, Decide(0, 0))
}

func TestNewOpener(t *testing.T) {
	o, err := NewOpener("")
	require.NoError(t, err)
	assert.IsType(t, LedongthucOpener{}, o)

	o, err = NewOpener(OpenerPdfcpu)
	require.NoError(t, err)
	assert.IsType(t, PdfcpuOpener{}, o)

	_, err = NewOpener("pypdf")
	assert.Error(t, err)
}

func TestRealOpenersRejectGarbage(t *testing.T) {
	for _, name := range []string{OpenerLedongthuc, OpenerPdfcpu} {
		t.Run(name, func(t *testing.T) {
			o, err := NewOpener(name)
			require.NoError(t, err)
			got := classify(t, o)
			assert.Equal(t, models.TypeUnknown, got.Type)
		})
	}
}

func TestClassifyGeneratedDocuments(t *testing.T) {
	docs := []struct {
		name  string
		pages []testutil.Page
		want  models.DocumentType
	}{
		{"normal", []testutil.Page{testutil.TextPage("Annual report"), testutil.TextPage("Revenue grew")}, models.TypeNormal},
		{"scanned", []testutil.Page{testutil.ImagePage(), testutil.ImagePage()}, models.TypeScanned},
		{"mixed", []testutil.Page{testutil.TextPage("Cover letter"), testutil.ImagePage()}, models.TypeMixed},
	}
	for _, backend := range []string{OpenerLedongthuc, OpenerPdfcpu} {
		for _, tt := range docs {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				opener, err := NewOpener(backend)
				require.NoError(t, err)

				c := NewClassifier(opener, logger.NewTestLogger())
				got := c.Inspect(context.Background(), &models.Document{
					ID:   tt.name + ".pdf",
					Data: testutil.BuildPDF(tt.pages...),
				})
				require.NoError(t, got.Err)
				assert.Equal(t, tt.want, got.Type)
				assert.Equal(t, len(tt.pages), got.TotalPages)
			})
		}
	}
}
