package classifier

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	pdfdoc "github.com/feichai0017/pdf-dispatcher/internal/agent/document/pdf"
)

// PageOpener opens raw document bytes for probing
type PageOpener interface {
	Open(data []byte) (PageReader, error)
}

const (
	OpenerLedongthuc = "ledongthuc"
	OpenerPdfcpu     = "pdfcpu"
)

// NewOpener returns the backend registered under name
func NewOpener(name string) (PageOpener, error) {
	switch name {
	case OpenerLedongthuc, "":
		return LedongthucOpener{}, nil
	case OpenerPdfcpu:
		return PdfcpuOpener{}, nil
	default:
		return nil, fmt.Errorf("unsupported probe backend: %s", name)
	}
}

// LedongthucOpener reads the text layer with github.com/ledongthuc/pdf
type LedongthucOpener struct{}

func (LedongthucOpener) Open(data []byte) (PageReader, error) {
	reader := bytes.NewReader(data)
	r, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &ledongthucReader{r: r}, nil
}

type ledongthucReader struct {
	r *pdf.Reader
}

func (l *ledongthucReader) NumPage() int {
	return l.r.NumPage()
}

func (l *ledongthucReader) PageText(pageNr int) (string, error) {
	page := l.r.Page(pageNr)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// PdfcpuOpener reads text operators from the page content streams with pdfcpu
type PdfcpuOpener struct{}

func (PdfcpuOpener) Open(data []byte) (PageReader, error) {
	ctx, err := pdfdoc.OpenContext(data)
	if err != nil {
		return nil, err
	}
	return &pdfcpuReader{ctx: ctx}, nil
}

type pdfcpuReader struct {
	ctx *model.Context
}

func (p *pdfcpuReader) NumPage() int {
	return p.ctx.PageCount
}

func (p *pdfcpuReader) PageText(pageNr int) (string, error) {
	return pdfdoc.PageContentText(p.ctx, pageNr)
}
