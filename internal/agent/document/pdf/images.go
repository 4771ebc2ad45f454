package pdf

import (
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage is one embedded image pulled out of a page
type PageImage struct {
	PageNr   int
	ObjNr    int
	Name     string
	FileType string
	Width    int
	Height   int
	Data     []byte
}

// Key is the sink-relative name for the image
func (i PageImage) Key() string {
	ext := i.FileType
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("page_%d/%s_%d.%s", i.PageNr, i.Name, i.ObjNr, ext)
}

// ExtractImages returns the embedded images of pageNr, ordered by object number
func ExtractImages(ctx *model.Context, pageNr int) (images []PageImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			images, err = nil, fmt.Errorf("pdfcpu panic on page %d: %v", pageNr, r)
		}
	}()

	found, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("extract images of page %d: %w", pageNr, err)
	}

	objNrs := make([]int, 0, len(found))
	for objNr := range found {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	for _, objNr := range objNrs {
		img := found[objNr]
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("read image %d of page %d: %w", objNr, pageNr, err)
		}
		images = append(images, PageImage{
			PageNr:   pageNr,
			ObjNr:    objNr,
			Name:     img.Name,
			FileType: img.FileType,
			Width:    img.Width,
			Height:   img.Height,
			Data:     data,
		})
	}
	return images, nil
}

// ImageObjNrs lists the image objects referenced by pageNr
func ImageObjNrs(ctx *model.Context, pageNr int) []int {
	if ctx.Optimize == nil {
		return nil
	}
	return pdfcpu.ImageObjNrs(ctx, pageNr)
}
