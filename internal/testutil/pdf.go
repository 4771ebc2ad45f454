// Package testutil builds small, well-formed PDF files for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one generated page. Text is drawn with Helvetica; Image places an
// 8x8 gray image XObject on the page.
type Page struct {
	Text  string
	Image bool
}

// TextPage and ImagePage are shorthands for the common cases
func TextPage(text string) Page { return Page{Text: text} }

func ImagePage() Page { return Page{Image: true} }

// BuildPDF writes an uncompressed PDF 1.4 file with a classic xref table
func BuildPDF(pages ...Page) []byte {
	type object struct {
		body   string
		stream []byte
	}

	objects := []object{
		{body: "<< /Type /Catalog /Pages 2 0 R >>"},
		{}, // page tree, filled in below
		{body: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"},
	}
	add := func(o object) int {
		objects = append(objects, o)
		return len(objects)
	}

	var kids []string
	for _, p := range pages {
		var content strings.Builder
		if p.Text != "" {
			fmt.Fprintf(&content, "BT /F1 12 Tf 72 712 Td (%s) Tj ET\n", escape(p.Text))
		}

		xobjects := ""
		if p.Image {
			img := add(object{
				body:   "<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceGray /BitsPerComponent 8",
				stream: bytes.Repeat([]byte{0x80}, 64),
			})
			xobjects = fmt.Sprintf(" /XObject << /Im0 %d 0 R >>", img)
			content.WriteString("q 200 0 0 200 72 400 cm /Im0 Do Q\n")
		}

		contents := add(object{body: "<<", stream: []byte(content.String())})
		page := add(object{body: fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >>%s >> /Contents %d 0 R >>",
			xobjects, contents,
		)})
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objects[1] = object{body: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, o := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		if o.stream != nil {
			fmt.Fprintf(&buf, "%s /Length %d >>\nstream\n", o.body, len(o.stream))
			buf.Write(o.stream)
			buf.WriteString("\nendstream\n")
		} else {
			buf.WriteString(o.body)
			buf.WriteString("\n")
		}
		buf.WriteString("endobj\n")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
