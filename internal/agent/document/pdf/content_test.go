package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "simple Tj",
			stream: "BT /F1 12 Tf 72 712 Td (Hello World) Tj ET",
			want:   "Hello World",
		},
		{
			name:   "TJ array with kerning",
			stream: "BT [(Hel) -20 (lo)] TJ ET",
			want:   "Hello",
		},
		{
			name:   "escapes and nested parens",
			stream: `BT (a\(b\) \(c) Tj (x (y) z) Tj ET`,
			want:   "a(b) (cx (y) z",
		},
		{
			name:   "octal escape",
			stream: `BT (\101\102C) Tj ET`,
			want:   "ABC",
		},
		{
			name:   "hex string",
			stream: "BT <48656C6C6F> Tj ET",
			want:   "Hello",
		},
		{
			name:   "strings not shown are ignored",
			stream: "/Span <</ActualText (ignored)>> BDC EMC q 1 0 0 1 0 0 cm /Im0 Do Q",
			want:   "",
		},
		{
			name:   "image only page",
			stream: "q 595 0 0 842 0 0 cm /Im1 Do Q",
			want:   "",
		},
		{
			name:   "comments are skipped",
			stream: "% (not text) Tj\nBT (real) Tj ET",
			want:   "real",
		},
		{
			name:   "inline image payload skipped",
			stream: "BI /W 1 /H 1 /BPC 8 /CS /G ID \x00(Tj)\xff EI BT (after) Tj ET",
			want:   "after",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(ContentText([]byte(tt.stream)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageImageKey(t *testing.T) {
	img := PageImage{PageNr: 3, ObjNr: 12, Name: "Im0", FileType: "png"}
	assert.Equal(t, "page_3/Im0_12.png", img.Key())

	img.FileType = ""
	assert.Equal(t, "page_3/Im0_12.bin", img.Key())
}
