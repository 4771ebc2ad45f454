package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// OpenContext parses and validates data with pdfcpu. The returned context is optimized,
// which is required for per-page image lookups.
func OpenContext(data []byte) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	ctx, err = api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

// PageContentText returns the text shown by the content stream of pageNr (1-based)
func PageContentText(ctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", fmt.Errorf("extract content of page %d: %w", pageNr, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read content of page %d: %w", pageNr, err)
	}
	return ContentText(data), nil
}

// ContentText collects the string operands of the text-showing operators (Tj, TJ, ' and ")
// in a decoded content stream. Bytes are mapped one to one onto runes, so the result is only
// reliable for simple fonts; it is meant for presence checks, not for final text.
func ContentText(data []byte) string {
	var (
		out     strings.Builder
		pending []string
	)

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '/':
			// names are operands
			i++
			for i < len(data) && !isSpace(data[i]) && !isDelimiter(data[i]) {
				i++
			}
		case c == '(':
			s, n := readLiteral(data[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHex(data[i:])
			pending = append(pending, s)
			i += n
		case isSpace(c) || isDelimiter(c):
			i++
		default:
			start := i
			for i < len(data) && !isSpace(data[i]) && !isDelimiter(data[i]) {
				i++
			}
			tok := string(data[start:i])
			if isOperand(tok) {
				continue
			}
			switch tok {
			case "Tj", "TJ":
				out.WriteString(strings.Join(pending, ""))
			case "'", "\"":
				out.WriteByte('\n')
				out.WriteString(strings.Join(pending, ""))
			case "Td", "TD", "Tm":
				out.WriteByte(' ')
			case "T*", "ET":
				out.WriteByte('\n')
			case "ID":
				i = skipInlineImage(data, i)
			}
			pending = pending[:0]
		}
	}

	return out.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isOperand(tok string) bool {
	if tok == "" {
		return true
	}
	switch tok[0] {
	case '+', '-', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return tok == "true" || tok == "false" || tok == "null"
}

// readLiteral reads a balanced (...) string starting at data[0] and returns its decoded
// contents and the number of bytes consumed.
func readLiteral(data []byte) (string, int) {
	var b strings.Builder
	depth := 0
	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return latin1(b.String()), i
			}
			b.WriteByte(c)
		case '\\':
			i++
			if i >= len(data) {
				break
			}
			e := data[i]
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := 0
					j := 0
					for j < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7' {
						v = v*8 + int(data[i]-'0')
						i++
						j++
					}
					b.WriteByte(byte(v))
					continue
				}
				b.WriteByte(e)
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return latin1(b.String()), i
}

func readHex(data []byte) (string, int) {
	end := bytes.IndexByte(data, '>')
	if end < 0 {
		return "", len(data)
	}
	digits := make([]byte, 0, end)
	for _, c := range data[1:end] {
		if !isSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw, err := hex.DecodeString(string(digits))
	if err != nil {
		return "", end + 1
	}
	return latin1(string(raw)), end + 1
}

// skipInlineImage advances past the binary payload of an inline image (ID ... EI)
func skipInlineImage(data []byte, i int) int {
	for j := i; j+2 < len(data); j++ {
		if isSpace(data[j]) && data[j+1] == 'E' && data[j+2] == 'I' &&
			(j+3 == len(data) || isSpace(data[j+3])) {
			return j + 3
		}
	}
	return len(data)
}

func latin1(s string) string {
	runes := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		runes = append(runes, rune(s[i]))
	}
	return string(runes)
}
