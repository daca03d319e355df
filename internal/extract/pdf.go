package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pageFileRe = regexp.MustCompile(`(\d+)\.txt$`)

// pdfText extracts page content streams with pdfcpu and keeps the string
// operands of the text-showing operators
func (e *Extractor) pdfText(path string, maxChars int) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf context: %w", err)
	}

	outDir, err := os.MkdirTemp("", "filesense-pdf-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(outDir)
	}()

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Int("pages", pdfCtx.PageCount).Msg("pdf content extraction failed")
		return "", nil
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("failed to list extracted content: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return pageNumber(entries[i].Name()) < pageNumber(entries[j].Name())
	})

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stream, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		sb.WriteString(contentStreamText(stream))
		sb.WriteByte('\n')
		if sb.Len() > maxChars*4 {
			break
		}
	}
	return sb.String(), nil
}

func pageNumber(name string) int {
	m := pageFileRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// contentStreamText walks a PDF content stream and collects literal string
// operands inside BT/ET blocks. Hex strings and custom font encodings are
// skipped, so the result is best-effort.
func contentStreamText(stream []byte) string {
	var (
		sb     strings.Builder
		inText bool
	)
	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c == '(' && inText:
			s, next := readLiteral(stream, i+1)
			sb.WriteString(s)
			i = next
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isOperatorStart(stream, i, "BT"):
			inText = true
			i++
		case isOperatorStart(stream, i, "ET"):
			inText = false
			sb.WriteByte('\n')
			i++
		case inText && (isOperatorStart(stream, i, "Td") || isOperatorStart(stream, i, "TD") || isOperatorStart(stream, i, "T*")):
			sb.WriteByte(' ')
			i++
		}
	}
	return sb.String()
}

// isOperatorStart reports whether op appears at i as a standalone token
func isOperatorStart(b []byte, i int, op string) bool {
	if i+len(op) > len(b) || string(b[i:i+len(op)]) != op {
		return false
	}
	if i > 0 && !isDelimiter(b[i-1]) {
		return false
	}
	end := i + len(op)
	return end == len(b) || isDelimiter(b[end])
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes a (...) string starting after the opening paren and
// returns the text plus the index of the closing paren
func readLiteral(b []byte, i int) (string, int) {
	var sb strings.Builder
	depth := 1
	for ; i < len(b); i++ {
		c := b[i]
		switch c {
		case '\\':
			if i+1 >= len(b) {
				return sb.String(), i
			}
			i++
			switch b[i] {
			case 'n', 'r', 't', 'f':
				sb.WriteByte(' ')
			case 'b':
			case '(', ')', '\\':
				sb.WriteByte(b[i])
			default:
				if b[i] >= '0' && b[i] <= '7' {
					end := i
					for end < len(b) && end < i+3 && b[end] >= '0' && b[end] <= '7' {
						end++
					}
					v, _ := strconv.ParseUint(string(b[i:end]), 8, 8)
					if v >= 32 && v < 127 {
						sb.WriteByte(byte(v))
					}
					i = end - 1
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		default:
			if c >= 32 && c < 127 {
				sb.WriteByte(c)
			}
		}
	}
	return sb.String(), i
}
