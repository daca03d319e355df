package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/phuslu/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupported is returned for formats with no text to extract
var ErrUnsupported = errors.New("unsupported format")

const (
	// DefaultMaxChars bounds the snippet handed to enrichment providers
	DefaultMaxChars = 8000
	// readLimit bounds how much of a plain file is read
	readLimit = 1 << 20
)

var plainTextExtensions = map[string]struct{}{
	".txt": {}, ".csv": {}, ".json": {}, ".xml": {}, ".yaml": {}, ".yml": {},
	".toml": {}, ".ini": {}, ".cfg": {}, ".conf": {}, ".log": {}, ".tex": {},
	".rtf": {}, ".sql": {}, ".sh": {}, ".py": {}, ".js": {}, ".ts": {},
	".jsx": {}, ".tsx": {}, ".css": {}, ".scss": {}, ".java": {}, ".c": {},
	".cpp": {}, ".h": {}, ".hpp": {}, ".cs": {}, ".go": {}, ".rs": {},
	".rb": {}, ".php": {}, ".swift": {}, ".kt": {}, ".scala": {}, ".r": {},
}

// Extractor pulls a plain-text snippet out of documents
type Extractor struct {
	logger   *log.Logger
	markdown goldmark.Markdown
}

// New creates an Extractor
func New(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Extractor{
		logger:   logger,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Text returns up to maxChars of readable text from path. Formats without
// text, such as images and archives, return ErrUnsupported.
func (e *Extractor) Text(ctx context.Context, path string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		out string
		err error
	)
	ext := Ext(path)
	switch {
	case ext == ".pdf":
		out, err = e.pdfText(path, maxChars)
	case ext == ".md" || ext == ".markdown":
		out, err = e.markdownText(path)
	case ext == ".html" || ext == ".htm":
		out, err = htmlText(path)
	default:
		if _, ok := plainTextExtensions[ext]; ok || isTextMIME(path) {
			out, err = plainText(path)
		} else {
			return "", ErrUnsupported
		}
	}
	if err != nil {
		return "", err
	}
	return Truncate(normalizeSpace(out), maxChars), nil
}

func readPrefix(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(f, readLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func plainText(path string) (string, error) {
	data, err := readPrefix(path)
	if err != nil {
		return "", err
	}
	return toValidUTF8(data), nil
}

func (e *Extractor) markdownText(path string) (string, error) {
	src, err := readPrefix(path)
	if err != nil {
		return "", err
	}
	doc := e.markdown.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return toValidUTF8([]byte(sb.String())), nil
}

func htmlText(path string) (string, error) {
	src, err := readPrefix(path)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		parts = append(parts, strings.TrimSpace(desc))
	}
	parts = append(parts, doc.Find("body").Text())
	return strings.Join(parts, "\n"), nil
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "")
}

// normalizeSpace collapses runs of blank space and drops control characters
func normalizeSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
