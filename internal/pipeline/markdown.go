package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrHTMLConversion indicates Markdown rendering failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// Highlight placeholders use Unicode Private Use Area characters, which pass
// through Goldmark unchanged and are swapped for <mark> afterwards.
const (
	markStart = "\uE000"
	markEnd   = "\uE001"
)

var (
	crlfOrCR           = regexp.MustCompile(`\r\n?`)
	multipleBlankLines = regexp.MustCompile(`\n{3,}`)
	highlightPattern   = regexp.MustCompile(`==(.*?)==`)
	atxHeading1        = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t#]*$`)
	ordinalPrefix      = regexp.MustCompile(`^\d+[-_. ]+`)
)

// MarkdownRenderer renders Markdown to an HTML fragment.
type MarkdownRenderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

// GoldmarkRenderer renders Markdown using goldmark (pure Go) with GFM,
// footnotes and class-based syntax highlighting.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

// NewGoldmarkRenderer creates a GoldmarkRenderer.
func NewGoldmarkRenderer() *GoldmarkRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // heading TOC needs ids
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			// No WithUnsafe: raw HTML in sources is dropped.
		),
	)
	return &GoldmarkRenderer{md: md}
}

// Render preprocesses and renders markdown. Goldmark has no context support,
// so rendering runs in a goroutine and the caller returns early on cancel.
func (r *GoldmarkRenderer) Render(ctx context.Context, markdown string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(PreprocessMarkdown(markdown)), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: convertMarkPlaceholders(buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.html, res.err
	}
}

// PreprocessMarkdown normalizes line endings, turns ==text== into highlight
// placeholders and limits runs of blank lines.
func PreprocessMarkdown(content string) string {
	content = crlfOrCR.ReplaceAllString(content, "\n")
	content = highlightPattern.ReplaceAllString(content, markStart+"$1"+markEnd)
	return multipleBlankLines.ReplaceAllString(content, "\n\n")
}

func convertMarkPlaceholders(content string) string {
	return strings.NewReplacer(markStart, "<mark>", markEnd, "</mark>").Replace(content)
}

// MarkdownTitle returns the text of the first level-one ATX heading, or "".
func MarkdownTitle(markdown string) string {
	m := atxHeading1.FindStringSubmatch(crlfOrCR.ReplaceAllString(markdown, "\n"))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// TitleFromFilename derives a display title from a file name:
// "01-getting_started.md" becomes "Getting Started".
func TitleFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if stripped := ordinalPrefix.ReplaceAllString(base, ""); stripped != "" {
		base = stripped
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)

	words := strings.Fields(base)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
