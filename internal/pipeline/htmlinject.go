package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"
)

// ErrTemplateRender indicates the page template failed to execute.
var ErrTemplateRender = errors.New("page template rendering failed")

// InjectCSS inserts a <style> block into a complete HTML document.
// Tries </head> first, then after <body>, then prepends.
func InjectCSS(htmlContent, css string) string {
	if css == "" {
		return htmlContent
	}

	style := "<style>" + sanitizeCSS(css) + "</style>"
	lower := strings.ToLower(htmlContent)

	if idx := strings.Index(lower, "</head>"); idx != -1 {
		return htmlContent[:idx] + style + htmlContent[idx:]
	}
	if pos := afterBodyOpen(htmlContent, lower); pos != -1 {
		return htmlContent[:pos] + style + htmlContent[pos:]
	}
	return style + htmlContent
}

// sanitizeCSS escapes "</" so stylesheet text cannot close the <style> element.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

// afterBodyOpen returns the index just past the <body ...> tag, or -1.
func afterBodyOpen(htmlContent, lower string) int {
	idx := strings.Index(lower, "<body")
	if idx == -1 {
		return -1
	}
	closeIdx := strings.Index(htmlContent[idx:], ">")
	if closeIdx == -1 {
		return -1
	}
	return idx + closeIdx + 1
}

// MetaField is a <meta name="..." content="..."> pair.
type MetaField struct {
	Name    string
	Content string
}

// PageData fills a page template.
type PageData struct {
	Title string
	Lang  string
	CSS   string
	Body  string
	Meta  []MetaField
}

// PageTemplate renders complete HTML documents from a body fragment.
// Templates see .Title, .Lang, .CSS, .Body and .Meta.
type PageTemplate struct {
	tmpl *template.Template
}

// NewPageTemplate parses src as an html/template.
func NewPageTemplate(src string) (*PageTemplate, error) {
	tmpl, err := template.New("page").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}
	return &PageTemplate{tmpl: tmpl}, nil
}

// Render executes the template. Body is trusted HTML produced by the
// renderers; CSS is sanitized before insertion.
func (p *PageTemplate) Render(ctx context.Context, data PageData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if data.Lang == "" {
		data.Lang = "en"
	}

	view := struct {
		Title string
		Lang  string
		CSS   template.CSS
		Body  template.HTML
		Meta  []MetaField
	}{
		Title: data.Title,
		Lang:  data.Lang,
		CSS:   template.CSS(sanitizeCSS(data.CSS)), // #nosec G203 -- sanitized above
		Body:  template.HTML(data.Body),            // #nosec G203 -- renderer output
		Meta:  data.Meta,
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// TOCEntry is one line of a table of contents.
type TOCEntry struct {
	Level  int    // 1-6, relative nesting
	Anchor string // target id, without '#'
	Text   string // plain text
}

// TOCOptions controls TOC rendering.
type TOCOptions struct {
	Title    string
	Numbered bool
	Class    string // extra class on every item
}

var (
	headingPattern = regexp.MustCompile(`(?is)<h([1-6])[^>]*\bid="([^"]*)"[^>]*>(.*?)</h[1-6]>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// stripHTMLTags removes tags and decodes entities so the text can be
// escaped exactly once when rendered.
func stripHTMLTags(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// HeadingEntries returns TOC entries for headings with ids between minDepth
// and maxDepth, in document order.
func HeadingEntries(htmlContent string, minDepth, maxDepth int) []TOCEntry {
	var entries []TOCEntry
	for _, m := range headingPattern.FindAllStringSubmatch(htmlContent, -1) {
		level, _ := strconv.Atoi(m[1])
		if level < minDepth || level > maxDepth {
			continue
		}
		entries = append(entries, TOCEntry{Level: level, Anchor: m[2], Text: stripHTMLTags(m[3])})
	}
	return entries
}

// numbering tracks hierarchical counters. The shallowest first level becomes
// depth 1, and jumps of more than one level are treated as direct children.
type numbering struct {
	counters  [6]int
	minLevel  int
	lastDepth int
}

func (n *numbering) next(level int) (label string, depth int) {
	if n.minLevel == 0 {
		n.minLevel = level
	}
	depth = max(level-n.minLevel+1, 1)
	if n.lastDepth > 0 && depth > n.lastDepth+1 {
		depth = n.lastDepth + 1
	}
	for i := depth; i < len(n.counters); i++ {
		n.counters[i] = 0
	}
	n.counters[depth-1]++
	n.lastDepth = depth

	parts := make([]string, depth)
	for i := range depth {
		parts[i] = strconv.Itoa(n.counters[i])
	}
	return strings.Join(parts, ".") + ".", depth
}

// RenderTOC renders entries as <nav class="toc">. Items are <div>s rather
// than list elements so user stylesheets' list styles do not apply.
func RenderTOC(entries []TOCEntry, opts TOCOptions) string {
	if len(entries) == 0 {
		return ""
	}

	var buf strings.Builder
	buf.WriteString(`<nav class="toc">`)
	if opts.Title != "" {
		buf.WriteString(`<h2 class="toc-title">`)
		buf.WriteString(html.EscapeString(opts.Title))
		buf.WriteString(`</h2>`)
	}
	buf.WriteString(`<div class="toc-list">`)

	var num numbering
	for _, e := range entries {
		label, depth := num.next(e.Level)

		buf.WriteString(`<div class="toc-item`)
		if opts.Class != "" {
			buf.WriteString(" " + html.EscapeString(opts.Class))
		}
		buf.WriteString(`"`)
		if depth > 1 {
			fmt.Fprintf(&buf, ` style="padding-left:%.1fem"`, float64(depth-1)*1.5)
		}
		buf.WriteString(`><a href="#`)
		buf.WriteString(html.EscapeString(e.Anchor))
		buf.WriteString(`">`)
		if opts.Numbered {
			buf.WriteString(label + " ")
		}
		buf.WriteString(html.EscapeString(e.Text))
		buf.WriteString(`</a></div>`)
	}

	buf.WriteString(`</div></nav>`)
	return buf.String()
}
