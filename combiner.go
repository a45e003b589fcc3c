package docconv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/alnah/go-docconv/internal/ctxlog"
	"github.com/alnah/go-docconv/internal/dateutil"
	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/pipeline"
)

// CombineInput is one document artifact to merge.
type CombineInput struct {
	Title  string // TOC entry text
	Source string // original source, for messages
	Path   string // HTML artifact
}

// CombineOptions controls the merged document.
type CombineOptions struct {
	TOC        bool
	TOCTitle   string
	Metadata   map[string]string // date accepts "auto" and "auto:FORMAT"
	PageBreaks bool
	CoverPage  string // HTML file whose body precedes the TOC
	CSS        string // extra stylesheet, after the documents' own
	Template   string // page template source; empty = built-in
}

// DefaultTOCTitle heads the combined table of contents when none is set.
const DefaultTOCTitle = "Table of Contents"

// Section classes of the merged document.
const (
	classDocument  = "docconv-document"
	classPageBreak = "docconv-page-break"
	classCover     = "docconv-cover"
)

const pageBreakCSS = "section." + classPageBreak + " { break-before: page; page-break-before: always; }"

// metaOrder lists the well-known metadata keys emitted first.
var metaOrder = []string{"author", "subject", "keywords", "date"}

// Combiner merges HTML artifacts into one document.
type Combiner struct {
	now   func() time.Time
	newID func() string
}

// CombinerOption configures a Combiner.
type CombinerOption func(*Combiner)

// WithClock sets the clock used for "auto" metadata dates.
func WithClock(now func() time.Time) CombinerOption {
	if now == nil {
		panic("docconv: nil clock")
	}
	return func(c *Combiner) {
		c.now = now
	}
}

// WithDocumentID sets the generator of the merged document's identifier.
func WithDocumentID(newID func() string) CombinerOption {
	if newID == nil {
		panic("docconv: nil document ID generator")
	}
	return func(c *Combiner) {
		c.newID = newID
	}
}

// NewCombiner creates a Combiner.
func NewCombiner(opts ...CombinerOption) *Combiner {
	c := &Combiner{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine merges inputs, in the given order, into one HTML document written
// to output. Each input becomes a <section> with a stable anchor; the TOC,
// when requested, has one entry per input. Styles of all inputs are kept,
// deduplicated. Image references are left as they are.
func (c *Combiner) Combine(ctx context.Context, inputs []CombineInput, opts CombineOptions, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no documents", ErrCombine)
	}
	log := ctxlog.FromContext(ctx)

	tmplSrc := opts.Template
	if tmplSrc == "" {
		tmplSrc = defaultTemplate
	}
	tmpl, err := pipeline.NewPageTemplate(tmplSrc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCombine, err)
	}

	var (
		styles styleSet
		lang   string
		body   strings.Builder
		toc    []pipeline.TOCEntry
	)

	if opts.CoverPage != "" {
		doc, err := readHTMLDocument(opts.CoverPage)
		if err != nil {
			return fmt.Errorf("%w: cover page: %w", ErrCombine, err)
		}
		styles.add(doc.Styles...)
		fmt.Fprintf(&body, "<section class=\"%s\">\n%s\n</section>\n", classCover, doc.Body)
	}

	sections := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := readHTMLDocument(in.Path)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCombine, in.Source, err)
		}
		styles.add(doc.Styles...)
		if lang == "" {
			lang = doc.Lang
		}

		title := in.Title
		if title == "" {
			title = pipeline.TitleFromFilename(in.Source)
		}
		anchor := sectionAnchor(i, title)
		toc = append(toc, pipeline.TOCEntry{Level: 1, Anchor: anchor, Text: title})

		class := classDocument
		if opts.PageBreaks && (i > 0 || opts.TOC || opts.CoverPage != "") {
			class += " " + classPageBreak
		}
		sections = append(sections, fmt.Sprintf("<section class=\"%s\" id=\"%s\">\n%s\n</section>\n", class, anchor, doc.Body))
		log.Debug("combined document", "source", in.Source, "anchor", anchor)
	}

	if opts.TOC {
		tocTitle := opts.TOCTitle
		if tocTitle == "" {
			tocTitle = DefaultTOCTitle
		}
		body.WriteString(pipeline.RenderTOC(toc, pipeline.TOCOptions{Title: tocTitle}))
		body.WriteString("\n")
	}
	for _, s := range sections {
		body.WriteString(s)
	}

	if opts.PageBreaks {
		styles.add(pageBreakCSS)
	}
	if opts.CSS != "" {
		styles.add(opts.CSS)
	}

	title, meta, err := c.metadata(opts.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCombine, err)
	}
	if title == "" {
		title = toc[0].Text
	}

	page, err := tmpl.Render(ctx, pipeline.PageData{
		Title: title,
		Lang:  lang,
		CSS:   styles.String(),
		Body:  body.String(),
		Meta:  meta,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCombine, err)
	}

	if err := fileutil.WriteFileAtomic(output, []byte(page)); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrCombine, output, err)
	}
	return nil
}

// metadata splits the title off and orders the remaining fields: well-known
// keys first, then the rest alphabetically.
func (c *Combiner) metadata(m map[string]string) (string, []pipeline.MetaField, error) {
	rest := make([]string, 0, len(m))
	for k := range m {
		if k == "title" || slices.Contains(metaOrder, k) {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)

	var fields []pipeline.MetaField
	for _, k := range append(append([]string(nil), metaOrder...), rest...) {
		v, ok := m[k]
		if !ok || v == "" {
			continue
		}
		if k == "date" {
			var err error
			if v, err = dateutil.Resolve(v, c.now()); err != nil {
				return "", nil, err
			}
		}
		fields = append(fields, pipeline.MetaField{Name: k, Content: v})
	}
	fields = append(fields,
		pipeline.MetaField{Name: "generator", Content: "docconv"},
		pipeline.MetaField{Name: "identifier", Content: "urn:uuid:" + c.newID()},
	)
	return m["title"], fields, nil
}

func readHTMLDocument(path string) (*pipeline.Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- artifact path from the plan
	if err != nil {
		return nil, err
	}
	return pipeline.ParseDocument(bytes.NewReader(data))
}

// sectionAnchor builds the id of the i-th section: "doc-1-getting-started".
func sectionAnchor(i int, title string) string {
	return fmt.Sprintf("doc-%d-%s", i+1, slugify(title))
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// styleSet accumulates stylesheet blocks, dropping exact duplicates.
type styleSet struct {
	blocks []string
	seen   map[string]bool
}

func (s *styleSet) add(blocks ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, b := range blocks {
		b = strings.TrimSpace(b)
		if b == "" || s.seen[b] {
			continue
		}
		s.seen[b] = true
		s.blocks = append(s.blocks, b)
	}
}

func (s *styleSet) String() string {
	return strings.Join(s.blocks, "\n\n")
}
