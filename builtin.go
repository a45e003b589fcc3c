package docconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-docconv/internal/assets"
	"github.com/alnah/go-docconv/internal/dateutil"
	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/pipeline"
)

// defaultTemplate is the built-in page template.
var defaultTemplate = func() string {
	src, err := assets.NewResolver("").LoadTemplate(assets.DefaultName)
	if err != nil {
		panic(err) // embedded at build time
	}
	return src
}()

// RegistryOption configures DefaultRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	workers  int
	timeout  time.Duration
	renderer pipeline.MarkdownRenderer
}

// WithPDFWorkers sets how many browsers the html->pdf converter may run.
// Zero sizes the pool from the CPU count.
func WithPDFWorkers(n int) RegistryOption {
	if n < 0 {
		panic("docconv: PDF workers must not be negative")
	}
	return func(c *registryConfig) {
		c.workers = n
	}
}

// WithPDFTimeout bounds each page load and print. Panics if d <= 0.
func WithPDFTimeout(d time.Duration) RegistryOption {
	if d <= 0 {
		panic("docconv: PDF timeout must be positive")
	}
	return func(c *registryConfig) {
		c.timeout = d
	}
}

// WithMarkdownRenderer replaces the Goldmark renderer of the
// markdown->html converter.
func WithMarkdownRenderer(r pipeline.MarkdownRenderer) RegistryOption {
	if r == nil {
		panic("docconv: nil markdown renderer")
	}
	return func(c *registryConfig) {
		c.renderer = r
	}
}

// DefaultRegistry returns a registry with the built-in converters:
// markdown->html, html->pdf, html->markdown, html->odt and odt->html.
// Nothing converts out of PDF. Call Close to release browsers.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.renderer == nil {
		cfg.renderer = pipeline.NewGoldmarkRenderer()
	}

	reg := NewRegistry()
	builtins := []struct {
		from, to Format
		conv     Converter
	}{
		{Markdown, HTML, &markdownConverter{renderer: cfg.renderer}},
		{HTML, PDF, newPDFConverter(cfg.workers, cfg.timeout)},
		{HTML, Markdown, ConverterFunc(htmlToMarkdown)},
		{HTML, ODT, ConverterFunc(htmlToODT)},
		{ODT, HTML, ConverterFunc(odtToHTML)},
	}
	for _, b := range builtins {
		if err := reg.Register(b.from, b.to, b.conv); err != nil {
			panic(err) // built-in table is static
		}
	}
	return reg
}

// markdownConverter is the markdown->html edge.
type markdownConverter struct {
	renderer pipeline.MarkdownRenderer
}

// Convert implements Converter.
func (c *markdownConverter) Convert(ctx context.Context, input, output string, opts ConvertOptions) error {
	md, err := os.ReadFile(input) // #nosec G304 -- planned task input
	if err != nil {
		return err
	}

	body, err := c.renderer.Render(ctx, string(md))
	if err != nil {
		return err
	}
	if opts.TOC {
		toc := pipeline.RenderTOC(pipeline.HeadingEntries(body, 2, 3), pipeline.TOCOptions{
			Title:    opts.TOCTitle,
			Numbered: true,
		})
		body = toc + body
	}

	title := opts.Title
	if t := pipeline.MarkdownTitle(string(md)); title == "" && t != "" {
		title = t
	}
	if title == "" {
		title = pipeline.TitleFromFilename(input)
	}
	return writePage(ctx, input, output, title, body, opts)
}

func htmlToMarkdown(ctx context.Context, input, output string, _ ConvertOptions) error {
	f, err := os.Open(input) // #nosec G304 -- planned task input
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	md, err := pipeline.HTMLToMarkdown(ctx, f)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(output, []byte(md))
}

func htmlToODT(ctx context.Context, input, output string, opts ConvertOptions) error {
	f, err := os.Open(input) // #nosec G304 -- planned task input
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	doc, err := pipeline.ParseDocument(f)
	if err != nil {
		return err
	}
	if opts.Title != "" {
		doc.Title = opts.Title
	}
	if doc.Meta, err = documentMetadata(doc.Meta, opts.Metadata, time.Now()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := pipeline.WriteODT(ctx, doc, &buf); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(output, buf.Bytes())
}

func odtToHTML(ctx context.Context, input, output string, opts ConvertOptions) error {
	data, err := os.ReadFile(input) // #nosec G304 -- planned task input
	if err != nil {
		return err
	}
	content, err := pipeline.ReadODT(ctx, data)
	if err != nil {
		return err
	}

	title := opts.Title
	if title == "" {
		title = content.Title
	}
	if title == "" {
		title = pipeline.TitleFromFilename(input)
	}
	return writePage(ctx, input, output, title, content.Body, opts)
}

// documentMetadata merges the <meta> fields of an HTML input with the
// metadata of the task, which wins. An "auto" date resolves against now
// unless the input already carries a resolved one. The title is not part of
// the result; converters take it from ConvertOptions.Title.
func documentMetadata(fromHTML, fromTask map[string]string, now time.Time) (map[string]string, error) {
	out := make(map[string]string, len(fromHTML)+len(fromTask))
	for k, v := range fromHTML {
		if k != "title" && k != "viewport" && v != "" {
			out[k] = v
		}
	}
	for k, v := range fromTask {
		if k == "title" || v == "" {
			continue
		}
		if k == "date" {
			if _, ok := out["date"]; ok {
				continue
			}
			var err error
			if v, err = dateutil.Resolve(v, now); err != nil {
				return nil, err
			}
		}
		out[k] = v
	}
	return out, nil
}

// writePage renders body into the page template, applies the image policy
// and writes the result.
func writePage(ctx context.Context, input, output, title, body string, opts ConvertOptions) error {
	baseDir := opts.SourceDir
	if baseDir == "" {
		baseDir = filepath.Dir(input)
	}
	body, report, err := pipeline.ApplyImagePolicy(body, baseDir, opts.Images.pipeline())
	if err != nil {
		return err
	}
	logImageReport(ctx, input, report)

	src := opts.Template
	if src == "" {
		src = defaultTemplate
	}
	tmpl, err := pipeline.NewPageTemplate(src)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrTemplateRender, err)
	}
	page, err := tmpl.Render(ctx, pipeline.PageData{Title: title, CSS: opts.CSS, Body: body})
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(output, []byte(page))
}

// copyFile is the identity conversion for same-format jobs.
func copyFile(ctx context.Context, input, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fileutil.SamePath(input, output) {
		return errors.New("copy source and destination are the same file")
	}
	return fileutil.CopyFile(input, output)
}
