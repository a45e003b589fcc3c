package docconv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-docconv/internal/ctxlog"
	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/pipeline"
	"github.com/alnah/go-docconv/internal/process"
)

// pdfRenderer renders a local HTML file to PDF. Abstracted to test the
// converter without a browser.
type pdfRenderer interface {
	RenderFromFile(ctx context.Context, filePath string) ([]byte, error)
	Close() error
}

// Compile-time interface checks
var (
	_ pdfRenderer = (*rodRenderer)(nil)
	_ Converter   = (*pdfConverter)(nil)
	_ io.Closer   = (*pdfConverter)(nil)
)

// PDF page dimensions in inches (US Letter format).
const (
	paperWidthInches  = 8.5
	paperHeightInches = 11
	marginInches      = 0.5
)

// DefaultTimeout bounds a single page load and print.
const DefaultTimeout = 30 * time.Second

// rodRenderer renders with headless Chrome via go-rod.
// Rod downloads Chromium on first run if none is found.
type rodRenderer struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration
}

func newRodRenderer(timeout time.Duration) *rodRenderer {
	return &rodRenderer{timeout: timeout}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *rodRenderer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	bin := os.Getenv("ROD_BROWSER_BIN")
	if bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_NO_SANDBOX") == "1" || bin != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.launcher = l
	r.browser = browser
	return nil
}

// Close shuts the browser down and kills its process tree, so helper
// processes do not outlive an interrupted run.
func (r *rodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil

	if pid := r.launcher.PID(); pid > 0 {
		if kerr := process.KillTree(pid); kerr != nil {
			err = errors.Join(err, kerr)
		}
	}
	r.launcher.Kill()
	r.launcher.Cleanup()
	r.launcher = nil
	return err
}

// RenderFromFile opens a local HTML file in headless Chrome and prints it.
func (r *rodRenderer) RenderFromFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "file://" + filePath})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	// Wait for page to load with timeout from context or default
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      floatPtr(paperWidthInches),
		PaperHeight:     floatPtr(paperHeightInches),
		MarginTop:       floatPtr(marginInches),
		MarginBottom:    floatPtr(marginInches),
		MarginLeft:      floatPtr(marginInches),
		MarginRight:     floatPtr(marginInches),
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}

	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}
	return pdfBuf, nil
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}

// pdfConverter is the html->pdf edge. It prepares the page (image policy,
// stylesheet), writes it to a temporary file and prints it with a pooled
// renderer.
type pdfConverter struct {
	pool *rendererPool
}

// newPDFConverter creates a converter rendering with up to workers browsers.
func newPDFConverter(workers int, timeout time.Duration) *pdfConverter {
	return &pdfConverter{
		pool: newRendererPool(ResolvePoolSize(workers), func() pdfRenderer {
			return newRodRenderer(timeout)
		}),
	}
}

// Convert implements Converter.
func (c *pdfConverter) Convert(ctx context.Context, input, output string, opts ConvertOptions) error {
	content, err := os.ReadFile(input) // #nosec G304 -- planned task input
	if err != nil {
		return err
	}

	baseDir := opts.SourceDir
	if baseDir == "" {
		baseDir = filepath.Dir(input)
	}
	page, report, err := pipeline.ApplyImagePolicy(string(content), baseDir, opts.Images.pipeline())
	if err != nil {
		return err
	}
	logImageReport(ctx, input, report)
	if opts.CSS != "" {
		page = pipeline.InjectCSS(page, opts.CSS)
	}

	tmpPath, cleanup, err := fileutil.WriteTempFile(page, "html")
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := c.pool.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.pool.release(r)

	pdf, err := r.RenderFromFile(ctx, tmpPath)
	if err != nil {
		return err
	}
	if pdf, err = withDocumentInfo(pdf, page, opts); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(output, pdf)
}

// withDocumentInfo copies the page metadata into the PDF information
// dictionary. The browser only keeps the <title>, so the PDF is left as
// printed when there is nothing else to add.
func withDocumentInfo(pdf []byte, page string, opts ConvertOptions) ([]byte, error) {
	doc, err := pipeline.ParseDocument(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	meta, err := documentMetadata(doc.Meta, opts.Metadata, time.Now())
	if err != nil {
		return nil, err
	}
	delete(meta, "generator")
	if len(meta) == 0 {
		return pdf, nil
	}
	meta["generator"] = "docconv"
	if opts.Title != "" {
		meta["title"] = opts.Title
	} else if doc.Title != "" {
		meta["title"] = doc.Title
	}
	return pipeline.SetPDFInfo(pdf, meta)
}

// Close releases the browsers.
func (c *pdfConverter) Close() error {
	return c.pool.close()
}

// logImageReport logs images that could not be handled as requested.
func logImageReport(ctx context.Context, input string, report *pipeline.ImageReport) {
	if report == nil {
		return
	}
	log := ctxlog.FromContext(ctx)
	for _, img := range report.Missing {
		log.Warn("image not found", "document", input, "image", img)
	}
	for _, img := range report.Disallowed {
		log.Warn("image format not allowed for embedding; left linked", "document", input, "image", img)
	}
	if n := len(report.Embedded); n > 0 {
		log.Debug("images embedded", "document", input, "count", n)
	}
}
