//go:build integration

package docconv

// Notes:
// - These tests start real browsers; rod downloads Chromium on first run if
//   none is found.
// - Pool sizes stay small to avoid resource exhaustion in CI.

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alnah/go-docconv/internal/config"
)

// testTimeout is the standard timeout for integration test operations.
const testTimeout = 30 * time.Second

func assertValidPDFFile(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read PDF file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("data does not have PDF magic bytes, got prefix: %q", data[:min(10, len(data))])
	}
	if len(data) < 100 {
		t.Errorf("PDF data suspiciously small: %d bytes", len(data))
	}
}

func TestRodRenderer_Integration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "page.html"), `<!DOCTYPE html>
<html>
<head><title>Test</title></head>
<body><h1>Hello, World!</h1><p>This is a test document.</p></body>
</html>`)

	r := newRodRenderer(testTimeout)
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	data, err := r.RenderFromFile(ctx, input)
	if err != nil {
		t.Fatalf("RenderFromFile() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("not a PDF: %q", data[:min(10, len(data))])
	}
}

func TestPDFConverter_Integration(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(WithPDFWorkers(2), WithPDFTimeout(testTimeout))
	defer func() { _ = reg.Close() }()

	path, err := reg.FindPath(HTML, PDF)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "img", "dot.svg"), `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"/>`)

	for _, name := range []string{"a", "b", "c"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			input := writeFile(t, filepath.Join(dir, name+".html"),
				`<html><body><h1>`+name+`</h1><img src="img/dot.svg"></body></html>`)
			output := filepath.Join(dir, "out", name+".pdf")

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			if err := path[0].Converter.Convert(ctx, input, output, ConvertOptions{CSS: "h1 { color: blue }"}); err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			assertValidPDFFile(t, output)
		})
	}
}

func TestEngine_MarkdownToPDF_Integration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{
		"01-intro.md": "# Intro\n\nHello.\n",
		"02-usage.md": "# Usage\n\n```go\nfmt.Println(1)\n```\n",
	})
	job := newTestJob(t, dir, &config.Description{
		Input:       config.InputSection{Format: "markdown", Directory: "docs"},
		Output:      config.OutputSection{Format: "pdf", Directory: "out"},
		Options:     config.OptionsSection{TOC: true},
		Combine:     config.CombineSection{Enabled: true, OutputFile: "book.pdf"},
		Parallelism: intPtr(2),
	})

	eng := New(WithTimeout(testTimeout))
	defer func() { _ = eng.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*testTimeout)
	defer cancel()
	if _, err := eng.Run(ctx, job); err != nil {
		t.Fatal(err)
	}
	assertValidPDFFile(t, job.Combine.OutputFile)
}
