package docconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newMockPDFConverter returns a converter whose single renderer is m.
func newMockPDFConverter(m *mockRenderer) *pdfConverter {
	return &pdfConverter{pool: newRendererPool(1, func() pdfRenderer { return m })}
}

func TestPDFConverter_Convert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		opts     ConvertOptions
		mock     *mockRenderer
		wantErr  bool
		wantPage []string
	}{
		{
			name:     "successful render writes PDF bytes",
			html:     "<html><head></head><body><p>Test</p></body></html>",
			mock:     &mockRenderer{result: []byte("%PDF-1.4 fake pdf content")},
			wantPage: []string{"<p>Test</p>"},
		},
		{
			name:     "configured stylesheet is injected",
			html:     "<html><head><title>T</title></head><body><p>x</p></body></html>",
			opts:     ConvertOptions{CSS: "p { color: teal }"},
			mock:     &mockRenderer{result: []byte("%PDF-1.4")},
			wantPage: []string{"<style>p { color: teal }</style>"},
		},
		{
			name:     "relative images become file URLs",
			html:     `<html><body><img src="img/logo.png"></body></html>`,
			mock:     &mockRenderer{result: []byte("%PDF-1.4")},
			wantPage: []string{`src="file://`, `/img/logo.png"`},
		},
		{
			name:     "unicode content succeeds",
			html:     "<html><body>Bonjour le monde, ça va</body></html>",
			mock:     &mockRenderer{result: []byte("%PDF-1.4 unicode")},
			wantPage: []string{"ça va"},
		},
		{
			name:    "renderer error propagates",
			html:    "<html></html>",
			mock:    &mockRenderer{err: errors.New("browser crashed")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			input := writeFile(t, filepath.Join(dir, "page.html"), tt.html)
			output := filepath.Join(dir, "out", "page.pdf")
			conv := newMockPDFConverter(tt.mock)
			defer func() { _ = conv.Close() }()

			err := conv.Convert(context.Background(), input, output, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if _, serr := os.Stat(output); serr == nil {
					t.Error("output written despite the failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := readFile(t, output); got != string(tt.mock.result) {
				t.Errorf("output = %q, want renderer bytes", got)
			}
			if len(tt.mock.pages) != 1 {
				t.Fatalf("renderer called %d times", len(tt.mock.pages))
			}
			for _, want := range tt.wantPage {
				if !strings.Contains(tt.mock.pages[0], want) {
					t.Errorf("rendered page lacks %q:\n%s", want, tt.mock.pages[0])
				}
			}
		})
	}
}

// onePagePDF returns a valid one-page PDF as a browser would print it.
func onePagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> >>",
		"<< /Title (Book) /Creator (Chromium) >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFConverter_DocumentInfo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "combined.html"),
		`<html><head><title>Book</title><meta name="author" content="Ada Lovelace"></head><body><p>x</p></body></html>`)
	output := filepath.Join(dir, "book.pdf")
	conv := newMockPDFConverter(&mockRenderer{result: onePagePDF()})
	defer func() { _ = conv.Close() }()

	opts := ConvertOptions{Title: "Book", Metadata: map[string]string{"subject": "Engines", "keywords": "a, b", "date": "auto:YYYY"}}
	if err := conv.Convert(context.Background(), input, output, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := readFile(t, output)
	for _, key := range []string{"/Author", "/Subject", "/Keywords", "/Date", "/Title"} {
		if !strings.Contains(got, key) {
			t.Errorf("PDF information dictionary lacks %s", key)
		}
	}
}

func TestPDFConverter_MissingInput(t *testing.T) {
	t.Parallel()

	m := &mockRenderer{result: []byte("%PDF")}
	conv := newMockPDFConverter(m)
	dir := t.TempDir()

	err := conv.Convert(context.Background(), filepath.Join(dir, "none.html"), filepath.Join(dir, "x.pdf"), ConvertOptions{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not-exist", err)
	}
	if len(m.pages) != 0 {
		t.Error("renderer called without input")
	}
}

func TestPDFConverter_CloseReleasesRenderers(t *testing.T) {
	t.Parallel()

	m := &mockRenderer{result: []byte("%PDF")}
	conv := newMockPDFConverter(m)
	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "a.html"), "<p>a</p>")

	if err := conv.Convert(context.Background(), input, filepath.Join(dir, "a.pdf"), ConvertOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := conv.Close(); err != nil {
		t.Fatal(err)
	}
	if m.closed != 1 {
		t.Errorf("renderer closed %d times, want 1", m.closed)
	}
	if err := conv.Convert(context.Background(), input, filepath.Join(dir, "b.pdf"), ConvertOptions{}); err == nil {
		t.Error("Convert after Close should fail")
	}
}

func TestRodRenderer_CloseWithoutBrowser(t *testing.T) {
	t.Parallel()

	r := newRodRenderer(DefaultTimeout)
	if err := r.Close(); err != nil {
		t.Errorf("Close() on an unused renderer = %v", err)
	}
}

func TestRodRenderer_CancelledContext(t *testing.T) {
	t.Parallel()

	r := newRodRenderer(DefaultTimeout)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderFromFile(ctx, "/nonexistent.html"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
