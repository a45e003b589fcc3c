package pipeline

// Notes:
// - Input PDFs are built by hand with a correct cross-reference table, so
//   no browser is needed.
// - Values may be stored UTF-16 encoded; tests check the entries, not their
//   encoding.

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// minimalPDF returns a one-page PDF with an information dictionary.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
		"<< /Title (Draft) /Producer (test) >>",
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

// ---------------------------------------------------------------------------
// TestSetPDFInfo - Document information dictionary
// ---------------------------------------------------------------------------

func TestSetPDFInfo(t *testing.T) {
	t.Parallel()

	out, err := SetPDFInfo(minimalPDF(), map[string]string{
		"title":    "Book",
		"author":   "Ada Lovelace",
		"subject":  "Engines",
		"keywords": "a, b",
		"date":     "2026-03-05",
		"empty":    "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
	for _, key := range []string{"/Author", "/Subject", "/Keywords", "/Title", "/Date"} {
		if !bytes.Contains(out, []byte(key)) {
			t.Errorf("info dictionary lacks %s", key)
		}
	}
	if bytes.Contains(out, []byte("/Empty")) {
		t.Error("empty value written")
	}
}

func TestSetPDFInfo_NothingToWrite(t *testing.T) {
	t.Parallel()

	in := minimalPDF()
	out, err := SetPDFInfo(in, map[string]string{"author": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("PDF rewritten without metadata")
	}
}

func TestSetPDFInfo_NotAPDF(t *testing.T) {
	t.Parallel()

	_, err := SetPDFInfo([]byte("<html></html>"), map[string]string{"author": "Ada"})
	if !errors.Is(err, ErrPDFInfo) {
		t.Errorf("error = %v, want ErrPDFInfo", err)
	}
}
