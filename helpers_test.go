package docconv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-docconv/internal/config"
	"github.com/alnah/go-docconv/internal/fileutil"
)

// writeFile creates path with content, making parent directories.
func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// readFile returns the content of path.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

// fakeConverter implements Converter without real formats. HTML targets get
// a minimal page wrapping the input; other targets get "<to>:" + input.
// It records calls and the peak number of concurrent conversions.
type fakeConverter struct {
	to Format

	mu        sync.Mutex
	calls     []string // input base names, in call order
	active    int
	maxActive int

	delay   func(input string) time.Duration
	fail    map[string]error // by input base name
	panicOn string           // input base name
	onCall  func(input string)
}

func (c *fakeConverter) Convert(ctx context.Context, input, output string, opts ConvertOptions) error {
	name := filepath.Base(input)

	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.active++
	c.maxActive = max(c.maxActive, c.active)
	onCall := c.onCall
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	if onCall != nil {
		onCall(input)
	}
	if c.delay != nil {
		time.Sleep(c.delay(input))
	}
	if name == c.panicOn {
		panic("converter exploded")
	}
	if err, ok := c.fail[name]; ok {
		return err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	var out string
	if c.to == HTML {
		out = fmt.Sprintf("<!DOCTYPE html><html><head><title>%s</title></head><body><p>%s</p></body></html>", opts.Title, data)
	} else {
		out = string(c.to) + ":" + string(data)
	}
	return fileutil.WriteFileAtomic(output, []byte(out))
}

func (c *fakeConverter) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConverter) MaxActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}

// fakeGraph is a registry shaped like the default one, with fake converters.
type fakeGraph struct {
	reg    *Registry
	mdHTML *fakeConverter
	toPDF  *fakeConverter
	toMD   *fakeConverter
	toODT  *fakeConverter
	odt    *fakeConverter
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	g := &fakeGraph{
		reg:    NewRegistry(),
		mdHTML: &fakeConverter{to: HTML},
		toPDF:  &fakeConverter{to: PDF},
		toMD:   &fakeConverter{to: Markdown},
		toODT:  &fakeConverter{to: ODT},
		odt:    &fakeConverter{to: HTML},
	}
	for _, e := range []struct {
		from, to Format
		c        Converter
	}{
		{Markdown, HTML, g.mdHTML},
		{HTML, PDF, g.toPDF},
		{HTML, Markdown, g.toMD},
		{HTML, ODT, g.toODT},
		{ODT, HTML, g.odt},
	} {
		if err := g.reg.Register(e.from, e.to, e.c); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

// newTestJob builds a job from desc anchored at dir.
func newTestJob(t *testing.T, dir string, desc *config.Description) *Job {
	t.Helper()
	desc.BaseDir = dir
	job, err := NewJob(desc)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

// markdownDocs writes name -> content markdown files into dir/docs.
func markdownDocs(t *testing.T, dir string, docs map[string]string) {
	t.Helper()
	for name, content := range docs {
		writeFile(t, filepath.Join(dir, "docs", name), content)
	}
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }
