package docconv_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	docconv "github.com/alnah/go-docconv"
	"github.com/alnah/go-docconv/internal/config"
)

// Example converts a directory of markdown files to HTML pages.
// PDF targets work the same way but require Chrome.
func Example() {
	dir, err := os.MkdirTemp("", "docconv-example")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	_ = os.MkdirAll(filepath.Join(dir, "docs"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "docs", "01-intro.md"), []byte("# Intro\n\nHello."), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "docs", "02-usage.md"), []byte("# Usage\n\nRun it."), 0o644)

	desc, err := config.Parse([]byte(`
input:
  format: markdown
  directory: docs
output:
  format: html
  directory: site
`))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	desc.BaseDir = dir

	job, err := docconv.NewJob(desc)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	eng := docconv.New()
	defer eng.Close()

	report, err := eng.Run(context.Background(), job)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, d := range report.Documents() {
		fmt.Println(filepath.Base(d.Output), d.Status)
	}
	// Output:
	// 01-intro.html succeeded
	// 02-usage.html succeeded
}

// Example_findPath shows how the engine chains converters.
func Example_findPath() {
	reg := docconv.DefaultRegistry()
	defer reg.Close()

	path, err := reg.FindPath(docconv.Markdown, docconv.PDF)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(path)

	_, err = reg.FindPath(docconv.PDF, docconv.Markdown)
	fmt.Println(err)
	// Output:
	// markdown -> html -> pdf
	// no conversion path: pdf -> markdown
}

// Example_customConverter registers a converter on a new edge.
func Example_customConverter() {
	reg := docconv.DefaultRegistry()
	defer reg.Close()

	upper := docconv.ConverterFunc(func(ctx context.Context, input, output string, opts docconv.ConvertOptions) error {
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		return os.WriteFile(output, []byte(strings.ToUpper(string(data))), 0o644)
	})
	if err := reg.Register(docconv.Markdown, "shout", upper); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(reg.Reachable(docconv.Markdown))
	// Output: [html shout pdf odt]
}
