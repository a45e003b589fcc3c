package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	docconv "github.com/alnah/go-docconv"
)

// testEnv is an Environment writing to buffers, rooted at a working
// directory.
type testEnv struct {
	*Environment
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(wd string, opts ...docconv.Option) *testEnv {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &testEnv{
		Environment: &Environment{
			Now:           func() time.Time { return time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC) },
			Stdout:        stdout,
			Stderr:        stderr,
			Getwd:         func() (string, error) { return wd, nil },
			EngineOptions: opts,
		},
		stdout: stdout,
		stderr: stderr,
	}
}

// writeTo creates output's directory and writes content.
func writeTo(output, content string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return err
	}
	return os.WriteFile(output, []byte(content), 0o600)
}

// fakeRegistry wires markdown->html->pdf with converters that never start a
// browser. Inputs whose base name is failOn fail to render.
func fakeRegistry(t *testing.T, failOn string) *docconv.Registry {
	t.Helper()

	toHTML := docconv.ConverterFunc(func(_ context.Context, input, output string, opts docconv.ConvertOptions) error {
		if filepath.Base(input) == failOn {
			return errors.New("render failed")
		}
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		return writeTo(output, "<html><head><title>"+opts.Title+"</title></head><body><p>"+string(data)+"</p></body></html>")
	})
	toPDF := docconv.ConverterFunc(func(_ context.Context, input, output string, _ docconv.ConvertOptions) error {
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		return writeTo(output, "%PDF-fake "+string(data))
	})

	reg := docconv.NewRegistry()
	if err := reg.Register(docconv.Markdown, docconv.HTML, toHTML); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(docconv.HTML, docconv.PDF, toPDF); err != nil {
		t.Fatal(err)
	}
	return reg
}

// setupTestDir creates a temp directory with the given file structure.
// Files map paths to content. Returns the temp directory path.
func setupTestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	tempDir := t.TempDir()

	for path, content := range files {
		if err := writeTo(filepath.Join(tempDir, path), content); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	return tempDir
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
