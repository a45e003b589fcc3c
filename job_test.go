package docconv

// Notes:
// - Jobs are built from config.Description values anchored at t.TempDir();
//   no job file is parsed here (see internal/config for that).
// - Every rejection must wrap ErrInvalidJob; the message is not asserted
//   beyond a distinguishing fragment.

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/alnah/go-docconv/internal/config"
)

func sourceNames(docs []Document) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = filepath.Base(d.Source)
	}
	return names
}

// ---------------------------------------------------------------------------
// TestNewJob_DirectoryScan - Discovery order and filtering
// ---------------------------------------------------------------------------

func TestNewJob_DirectoryScan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{
		"02-setup.md":         "# Setup",
		"01-intro.md":         "# Intro",
		"10-usage.markdown":   "# Usage",
		"notes.txt":           "ignored",
		"nested/03-deep.md":   "not scanned",
		"page.html":           "<p>other format</p>",
		"04_advanced_tips.md": "# Tips",
	})

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Format: "markdown", Directory: "docs"},
		Output: config.OutputSection{Format: "html", Directory: "out"},
	})

	wantNames := []string{"01-intro.md", "02-setup.md", "04_advanced_tips.md", "10-usage.markdown"}
	if got := sourceNames(job.Documents); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("documents = %v, want %v", got, wantNames)
	}
	wantTitles := []string{"Intro", "Setup", "Advanced Tips", "Usage"}
	for i, d := range job.Documents {
		if d.Title != wantTitles[i] {
			t.Errorf("documents[%d].Title = %q, want %q", i, d.Title, wantTitles[i])
		}
		if !filepath.IsAbs(d.Source) {
			t.Errorf("documents[%d].Source = %q, want absolute", i, d.Source)
		}
	}

	if job.From != Markdown || job.To != HTML {
		t.Errorf("formats = %s -> %s", job.From, job.To)
	}
	if job.OutputDir != filepath.Join(dir, "out") {
		t.Errorf("OutputDir = %q", job.OutputDir)
	}
}

func TestNewJob_ExplicitDocumentsWin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{
		"a.md": "a",
		"b.md": "b",
		"c.md": "c",
	})

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Format: "markdown", Directory: "docs", Files: []string{"a.md"}},
		Output: config.OutputSection{Format: "pdf", Directory: "out"},
		Documents: []config.DocumentEntry{
			{File: "c.md", Title: "Third First"},
			{File: "a.md", EmbedImages: boolPtr(true)},
		},
	})

	if got, want := sourceNames(job.Documents), []string{"c.md", "a.md"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("documents = %v, want %v", got, want)
	}
	if job.Documents[0].Title != "Third First" {
		t.Errorf("declared title lost: %q", job.Documents[0].Title)
	}
	if job.Documents[1].Title != "A" {
		t.Errorf("derived title = %q, want %q", job.Documents[1].Title, "A")
	}
	if e := job.Documents[1].EmbedImages; e == nil || !*e {
		t.Error("per-document embed override lost")
	}
}

func TestNewJob_InputFilesWithoutDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "one.md"), "# One")
	writeFile(t, filepath.Join(dir, "y", "two.md"), "# Two")

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Files: []string{"y/two.md", "x/one.md"}},
		Output: config.OutputSection{Directory: "out", Format: "html"},
	})

	if job.From != Markdown {
		t.Errorf("From = %q, want inferred markdown", job.From)
	}
	if got, want := sourceNames(job.Documents), []string{"two.md", "one.md"}; !reflect.DeepEqual(got, want) {
		t.Errorf("documents = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// TestNewJob_Defaults - Unset options
// ---------------------------------------------------------------------------

func TestNewJob_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{"a.md": "a"})

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Format: "md", Directory: "docs"},
		Output: config.OutputSection{Format: "pdf", Directory: "out"},
	})

	if job.Parallelism != 1 {
		t.Errorf("Parallelism = %d, want 1", job.Parallelism)
	}
	if job.TOC || job.Images.Embed || job.Incremental || job.Combine != nil {
		t.Errorf("unexpected non-default options: %+v", job)
	}
	if job.IncrementalMode != ModeHash {
		t.Errorf("IncrementalMode = %q, want %q", job.IncrementalMode, ModeHash)
	}
	if want := filepath.Join(dir, "out", ".docconv", "state.yaml"); job.StateFile != want {
		t.Errorf("StateFile = %q, want %q", job.StateFile, want)
	}
	if want := filepath.Join(dir, "out", ".docconv", "work"); job.WorkDir() != want {
		t.Errorf("WorkDir() = %q, want %q", job.WorkDir(), want)
	}
	if got, want := job.Targets(), []string{filepath.Join(dir, "out", "a.pdf")}; !reflect.DeepEqual(got, want) {
		t.Errorf("Targets() = %v, want %v", got, want)
	}
}

func TestNewJob_ParallelismOption(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{"a.md": "a"})
	base := func() *config.Description {
		return &config.Description{
			BaseDir: dir,
			Input:   config.InputSection{Format: "markdown", Directory: "docs"},
			Output:  config.OutputSection{Format: "html", Directory: "out"},
		}
	}

	job, err := NewJob(base(), WithDefaultParallelism(6))
	if err != nil {
		t.Fatal(err)
	}
	if job.Parallelism != 6 {
		t.Errorf("Parallelism = %d, want option default 6", job.Parallelism)
	}

	desc := base()
	desc.Parallelism = intPtr(3)
	job, err = NewJob(desc, WithDefaultParallelism(6))
	if err != nil {
		t.Fatal(err)
	}
	if job.Parallelism != 3 {
		t.Errorf("Parallelism = %d, want description value 3", job.Parallelism)
	}

	defer func() {
		if recover() == nil {
			t.Error("WithDefaultParallelism(0) should panic")
		}
	}()
	WithDefaultParallelism(0)
}

func TestNewJob_SingleOutputFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.md"), "# Readme")

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Files: []string{"readme.md"}},
		Output: config.OutputSection{File: "dist/readme.odt"},
	})

	if job.To != ODT {
		t.Errorf("To = %q, want odt inferred from output.file", job.To)
	}
	if want := filepath.Join(dir, "dist"); job.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", job.OutputDir, want)
	}
	if got := job.Targets(); len(got) != 1 || got[0] != filepath.Join(dir, "dist", "readme.odt") {
		t.Errorf("Targets() = %v", got)
	}
}

// ---------------------------------------------------------------------------
// TestNewJob_Combine - Combine references and defaults
// ---------------------------------------------------------------------------

func TestNewJob_Combine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{
		"intro.md": "# Intro",
		"setup.md": "# Setup",
		"usage.md": "# Usage",
	})

	job := newTestJob(t, dir, &config.Description{
		Input:  config.InputSection{Format: "markdown", Directory: "docs"},
		Output: config.OutputSection{Format: "pdf", Directory: "out"},
		Combine: config.CombineSection{
			Enabled:    true,
			OutputFile: "book.pdf",
			Documents:  []string{"usage.md", "intro.md"},
			Metadata:   map[string]string{"author": "Ada", "date": "auto:long"},
		},
	})

	c := job.Combine
	if c == nil {
		t.Fatal("Combine is nil")
	}
	if want := filepath.Join(dir, "out", "book.pdf"); c.OutputFile != want {
		t.Errorf("OutputFile = %q, want %q", c.OutputFile, want)
	}
	if got, want := sourceNames(c.Documents), []string{"usage.md", "intro.md"}; !reflect.DeepEqual(got, want) {
		t.Errorf("combine documents = %v, want %v", got, want)
	}
	if c.Documents[0].Title != "Usage" {
		t.Errorf("combine document title = %q, want derived %q", c.Documents[0].Title, "Usage")
	}
	if !c.PageBreaks {
		t.Error("PageBreaks should default to true")
	}
	if got := job.Targets(); len(got) != 1 || got[0] != c.OutputFile {
		t.Errorf("Targets() = %v, want only the combined file", got)
	}
}

func TestNewJob_CombineAllDocumentsWithoutOutputDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{"b.md": "b", "a.md": "a"})

	job := newTestJob(t, dir, &config.Description{
		Input:   config.InputSection{Format: "markdown", Directory: "docs"},
		Output:  config.OutputSection{File: "dist/all.html"},
		Combine: config.CombineSection{Enabled: true, PageBreaks: boolPtr(false)},
	})

	if job.To != HTML {
		t.Errorf("To = %q, want html", job.To)
	}
	if want := filepath.Join(dir, "dist", "all.html"); job.Combine.OutputFile != want {
		t.Errorf("OutputFile = %q, want %q", job.Combine.OutputFile, want)
	}
	if job.OutputDir != filepath.Join(dir, "dist") {
		t.Errorf("OutputDir = %q", job.OutputDir)
	}
	if got, want := sourceNames(job.Combine.Documents), []string{"a.md", "b.md"}; !reflect.DeepEqual(got, want) {
		t.Errorf("combine documents = %v, want %v", got, want)
	}
	if job.Combine.PageBreaks {
		t.Error("PageBreaks = true, want explicit false")
	}
}

// ---------------------------------------------------------------------------
// TestNewJob_Invalid - Rejections
// ---------------------------------------------------------------------------

func TestNewJob_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	markdownDocs(t, dir, map[string]string{"a.md": "a", "b.md": "b"})
	writeFile(t, filepath.Join(dir, "empty", "readme.txt"), "no markdown here")

	input := config.InputSection{Format: "markdown", Directory: "docs"}
	output := config.OutputSection{Format: "html", Directory: "out"}

	tests := []struct {
		name    string
		desc    config.Description
		wantMsg string
	}{
		{
			name:    "no input source",
			desc:    config.Description{Output: output},
			wantMsg: "no input source",
		},
		{
			name:    "unknown input format",
			desc:    config.Description{Input: config.InputSection{Format: "docx", Directory: "docs"}, Output: output},
			wantMsg: "input.format",
		},
		{
			name:    "unknown output format",
			desc:    config.Description{Input: input, Output: config.OutputSection{Format: "rtf", Directory: "out"}},
			wantMsg: "output.format",
		},
		{
			name:    "output format not inferable",
			desc:    config.Description{Input: input, Output: config.OutputSection{Directory: "out"}},
			wantMsg: "output.format is required",
		},
		{
			name:    "directory without input format",
			desc:    config.Description{Input: config.InputSection{Directory: "docs"}, Output: output},
			wantMsg: "input.format is required",
		},
		{
			name:    "mixed extensions",
			desc:    config.Description{Input: config.InputSection{Files: []string{"docs/a.md", "empty/readme.txt"}}, Output: output},
			wantMsg: "cannot infer",
		},
		{
			name:    "missing directory",
			desc:    config.Description{Input: config.InputSection{Format: "markdown", Directory: "nope"}, Output: output},
			wantMsg: "input.directory",
		},
		{
			name:    "nothing to convert",
			desc:    config.Description{Input: config.InputSection{Format: "markdown", Directory: "empty"}, Output: output},
			wantMsg: "no markdown documents",
		},
		{
			name:    "no output target",
			desc:    config.Description{Input: input, Output: config.OutputSection{Format: "html"}},
			wantMsg: "no output target",
		},
		{
			name:    "output file with many documents",
			desc:    config.Description{Input: input, Output: config.OutputSection{File: "out/x.html"}},
			wantMsg: "output.file",
		},
		{
			name:    "empty document entry",
			desc:    config.Description{Input: input, Output: output, Documents: []config.DocumentEntry{{File: " "}}},
			wantMsg: "documents[0]",
		},
		{
			name: "document listed twice",
			desc: config.Description{Input: input, Output: output, Documents: []config.DocumentEntry{
				{File: "a.md"}, {File: "a.md"},
			}},
			wantMsg: "listed twice",
		},
		{
			name:    "combine without output file",
			desc:    config.Description{Input: input, Output: output, Combine: config.CombineSection{Enabled: true}},
			wantMsg: "combine.output_file",
		},
		{
			name: "combine unknown document",
			desc: config.Description{Input: input, Output: output, Combine: config.CombineSection{
				Enabled: true, OutputFile: "all.html", Documents: []string{"missing.md"},
			}},
			wantMsg: "not in the document list",
		},
		{
			name: "combine bad date",
			desc: config.Description{Input: input, Output: output, Combine: config.CombineSection{
				Enabled: true, OutputFile: "all.html", Metadata: map[string]string{"date": "auto:"},
			}},
			wantMsg: "combine.metadata.date",
		},
		{
			name: "unknown image format",
			desc: config.Description{Input: input, Output: output, Options: config.OptionsSection{
				Images: config.ImagesSection{Formats: []string{"tiff"}},
			}},
			wantMsg: "options.images.formats",
		},
		{
			name:    "zero parallelism",
			desc:    config.Description{Input: input, Output: output, Parallelism: intPtr(0)},
			wantMsg: "parallelism",
		},
		{
			name:    "unknown incremental mode",
			desc:    config.Description{Input: input, Output: output, IncrementalMode: "ctime"},
			wantMsg: "incremental_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			desc := tt.desc
			desc.BaseDir = dir
			job, err := NewJob(&desc)
			if !errors.Is(err, ErrInvalidJob) {
				t.Fatalf("error = %v, want ErrInvalidJob", err)
			}
			if job != nil {
				t.Error("job should be nil on error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNewJob_NilDescription(t *testing.T) {
	t.Parallel()

	if _, err := NewJob(nil); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("error = %v, want ErrInvalidJob", err)
	}
}
