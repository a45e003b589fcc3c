package pipeline

// Notes:
// - The cancellation branch that fires while Goldmark is running is not
//   tested: rendering small inputs finishes before any select can observe it.

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestGoldmarkRenderer - Markdown rendering
// ---------------------------------------------------------------------------

func TestGoldmarkRenderer_Render(t *testing.T) {
	t.Parallel()

	r := NewGoldmarkRenderer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
		wantExcludes []string
	}{
		{
			name:         "heading gets id",
			input:        "# Getting Started\n",
			wantContains: []string{`<h1 id="getting-started">Getting Started</h1>`},
		},
		{
			name:         "gfm table",
			input:        "| a | b |\n|---|---|\n| 1 | 2 |\n",
			wantContains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:         "highlight syntax",
			input:        "this is ==important== text",
			wantContains: []string{"<mark>important</mark>"},
		},
		{
			name:         "fenced code uses classes",
			input:        "```go\nfunc main() {}\n```\n",
			wantContains: []string{`class="chroma"`},
			wantExcludes: []string{"style=\"color"},
		},
		{
			name:         "raw html is dropped",
			input:        "<script>alert(1)</script>\n\ntext",
			wantExcludes: []string{"<script>"},
		},
		{
			name:         "footnote",
			input:        "Claim[^1]\n\n[^1]: Source\n",
			wantContains: []string{"footnote"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.Render(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q\ngot: %s", want, got)
				}
			}
			for _, bad := range tt.wantExcludes {
				if strings.Contains(got, bad) {
					t.Errorf("output should not contain %q\ngot: %s", bad, got)
				}
			}
		})
	}
}

func TestGoldmarkRenderer_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGoldmarkRenderer().Render(ctx, "# x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// TestPreprocessMarkdown - Source normalization
// ---------------------------------------------------------------------------

func TestPreprocessMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "crlf", input: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "blank lines", input: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "highlight", input: "==x==", want: markStart + "x" + markEnd},
		{name: "plain", input: "text", want: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PreprocessMarkdown(tt.input); got != tt.want {
				t.Errorf("PreprocessMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestTitles - Title derivation
// ---------------------------------------------------------------------------

func TestMarkdownTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"# Intro\n\ntext", "Intro"},
		{"preface\n\n# Setup ##\n", "Setup"},
		{"## Only H2\n", ""},
		{"", ""},
		{"#NoSpace\n", ""},
	}

	for _, tt := range tests {
		if got := MarkdownTitle(tt.input); got != tt.want {
			t.Errorf("MarkdownTitle(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTitleFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"01-getting_started.md", "Getting Started"},
		{"docs/usage.md", "Usage"},
		{"2_setup-guide.html", "Setup Guide"},
		{"README.md", "README"},
		{"42.md", "42"},
		{"édition.md", "Édition"},
	}

	for _, tt := range tests {
		if got := TitleFromFilename(tt.input); got != tt.want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
