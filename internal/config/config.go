// Package config decodes and structurally validates job descriptions.
// Semantic validation (formats, document references, defaults) happens when
// the description is turned into a job by the root package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-docconv/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("job file not found")
	ErrEmptyPath      = errors.New("job file path cannot be empty")
	ErrConfigParse    = errors.New("failed to parse job file")
	ErrFieldTooLong   = errors.New("field exceeds maximum length")
	ErrTooManyEntries = errors.New("too many entries")
)

// Field length limits.
const (
	MaxPathLength     = 4096 // PATH_MAX on Linux
	MaxFormatLength   = 20   // "markdown", "opendocument"
	MaxTitleLength    = 200  // Document or TOC title
	MaxMetaKeyLength  = 64   // "author", "keywords"
	MaxMetaValLength  = 1000 // Free-form metadata value
	MaxModeLength     = 10   // "hash", "mtime"
	MaxDocuments      = 10000
	MaxMetadataFields = 64
)

// Description is the surface form of a job file. Every field is optional at
// this level; required-ness is decided when the job is built.
type Description struct {
	Input           InputSection    `yaml:"input"`
	Output          OutputSection   `yaml:"output"`
	Options         OptionsSection  `yaml:"options"`
	Documents       []DocumentEntry `yaml:"documents"`
	Combine         CombineSection  `yaml:"combine"`
	Incremental     bool            `yaml:"incremental"`
	IncrementalMode string          `yaml:"incremental_mode"` // "hash" (default) or "mtime"
	StateFile       string          `yaml:"state_file"`       // Empty = <output>/.docconv/state.yaml
	Parallelism     *int            `yaml:"parallelism"`      // nil = 1

	// BaseDir anchors relative paths. Set by LoadDescription to the job
	// file's directory; empty means the working directory.
	BaseDir string `yaml:"-"`
}

// InputSection selects what to convert.
type InputSection struct {
	Format    string   `yaml:"format"`
	Directory string   `yaml:"directory"`
	Files     []string `yaml:"files"`
}

// OutputSection selects where results go.
type OutputSection struct {
	Format    string `yaml:"format"`
	Directory string `yaml:"directory"`
	File      string `yaml:"file"`
}

// OptionsSection holds styling and rendering options.
type OptionsSection struct {
	CSS       string        `yaml:"css"`
	Template  string        `yaml:"template"`
	TOC       bool          `yaml:"toc"`
	TOCTitle  string        `yaml:"toc_title"`
	CoverPage string        `yaml:"cover_page"`
	Images    ImagesSection `yaml:"images"`
}

// ImagesSection is the image policy.
type ImagesSection struct {
	Embed   bool     `yaml:"embed"`
	Formats []string `yaml:"formats"` // Empty = jpg, jpeg, png, webp, svg
}

// DocumentEntry is one entry of the ordered document list.
type DocumentEntry struct {
	File        string `yaml:"file"`
	Title       string `yaml:"title"`
	CSS         string `yaml:"css"`          // Per-document stylesheet override
	EmbedImages *bool  `yaml:"embed_images"` // Per-document image embedding override
}

// CombineSection configures merging into a single artifact.
type CombineSection struct {
	Enabled    bool              `yaml:"enabled"`
	OutputFile string            `yaml:"output_file"`
	Documents  []string          `yaml:"documents"` // Empty = every document, in list order
	Metadata   map[string]string `yaml:"metadata"`
	PageBreaks *bool             `yaml:"page_breaks"` // nil = true
}

// Validate checks field lengths and entry counts. Called by LoadDescription,
// but available for descriptions built from CLI flags.
func (d *Description) Validate() error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"input.format", d.Input.Format, MaxFormatLength},
		{"input.directory", d.Input.Directory, MaxPathLength},
		{"output.format", d.Output.Format, MaxFormatLength},
		{"output.directory", d.Output.Directory, MaxPathLength},
		{"output.file", d.Output.File, MaxPathLength},
		{"options.css", d.Options.CSS, MaxPathLength},
		{"options.template", d.Options.Template, MaxPathLength},
		{"options.toc_title", d.Options.TOCTitle, MaxTitleLength},
		{"options.cover_page", d.Options.CoverPage, MaxPathLength},
		{"combine.output_file", d.Combine.OutputFile, MaxPathLength},
		{"incremental_mode", d.IncrementalMode, MaxModeLength},
		{"state_file", d.StateFile, MaxPathLength},
	}
	for _, f := range fields {
		if err := validateFieldLength(f.name, f.value, f.max); err != nil {
			return err
		}
	}

	if n := len(d.Input.Files) + len(d.Documents); n > MaxDocuments {
		return fmt.Errorf("%w: %d documents (max %d)", ErrTooManyEntries, n, MaxDocuments)
	}
	for i, f := range d.Input.Files {
		if err := validateFieldLength(fmt.Sprintf("input.files[%d]", i), f, MaxPathLength); err != nil {
			return err
		}
	}
	for i, doc := range d.Documents {
		if err := validateFieldLength(fmt.Sprintf("documents[%d].file", i), doc.File, MaxPathLength); err != nil {
			return err
		}
		if err := validateFieldLength(fmt.Sprintf("documents[%d].title", i), doc.Title, MaxTitleLength); err != nil {
			return err
		}
		if err := validateFieldLength(fmt.Sprintf("documents[%d].css", i), doc.CSS, MaxPathLength); err != nil {
			return err
		}
	}
	for i, f := range d.Combine.Documents {
		if err := validateFieldLength(fmt.Sprintf("combine.documents[%d]", i), f, MaxPathLength); err != nil {
			return err
		}
	}

	if len(d.Combine.Metadata) > MaxMetadataFields {
		return fmt.Errorf("%w: %d metadata fields (max %d)", ErrTooManyEntries, len(d.Combine.Metadata), MaxMetadataFields)
	}
	for k, v := range d.Combine.Metadata {
		if err := validateFieldLength("combine.metadata key", k, MaxMetaKeyLength); err != nil {
			return err
		}
		if err := validateFieldLength("combine.metadata."+k, v, MaxMetaValLength); err != nil {
			return err
		}
	}

	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// Parse decodes a YAML or JSON job description and validates it.
// Unknown fields are rejected so typos surface instead of being ignored.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := yamlutil.UnmarshalStrict(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// LoadDescription reads and parses the job file at path. Relative paths in
// the description are later resolved against the file's directory.
func LoadDescription(path string) (*Description, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path) // #nosec G304 -- job file path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	desc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving job file directory: %w", err)
	}
	desc.BaseDir = abs
	return desc, nil
}

// Resolve anchors p to the description's base directory. Absolute paths and
// empty strings are returned unchanged.
func (d *Description) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || d.BaseDir == "" {
		return p
	}
	return filepath.Join(d.BaseDir, p)
}

// IsJobFileExt reports whether name has an extension accepted for job files.
func IsJobFileExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
