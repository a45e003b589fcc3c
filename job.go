package docconv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alnah/go-docconv/internal/config"
	"github.com/alnah/go-docconv/internal/dateutil"
	"github.com/alnah/go-docconv/internal/pipeline"
)

// Incremental fingerprint modes.
const (
	ModeHash  = "hash"
	ModeMTime = "mtime"
)

// stateDirName holds incremental state and intermediate files, inside the
// output directory.
const stateDirName = ".docconv"

// Document is one source document. Its identity is the cleaned absolute
// Source path.
type Document struct {
	Title  string // declared, or derived from the file name
	Source string

	// Per-document overrides; empty/nil means use the job setting.
	CSS         string
	EmbedImages *bool
}

// Style references the stylesheet and page template. A reference is a
// built-in name or a file path.
type Style struct {
	CSS      string
	Template string
}

// ImagePolicy controls how local images are emitted in produced HTML.
type ImagePolicy struct {
	Embed   bool
	Formats []string // empty = jpg, jpeg, png, webp, svg
}

func (p ImagePolicy) pipeline() pipeline.ImagePolicy {
	return pipeline.ImagePolicy{Embed: p.Embed, Formats: p.Formats}
}

// CombineSpec configures merging the documents into one artifact.
type CombineSpec struct {
	Documents  []Document // merge order; never re-sorted
	OutputFile string
	Metadata   map[string]string
	PageBreaks bool
}

// Job is a validated conversion job. It is not modified after NewJob.
type Job struct {
	From      Format
	To        Format
	Documents []Document

	OutputDir  string // empty when only OutputFile is set
	OutputFile string // single-document output path

	Style     Style
	Images    ImagePolicy
	TOC       bool
	TOCTitle  string
	CoverPage string

	Combine *CombineSpec // nil when not combining

	Incremental     bool
	IncrementalMode string // ModeHash or ModeMTime
	StateFile       string

	Parallelism int

	// BaseDir anchors relative style and template references.
	BaseDir string
}

// JobOption configures job construction.
type JobOption func(*jobConfig)

type jobConfig struct {
	parallelism int
}

// WithDefaultParallelism sets the parallelism used when the description does
// not set one. Panics if n < 1.
func WithDefaultParallelism(n int) JobOption {
	if n < 1 {
		panic("docconv: default parallelism must be at least 1")
	}
	return func(c *jobConfig) {
		c.parallelism = n
	}
}

// NewJob validates a job description and resolves it into a Job. Every
// failure wraps ErrInvalidJob.
func NewJob(desc *config.Description, opts ...JobOption) (*Job, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil description", ErrInvalidJob)
	}
	cfg := jobConfig{parallelism: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := jobBuilder{desc: desc}
	job := &Job{
		Style:           Style{CSS: desc.Options.CSS, Template: desc.Options.Template},
		Images:          ImagePolicy{Embed: desc.Options.Images.Embed, Formats: desc.Options.Images.Formats},
		TOC:             desc.Options.TOC,
		TOCTitle:        desc.Options.TOCTitle,
		CoverPage:       b.path(desc.Options.CoverPage),
		Incremental:     desc.Incremental,
		IncrementalMode: ModeHash,
		Parallelism:     cfg.parallelism,
		BaseDir:         desc.BaseDir,
	}

	steps := []func(*Job) error{
		b.documents,
		b.formats,
		b.output,
		b.combine,
		b.options,
	}
	for _, step := range steps {
		if err := step(job); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
	}
	return job, nil
}

// jobBuilder holds the description while the job is assembled.
type jobBuilder struct {
	desc     *config.Description
	inputDir string
}

// path resolves p against the job file directory and cleans it.
func (b *jobBuilder) path(p string) string {
	if p == "" {
		return ""
	}
	return absPath(b.desc.Resolve(p))
}

// docPath resolves a document file: relative entries are looked up in the
// input directory when one is set.
func (b *jobBuilder) docPath(p string) string {
	if b.inputDir != "" && !filepath.IsAbs(p) {
		return absPath(filepath.Join(b.inputDir, p))
	}
	return b.path(p)
}

func (b *jobBuilder) documents(job *Job) error {
	in := b.desc.Input
	b.inputDir = b.path(in.Directory)

	var docs []Document
	switch {
	case len(b.desc.Documents) > 0:
		for i, entry := range b.desc.Documents {
			if strings.TrimSpace(entry.File) == "" {
				return fmt.Errorf("documents[%d]: file is required", i)
			}
			docs = append(docs, Document{
				Title:       entry.Title,
				Source:      b.docPath(entry.File),
				CSS:         entry.CSS,
				EmbedImages: entry.EmbedImages,
			})
		}
	case len(in.Files) > 0:
		for _, f := range in.Files {
			if strings.TrimSpace(f) == "" {
				return errors.New("input.files contains an empty path")
			}
			docs = append(docs, Document{Source: b.docPath(f)})
		}
	case b.inputDir != "":
		// Scanning needs the input format; resolved by formats().
	default:
		return errors.New("no input source: set input.directory, input.files or documents")
	}

	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.Source] {
			return fmt.Errorf("document listed twice: %s", d.Source)
		}
		seen[d.Source] = true
	}
	job.Documents = docs
	return nil
}

func (b *jobBuilder) formats(job *Job) error {
	if b.desc.Input.Format != "" {
		f, err := ParseFormat(b.desc.Input.Format)
		if err != nil {
			return fmt.Errorf("input.format: %w", err)
		}
		job.From = f
	} else {
		f, err := inferFormat(job.Documents)
		if err != nil {
			return err
		}
		job.From = f
	}

	switch {
	case b.desc.Output.Format != "":
		f, err := ParseFormat(b.desc.Output.Format)
		if err != nil {
			return fmt.Errorf("output.format: %w", err)
		}
		job.To = f
	default:
		target := b.desc.Output.File
		if b.desc.Combine.Enabled && b.desc.Combine.OutputFile != "" {
			target = b.desc.Combine.OutputFile
		}
		f, ok := FormatFromPath(target)
		if !ok {
			return errors.New("output.format is required")
		}
		job.To = f
	}

	if len(job.Documents) == 0 {
		docs, err := scanDirectory(b.inputDir, job.From)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no %s documents in %s", job.From, b.inputDir)
		}
		job.Documents = docs
	}
	return nil
}

// inferFormat derives the input format from explicit documents when every
// extension agrees.
func inferFormat(docs []Document) (Format, error) {
	if len(docs) == 0 {
		return "", errors.New("input.format is required with input.directory")
	}
	var found Format
	for _, d := range docs {
		f, ok := FormatFromPath(d.Source)
		if !ok || (found != "" && f != found) {
			return "", errors.New("input.format is required: cannot infer it from file extensions")
		}
		found = f
	}
	return found, nil
}

// scanDirectory lists the regular files in dir carrying one of the format's
// extensions, in lexicographic order. Subdirectories are not entered.
func scanDirectory(dir string, f Format) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("input.directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !f.matchesExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, n := range names {
		docs = append(docs, Document{Source: filepath.Join(dir, n)})
	}
	return docs, nil
}

func (b *jobBuilder) output(job *Job) error {
	out := b.desc.Output
	job.OutputDir = b.path(out.Directory)
	job.OutputFile = b.path(out.File)

	if b.desc.Combine.Enabled {
		return nil
	}
	if job.OutputDir == "" && job.OutputFile == "" {
		return errors.New("no output target: set output.directory or output.file")
	}
	if job.OutputFile != "" && len(job.Documents) > 1 {
		return fmt.Errorf("output.file names one file but the job has %d documents; use output.directory", len(job.Documents))
	}
	if job.OutputFile != "" && job.OutputDir == "" {
		job.OutputDir = filepath.Dir(job.OutputFile)
	}
	return nil
}

func (b *jobBuilder) combine(job *Job) error {
	c := b.desc.Combine
	if !c.Enabled {
		return nil
	}

	outFile := c.OutputFile
	if outFile == "" {
		outFile = b.desc.Output.File
	}
	if outFile == "" {
		return errors.New("combine.output_file is required when combine is enabled")
	}
	// A relative combined output lives in the output directory.
	switch {
	case filepath.IsAbs(outFile):
	case job.OutputDir != "" && c.OutputFile != "":
		outFile = filepath.Join(job.OutputDir, outFile)
	default:
		outFile = b.desc.Resolve(outFile)
	}
	outFile = absPath(outFile)
	if job.OutputDir == "" {
		job.OutputDir = filepath.Dir(outFile)
	}

	if err := dateutil.Validate(c.Metadata["date"]); err != nil {
		return fmt.Errorf("combine.metadata.date: %w", err)
	}

	spec := &CombineSpec{
		OutputFile: outFile,
		Metadata:   c.Metadata,
		PageBreaks: c.PageBreaks == nil || *c.PageBreaks,
	}

	if len(c.Documents) == 0 {
		spec.Documents = append([]Document(nil), job.Documents...)
	} else {
		for _, ref := range c.Documents {
			doc, ok := b.lookup(job.Documents, ref)
			if !ok {
				return fmt.Errorf("combine.documents: %q is not in the document list", ref)
			}
			spec.Documents = append(spec.Documents, doc)
		}
	}
	job.Combine = spec
	return nil
}

// lookup finds a document by path (resolved like document entries) or, when
// unambiguous, by base name.
func (b *jobBuilder) lookup(docs []Document, ref string) (Document, bool) {
	want := b.docPath(ref)
	for _, d := range docs {
		if d.Source == want {
			return d, true
		}
	}

	var match []Document
	for _, d := range docs {
		if filepath.Base(d.Source) == ref {
			match = append(match, d)
		}
	}
	if len(match) == 1 {
		return match[0], true
	}
	return Document{}, false
}

func (b *jobBuilder) options(job *Job) error {
	if err := pipeline.ValidateImageFormats(job.Images.Formats); err != nil {
		return fmt.Errorf("options.images.formats: %w", err)
	}

	if p := b.desc.Parallelism; p != nil {
		if *p < 1 {
			return fmt.Errorf("parallelism must be at least 1, got %d", *p)
		}
		job.Parallelism = *p
	}

	switch strings.ToLower(b.desc.IncrementalMode) {
	case "", ModeHash:
		job.IncrementalMode = ModeHash
	case ModeMTime:
		job.IncrementalMode = ModeMTime
	default:
		return fmt.Errorf("incremental_mode must be %q or %q, got %q", ModeHash, ModeMTime, b.desc.IncrementalMode)
	}

	job.StateFile = b.path(b.desc.StateFile)
	if job.StateFile == "" {
		job.StateFile = filepath.Join(job.OutputDir, stateDirName, "state.yaml")
	}

	for i := range job.Documents {
		if job.Documents[i].Title == "" {
			job.Documents[i].Title = pipeline.TitleFromFilename(job.Documents[i].Source)
		}
	}
	if job.Combine != nil {
		for i := range job.Combine.Documents {
			if job.Combine.Documents[i].Title == "" {
				job.Combine.Documents[i].Title = pipeline.TitleFromFilename(job.Combine.Documents[i].Source)
			}
		}
	}
	return nil
}

// WorkDir is where intermediate artifacts are written.
func (j *Job) WorkDir() string {
	return filepath.Join(j.OutputDir, stateDirName, "work")
}

// Targets returns the final artifacts the job produces, in document order,
// or the combined output.
func (j *Job) Targets() []string {
	if j.Combine != nil {
		return []string{j.Combine.OutputFile}
	}
	out := make([]string, 0, len(j.Documents))
	for _, d := range j.Documents {
		out = append(out, j.outputPath(d))
	}
	return out
}

// outputPath is the user-visible output of a document when not combining.
func (j *Job) outputPath(d Document) string {
	if j.OutputFile != "" {
		return j.OutputFile
	}
	base := filepath.Base(d.Source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(j.OutputDir, base+j.To.Extension())
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
