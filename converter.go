package docconv

import "context"

// Converter performs one edge of the format graph: it reads the file at
// input and writes the converted document to output. Implementations must
// be safe for concurrent use; the executor runs several tasks at once.
type Converter interface {
	Convert(ctx context.Context, input, output string, opts ConvertOptions) error
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, input, output string, opts ConvertOptions) error

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, input, output string, opts ConvertOptions) error {
	return f(ctx, input, output, opts)
}

// ConvertOptions carries per-task settings to a converter. Converters ignore
// the fields that do not apply to their formats.
type ConvertOptions struct {
	// Title is the document title: declared in the job, or derived.
	Title string

	// SourceDir is the directory of the original source document. Relative
	// image and link references resolve against it, even when the input is
	// an intermediate file in the work directory.
	SourceDir string

	// CSS is stylesheet content. Converters producing HTML pages embed it;
	// converters consuming HTML inject it. Empty means no styling.
	CSS string

	// Template is page template source for HTML output. Empty uses the
	// built-in template.
	Template string

	// TOC requests a per-document table of contents built from headings.
	TOC      bool
	TOCTitle string

	// Images is the image policy applied when HTML is produced.
	Images ImagePolicy

	// Metadata is document-level metadata for the output (author, subject,
	// keywords, date...). Set on the steps finishing a combined document;
	// values override <meta> tags of an HTML input.
	Metadata map[string]string
}
