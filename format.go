package docconv

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format names a document format, a node of the conversion graph.
type Format string

// Built-in formats.
const (
	Markdown Format = "markdown"
	HTML     Format = "html"
	PDF      Format = "pdf"
	ODT      Format = "odt"
)

// AssemblyFormat is the format documents are merged in when combining.
const AssemblyFormat = HTML

var formatAliases = map[string]Format{
	"markdown":     Markdown,
	"md":           Markdown,
	"html":         HTML,
	"htm":          HTML,
	"pdf":          PDF,
	"odt":          ODT,
	"opendocument": ODT,
}

// extensions lists accepted file extensions per format, preferred first.
var extensions = map[Format][]string{
	Markdown: {".md", ".markdown"},
	HTML:     {".html", ".htm"},
	PDF:      {".pdf"},
	ODT:      {".odt"},
}

// ParseFormat parses a format name or alias, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q (valid: markdown, html, pdf, odt)", ErrUnknownFormat, s)
	}
	return f, nil
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for f, exts := range extensions {
		for _, e := range exts {
			if e == ext {
				return f, true
			}
		}
	}
	return "", false
}

// String returns the format name.
func (f Format) String() string { return string(f) }

// Extension returns the conventional file extension, with the leading dot.
// Unknown formats use their name as extension.
func (f Format) Extension() string {
	if exts, ok := extensions[f]; ok {
		return exts[0]
	}
	return "." + string(f)
}

// Extensions returns every extension accepted for f when scanning
// directories.
func (f Format) Extensions() []string {
	if exts, ok := extensions[f]; ok {
		return append([]string(nil), exts...)
	}
	return []string{f.Extension()}
}

// matchesExt reports whether path carries one of f's extensions.
func (f Format) matchesExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range f.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}
