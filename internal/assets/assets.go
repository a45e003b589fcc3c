// Package assets provides the stylesheets and page templates applied to
// HTML output. A reference is either the name of a built-in asset ("default",
// "minimal") or a path to a file on disk; the empty reference selects the
// built-in default.
package assets

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed styles/*.css
var styles embed.FS

//go:embed templates/*.html
var templates embed.FS

// DefaultName is the name of the built-in style and page template.
const DefaultName = "default"

// Sentinel errors for asset operations.
var (
	ErrStyleNotFound    = errors.New("style not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidAssetName = errors.New("invalid asset name")
	ErrAssetRead        = errors.New("failed to read asset")
)

// Loader resolves style and template references.
type Loader interface {
	LoadStyle(ref string) (string, error)
	LoadTemplate(ref string) (string, error)
}

// Resolver loads built-in assets by name and user assets by path.
type Resolver struct {
	baseDir string
}

// NewResolver creates a Resolver. Relative file references are resolved
// against baseDir; an empty baseDir means the working directory.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// LoadStyle returns the CSS for ref.
func (r *Resolver) LoadStyle(ref string) (string, error) {
	return r.load(ref, "styles", ".css", ErrStyleNotFound)
}

// LoadTemplate returns the page template source for ref.
func (r *Resolver) LoadTemplate(ref string) (string, error) {
	return r.load(ref, "templates", ".html", ErrTemplateNotFound)
}

func (r *Resolver) load(ref, dir, ext string, notFound error) (string, error) {
	if ref == "" {
		ref = DefaultName
	}

	if !IsFileRef(ref) {
		if err := ValidateAssetName(ref); err != nil {
			return "", err
		}
		fsys := styles
		if dir == "templates" {
			fsys = templates
		}
		content, err := fsys.ReadFile(dir + "/" + ref + ext)
		if err != nil {
			return "", fmt.Errorf("%w: %q (built-in: %s)", notFound, ref, strings.Join(builtins(fsys, dir, ext), ", "))
		}
		return string(content), nil
	}

	path := ref
	if !filepath.IsAbs(path) && r.baseDir != "" {
		path = filepath.Join(r.baseDir, path)
	}
	content, err := os.ReadFile(path) // #nosec G304 -- user-provided asset path
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", notFound, path)
		}
		return "", fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
	return string(content), nil
}

// IsFileRef reports whether ref names a file rather than a built-in asset.
func IsFileRef(ref string) bool {
	return strings.ContainsAny(ref, `/\.`)
}

// ValidateAssetName checks that a built-in asset name is a bare identifier.
func ValidateAssetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if strings.ContainsAny(name, "/\\.\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}

// BuiltinStyles lists the embedded style names.
func BuiltinStyles() []string {
	return builtins(styles, "styles", ".css")
}

func builtins(fsys embed.FS, dir, ext string) []string {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names
}

// Compile-time interface check.
var _ Loader = (*Resolver)(nil)
