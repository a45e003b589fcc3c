package pipeline

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-docconv/internal/fileutil"
)

// ErrImageFormat indicates an unknown image format in a policy.
var ErrImageFormat = errors.New("unsupported image format")

// DefaultImageFormats are the formats embedded when a policy lists none.
var DefaultImageFormats = []string{"jpg", "jpeg", "png", "webp", "svg"}

// knownImageTypes maps extensions to MIME types. Platform MIME tables differ
// on webp and svg, so these are fixed.
var knownImageTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
}

// ImagePolicy controls how local image references are emitted.
type ImagePolicy struct {
	Embed   bool     // inline as data: URIs
	Formats []string // extensions eligible for embedding; empty = DefaultImageFormats
}

// ValidateImageFormats checks that every format is a known image extension.
func ValidateImageFormats(formats []string) error {
	for _, f := range formats {
		if _, ok := knownImageTypes[normalizeExt(f)]; !ok {
			return fmt.Errorf("%w: %q", ErrImageFormat, f)
		}
	}
	return nil
}

// ImageReport lists what ApplyImagePolicy did with each local image.
type ImageReport struct {
	Embedded   []string
	Linked     []string
	Disallowed []string // format not in the policy; left linked
	Missing    []string // file not found; left linked
}

// ApplyImagePolicy rewrites local <img src> references found in htmlContent.
// Relative references resolve against baseDir. With Embed, allowed formats
// become data: URIs; everything else, and every image without Embed, becomes
// an absolute file:// URL so the document survives being moved to a work
// directory. Remote URLs and data: URIs are left untouched. Relative <a href>
// file links are rewritten to file:// URLs as well.
func ApplyImagePolicy(htmlContent, baseDir string, policy ImagePolicy) (string, *ImageReport, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", nil, err
	}

	doc, isFragment, err := parseHTML(htmlContent)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrHTMLParse, err)
	}

	allowed := policy.Formats
	if len(allowed) == 0 {
		allowed = DefaultImageFormats
	}
	allowedSet := make([]string, 0, len(allowed))
	for _, f := range allowed {
		allowedSet = append(allowedSet, normalizeExt(f))
	}

	report := &ImageReport{}
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Img:
			src := attr(n, "src")
			if !isLocalRef(src) {
				return true
			}
			path := resolveLocal(src, absBase)
			if !policy.Embed {
				setAttr(n, "src", pathToFileURL(path))
				report.Linked = append(report.Linked, path)
				return true
			}

			ext := normalizeExt(filepath.Ext(path))
			if !slices.Contains(allowedSet, ext) {
				setAttr(n, "src", pathToFileURL(path))
				report.Disallowed = append(report.Disallowed, path)
				return true
			}
			uri, err := dataURI(path, ext)
			if err != nil {
				setAttr(n, "src", pathToFileURL(path))
				report.Missing = append(report.Missing, path)
				return true
			}
			setAttr(n, "src", uri)
			report.Embedded = append(report.Embedded, path)
		case atom.A:
			href := attr(n, "href")
			if isLocalRef(href) && !filepath.IsAbs(href) {
				setAttr(n, "href", pathToFileURL(resolveLocal(href, absBase)))
			}
		}
		return true
	})

	out, err := renderHTML(doc, isFragment)
	if err != nil {
		return "", nil, err
	}
	return out, report, nil
}

// isLocalRef reports whether ref points at a local file (relative or
// absolute path, or file:// URL).
func isLocalRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") || fileutil.IsURL(ref) {
		return false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

func resolveLocal(ref, absBase string) string {
	if strings.HasPrefix(strings.ToLower(ref), "file://") {
		if u, err := url.Parse(ref); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	// Strip query and fragment from relative references.
	if i := strings.IndexAny(ref, "?#"); i != -1 {
		ref = ref[:i]
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(absBase, filepath.FromSlash(ref))
}

func dataURI(path, ext string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- image referenced by the document
	if err != nil {
		return "", err
	}
	mimeType, ok := knownImageTypes[ext]
	if !ok {
		mimeType = mime.TypeByExtension("." + ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// pathToFileURL converts an absolute path to a file:// URL, including
// Windows drive paths.
func pathToFileURL(absPath string) string {
	p := filepath.ToSlash(absPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}
