// Package pipeline implements the per-format conversion primitives used by
// the default converters:
//   - Markdown preprocessing and rendering via Goldmark
//   - page assembly (stylesheet injection, page template, heading TOC)
//   - image policy (embed as data URIs or link as file:// URLs)
//   - HTML parsing helpers shared with the combiner
//   - HTML to Markdown conversion
//   - OpenDocument text (ODT) writing and reading
//
// PDF rendering lives in the root package because it owns a browser pool.
package pipeline
