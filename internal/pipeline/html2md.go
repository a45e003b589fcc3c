package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMarkdownConversion indicates HTML to Markdown conversion failed.
var ErrMarkdownConversion = errors.New("markdown conversion failed")

// HTMLToMarkdown converts an HTML document to Markdown. Only <body> content
// is converted; generated tables of contents are dropped because Markdown
// readers build their own.
func HTMLToMarkdown(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := ParseDocument(r)
	if err != nil {
		return "", err
	}
	body := doc.BodyNode()
	if body == nil {
		return "", nil
	}
	removeGenerated(body)

	out, err := htmltomarkdown.ConvertNode(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMarkdownConversion, err)
	}
	md := strings.TrimSpace(string(out))
	if md == "" {
		return "", nil
	}
	return md + "\n", nil
}

// removeGenerated detaches <nav class="toc">, <script> and <style> elements.
func removeGenerated(root *html.Node) {
	var doomed []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch {
		case n.DataAtom == atom.Script, n.DataAtom == atom.Style:
			doomed = append(doomed, n)
			return false
		case n.DataAtom == atom.Nav && hasClass(n, "toc"):
			doomed = append(doomed, n)
			return false
		}
		return true
	})
	for _, n := range doomed {
		n.Parent.RemoveChild(n)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
