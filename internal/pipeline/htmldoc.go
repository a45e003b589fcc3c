package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrHTMLParse indicates an HTML input could not be parsed.
var ErrHTMLParse = errors.New("failed to parse HTML")

// Document is the parts of an HTML document the combiner and the ODT writer
// care about.
type Document struct {
	Title        string   // <title> text
	Lang         string   // <html lang>
	Styles       []string // <style> contents from <head>, in order
	Body         string   // rendered children of <body>
	FirstHeading string   // text of the first <h1>

	// Meta holds <meta name content> pairs from <head>, keyed by lowercased
	// name. Writers use it as document-level metadata.
	Meta map[string]string

	root *html.Node
	body *html.Node
}

// ParseDocument parses a full HTML document or a fragment.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTMLParse, err)
	}

	doc := &Document{root: root}
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Html:
			doc.Lang = attr(n, "lang")
		case atom.Title:
			if doc.Title == "" {
				doc.Title = strings.TrimSpace(TextContent(n))
			}
		case atom.Style:
			if hasAncestor(n, atom.Head) {
				doc.Styles = append(doc.Styles, TextContent(n))
			}
		case atom.Meta:
			name := strings.ToLower(strings.TrimSpace(attr(n, "name")))
			if name != "" && hasAncestor(n, atom.Head) {
				if doc.Meta == nil {
					doc.Meta = make(map[string]string)
				}
				doc.Meta[name] = attr(n, "content")
			}
		case atom.Body:
			doc.body = n
		case atom.H1:
			if doc.FirstHeading == "" {
				doc.FirstHeading = strings.TrimSpace(TextContent(n))
			}
		}
		return true
	})

	if doc.body != nil {
		var buf strings.Builder
		for c := doc.body.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrHTMLParse, err)
			}
		}
		doc.Body = strings.TrimSpace(buf.String())
	}
	return doc, nil
}

// BodyNode returns the parsed <body> element, or nil.
func (d *Document) BodyNode() *html.Node { return d.body }

// TextContent concatenates the text nodes under n.
func TextContent(n *html.Node) string {
	var buf strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
		return true
	})
	return buf.String()
}

// walk visits n and its descendants depth-first; returning false from fn
// skips the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasAncestor(n *html.Node, a atom.Atom) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == a {
			return true
		}
	}
	return false
}

// parseHTML parses content as a full document when it starts with a doctype
// or <html>, and as a <body> fragment otherwise.
func parseHTML(content string) (*html.Node, bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}
	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, true, nil
}

// renderHTML renders a tree from parseHTML; fragments render without the
// synthetic container.
func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder
	if !isFragment {
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
