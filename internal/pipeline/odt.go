package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ODTMimeType is the media type stored uncompressed as the first archive entry.
const ODTMimeType = "application/vnd.oasis.opendocument.text"

// ErrODTWrite indicates an ODT package could not be produced.
var ErrODTWrite = errors.New("failed to write ODT")

const odfNamespaces = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
	`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
	`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
	`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" ` +
	`xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0" ` +
	`xmlns:xlink="http://www.w3.org/1999/xlink" ` +
	`xmlns:dc="http://purl.org/dc/elements/1.1/" ` +
	`xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0"`

const manifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:version="1.2" manifest:media-type="` + ODTMimeType + `"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
 <manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>
 <manifest:file-entry manifest:full-path="meta.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

const stylesXML = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-styles ` + odfNamespaces + ` office:version="1.2">
 <office:styles>
  <style:style style:name="Standard" style:family="paragraph"/>
  <style:style style:name="Text_20_body" style:display-name="Text body" style:family="paragraph" style:parent-style-name="Standard">
   <style:paragraph-properties fo:margin-bottom="0.25cm"/>
  </style:style>
  <style:style style:name="Heading" style:family="paragraph" style:parent-style-name="Standard">
   <style:text-properties fo:font-weight="bold"/>
  </style:style>
  <style:style style:name="Heading_20_1" style:display-name="Heading 1" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="1"><style:text-properties fo:font-size="180%"/></style:style>
  <style:style style:name="Heading_20_2" style:display-name="Heading 2" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="2"><style:text-properties fo:font-size="150%"/></style:style>
  <style:style style:name="Heading_20_3" style:display-name="Heading 3" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="3"><style:text-properties fo:font-size="130%"/></style:style>
  <style:style style:name="Heading_20_4" style:display-name="Heading 4" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="4"><style:text-properties fo:font-size="115%"/></style:style>
  <style:style style:name="Heading_20_5" style:display-name="Heading 5" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="5"/>
  <style:style style:name="Heading_20_6" style:display-name="Heading 6" style:family="paragraph" style:parent-style-name="Heading" style:default-outline-level="6"/>
  <style:style style:name="Preformatted_20_Text" style:display-name="Preformatted Text" style:family="paragraph" style:parent-style-name="Standard">
   <style:text-properties style:font-name="Liberation Mono" fo:font-family="monospace"/>
  </style:style>
  <style:style style:name="Quotations" style:family="paragraph" style:parent-style-name="Text_20_body">
   <style:paragraph-properties fo:margin-left="1cm"/>
  </style:style>
  <style:style style:name="Strong_20_Emphasis" style:display-name="Strong Emphasis" style:family="text"><style:text-properties fo:font-weight="bold"/></style:style>
  <style:style style:name="Emphasis" style:family="text"><style:text-properties fo:font-style="italic"/></style:style>
  <style:style style:name="Source_20_Text" style:display-name="Source Text" style:family="text"><style:text-properties fo:font-family="monospace"/></style:style>
  <style:style style:name="Highlight" style:family="text"><style:text-properties fo:background-color="#fff3a3"/></style:style>
 </office:styles>
</office:document-styles>
`

// Paragraph and text style names shared by the writer and reader.
const (
	styleBody      = "Text_20_body"
	stylePre       = "Preformatted_20_Text"
	styleQuote     = "Quotations"
	styleStrong    = "Strong_20_Emphasis"
	styleEmphasis  = "Emphasis"
	styleCode      = "Source_20_Text"
	styleHighlight = "Highlight"
)

// WriteODT converts a parsed HTML document into an ODT package written to w.
func WriteODT(ctx context.Context, doc *Document, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var content strings.Builder
	content.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	content.WriteString(`<office:document-content ` + odfNamespaces + ` office:version="1.2"><office:body><office:text>`)
	if body := doc.BodyNode(); body != nil {
		ow := &odtWriter{out: &content}
		ow.blocks(body)
	}
	content.WriteString(`</office:text></office:body></office:document-content>`)

	title := doc.Title
	if title == "" {
		title = doc.FirstHeading
	}

	zw := zip.NewWriter(w)
	// mimetype must be first and stored uncompressed.
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrODTWrite, err)
	}
	if _, err := io.WriteString(mt, ODTMimeType); err != nil {
		return fmt.Errorf("%w: %v", ErrODTWrite, err)
	}

	entries := []struct{ name, body string }{
		{"META-INF/manifest.xml", manifestXML},
		{"styles.xml", stylesXML},
		{"meta.xml", metaXML(title, doc.Meta)},
		{"content.xml", content.String()},
	}
	for _, e := range entries {
		f, err := zw.Create(e.name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrODTWrite, e.name, err)
		}
		if _, err := io.WriteString(f, e.body); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrODTWrite, e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrODTWrite, err)
	}
	return nil
}

// odfMetaElements maps metadata keys to their ODF elements. Other keys
// become user-defined fields.
var odfMetaElements = map[string]string{
	"description": "dc:description",
	"subject":     "dc:subject",
	"author":      "dc:creator",
	"language":    "dc:language",
}

// metaXML renders meta.xml. Keywords are split on commas into one
// meta:keyword each; the author is also the initial creator.
func metaXML(title string, meta map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<office:document-meta ` + odfNamespaces + ` office:version="1.2"><office:meta>`)
	b.WriteString(`<meta:generator>docconv</meta:generator>`)
	if title != "" {
		b.WriteString(`<dc:title>` + escapeXML(title) + `</dc:title>`)
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var custom []string
	for _, k := range keys {
		v := meta[k]
		switch el, ok := odfMetaElements[k]; {
		case v == "" || k == "generator":
		case ok:
			b.WriteString(`<` + el + `>` + escapeXML(v) + `</` + el + `>`)
			if k == "author" {
				b.WriteString(`<meta:initial-creator>` + escapeXML(v) + `</meta:initial-creator>`)
			}
		case k == "keywords":
			for _, kw := range strings.Split(v, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					b.WriteString(`<meta:keyword>` + escapeXML(kw) + `</meta:keyword>`)
				}
			}
		default:
			custom = append(custom, k)
		}
	}
	for _, k := range custom {
		b.WriteString(`<meta:user-defined meta:name="` + escapeXML(k) + `">` + escapeXML(meta[k]) + `</meta:user-defined>`)
	}
	b.WriteString(`</office:meta></office:document-meta>`)
	return b.String()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// odtWriter emits ODF text markup for an HTML subtree.
type odtWriter struct {
	out *strings.Builder
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Li, atom.Pre, atom.Blockquote, atom.Table,
		atom.Hr, atom.Div, atom.Section, atom.Article, atom.Nav, atom.Main,
		atom.Header, atom.Footer, atom.Aside, atom.Figure, atom.Dl, atom.Dt, atom.Dd:
		return true
	}
	return false
}

// blocks writes the children of n as block content. Runs of inline nodes
// are gathered into a single paragraph.
func (w *odtWriter) blocks(n *html.Node) {
	w.blocksStyled(n, styleBody)
}

func (w *odtWriter) blocksStyled(n *html.Node, paraStyle string) {
	var inline []*html.Node
	flush := func() {
		if len(inline) == 0 {
			return
		}
		var buf strings.Builder
		for _, c := range inline {
			w.inlineInto(&buf, c)
		}
		if text := strings.TrimSpace(buf.String()); text != "" {
			w.out.WriteString(`<text:p text:style-name="` + paraStyle + `">` + text + `</text:p>`)
		}
		inline = inline[:0]
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			continue
		}
		if !isBlock(c) {
			inline = append(inline, c)
			continue
		}
		flush()
		w.block(c, paraStyle)
	}
	flush()
}

func (w *odtWriter) block(n *html.Node, paraStyle string) {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		var buf strings.Builder
		w.inlineChildren(&buf, n)
		fmt.Fprintf(w.out, `<text:h text:style-name="Heading_20_%d" text:outline-level="%d">%s</text:h>`,
			level, level, strings.TrimSpace(buf.String()))
	case atom.P, atom.Dt, atom.Dd:
		var buf strings.Builder
		w.inlineChildren(&buf, n)
		w.out.WriteString(`<text:p text:style-name="` + paraStyle + `">` + strings.TrimSpace(buf.String()) + `</text:p>`)
	case atom.Pre:
		w.pre(n)
	case atom.Ul, atom.Ol:
		w.list(n)
	case atom.Blockquote:
		w.blocksStyled(n, styleQuote)
	case atom.Table:
		w.table(n)
	case atom.Hr:
		w.out.WriteString(`<text:p text:style-name="` + styleBody + `"/>`)
	case atom.Li:
		w.blocksStyled(n, paraStyle)
	default:
		w.blocksStyled(n, paraStyle)
	}
}

func (w *odtWriter) pre(n *html.Node) {
	text := strings.TrimSuffix(TextContent(n), "\n")
	w.out.WriteString(`<text:p text:style-name="` + stylePre + `">`)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			w.out.WriteString(`<text:line-break/>`)
		}
		w.out.WriteString(preservedSpaces(line))
	}
	w.out.WriteString(`</text:p>`)
}

// preservedSpaces escapes line and encodes runs of spaces with <text:s/>,
// since ODF collapses consecutive spaces like HTML does.
func preservedSpaces(line string) string {
	var b strings.Builder
	run := 0
	flush := func() {
		switch {
		case run == 1:
			b.WriteString(" ")
		case run > 1:
			b.WriteString(" ")
			fmt.Fprintf(&b, `<text:s text:c="%d"/>`, run-1)
		}
		run = 0
	}
	for _, r := range line {
		switch r {
		case ' ':
			run++
		case '\t':
			flush()
			b.WriteString(`<text:tab/>`)
		default:
			flush()
			b.WriteString(escapeXML(string(r)))
		}
	}
	flush()
	return b.String()
}

func (w *odtWriter) list(n *html.Node) {
	w.out.WriteString(`<text:list>`)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		w.out.WriteString(`<text:list-item>`)
		w.blocksStyled(c, styleBody)
		w.out.WriteString(`</text:list-item>`)
	}
	w.out.WriteString(`</text:list>`)
}

func (w *odtWriter) table(n *html.Node) {
	var rows []*html.Node
	walk(n, func(c *html.Node) bool {
		if c != n && c.Type == html.ElementNode && c.DataAtom == atom.Table {
			return false
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
			rows = append(rows, c)
			return false
		}
		return true
	})

	cols := 0
	for _, r := range rows {
		cols = max(cols, len(cells(r)))
	}
	if cols == 0 {
		return
	}

	w.out.WriteString(`<table:table>`)
	w.out.WriteString(`<table:table-column table:number-columns-repeated="` + strconv.Itoa(cols) + `"/>`)
	for _, r := range rows {
		w.out.WriteString(`<table:table-row>`)
		cs := cells(r)
		for i := range cols {
			w.out.WriteString(`<table:table-cell office:value-type="string">`)
			if i < len(cs) {
				w.blocksStyled(cs[i], styleBody)
			}
			w.out.WriteString(`</table:table-cell>`)
		}
		w.out.WriteString(`</table:table-row>`)
	}
	w.out.WriteString(`</table:table>`)
}

func cells(row *html.Node) []*html.Node {
	var out []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			out = append(out, c)
		}
	}
	return out
}

func (w *odtWriter) inlineChildren(buf *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.inlineInto(buf, c)
	}
}

func (w *odtWriter) inlineInto(buf *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(escapeXML(collapseSpace(n.Data)))
		return
	case html.ElementNode:
	default:
		return
	}

	span := func(style string) {
		buf.WriteString(`<text:span text:style-name="` + style + `">`)
		w.inlineChildren(buf, n)
		buf.WriteString(`</text:span>`)
	}

	switch n.DataAtom {
	case atom.Strong, atom.B:
		span(styleStrong)
	case atom.Em, atom.I:
		span(styleEmphasis)
	case atom.Code, atom.Kbd, atom.Samp:
		span(styleCode)
	case atom.Mark:
		span(styleHighlight)
	case atom.Br:
		buf.WriteString(`<text:line-break/>`)
	case atom.A:
		href := attr(n, "href")
		if href == "" {
			w.inlineChildren(buf, n)
			return
		}
		buf.WriteString(`<text:a xlink:type="simple" xlink:href="` + escapeXML(href) + `">`)
		w.inlineChildren(buf, n)
		buf.WriteString(`</text:a>`)
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			buf.WriteString(escapeXML("[" + alt + "]"))
		}
	case atom.Script, atom.Style:
	default:
		w.inlineChildren(buf, n)
	}
}

func collapseSpace(s string) string {
	if s == "" {
		return s
	}
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if len(fields) == 0 {
		return " "
	}
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f'
}
