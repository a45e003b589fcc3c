package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
)

// ErrODTRead indicates an ODT package could not be read.
var ErrODTRead = errors.New("failed to read ODT")

// maxODTEntrySize bounds decompressed XML parts (64MB).
const maxODTEntrySize = 64 << 20

const (
	nsText   = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
	nsTable  = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"
	nsOffice = "urn:oasis:names:tc:opendocument:xmlns:office:1.0"
	nsXlink  = "http://www.w3.org/1999/xlink"
	nsDC     = "http://purl.org/dc/elements/1.1/"
)

// ODTContent is the HTML rendition of an ODT document.
type ODTContent struct {
	Title string // dc:title, or ""
	Body  string // HTML fragment
}

// ReadODT extracts the text body of an ODT package as an HTML fragment.
// Headings, paragraphs, lists, tables, links and the writer's own character
// styles are mapped; other formatting is dropped.
func ReadODT(ctx context.Context, data []byte) (*ODTContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrODTRead, err)
	}

	var content, meta []byte
	for _, f := range zr.File {
		switch f.Name {
		case "content.xml":
			content, err = readEntry(f)
		case "meta.xml":
			meta, err = readEntry(f)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrODTRead, f.Name, err)
		}
	}
	if content == nil {
		return nil, fmt.Errorf("%w: missing content.xml", ErrODTRead)
	}

	body, err := odfToHTML(content)
	if err != nil {
		return nil, fmt.Errorf("%w: content.xml: %v", ErrODTRead, err)
	}
	return &ODTContent{Title: odfTitle(meta), Body: body}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxODTEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxODTEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxODTEntrySize)
	}
	return data, nil
}

func odfTitle(meta []byte) string {
	if meta == nil {
		return ""
	}
	dec := xml.NewDecoder(bytes.NewReader(meta))
	inTitle := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inTitle = t.Name.Space == nsDC && t.Name.Local == "title"
		case xml.CharData:
			if inTitle {
				return strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			inTitle = false
		}
	}
}

// odfToHTML streams content.xml and emits HTML for the office:text body.
func odfToHTML(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var out strings.Builder
	var closers []string // closing tag per open element, "" for ignored ones
	inBody := false

	push := func(open, closeTag string) {
		out.WriteString(open)
		closers = append(closers, closeTag)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == nsOffice && t.Name.Local == "text" {
				inBody = true
				continue
			}
			if !inBody {
				continue
			}
			switch {
			case t.Name.Space == nsText && t.Name.Local == "h":
				level := 1
				if v := xmlAttr(t, nsText, "outline-level"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 6 {
						level = n
					}
				}
				tag := "h" + strconv.Itoa(level)
				push("<"+tag+">", "</"+tag+">")
			case t.Name.Space == nsText && t.Name.Local == "p":
				if xmlAttr(t, nsText, "style-name") == stylePre {
					push("<pre>", "</pre>")
				} else {
					push("<p>", "</p>")
				}
			case t.Name.Space == nsText && t.Name.Local == "list":
				push("<ul>", "</ul>")
			case t.Name.Space == nsText && t.Name.Local == "list-item":
				push("<li>", "</li>")
			case t.Name.Space == nsText && t.Name.Local == "span":
				switch xmlAttr(t, nsText, "style-name") {
				case styleStrong:
					push("<strong>", "</strong>")
				case styleEmphasis:
					push("<em>", "</em>")
				case styleCode:
					push("<code>", "</code>")
				case styleHighlight:
					push("<mark>", "</mark>")
				default:
					push("", "")
				}
			case t.Name.Space == nsText && t.Name.Local == "a":
				push(`<a href="`+html.EscapeString(xmlAttr(t, nsXlink, "href"))+`">`, "</a>")
			case t.Name.Space == nsText && t.Name.Local == "line-break":
				push("<br>", "")
			case t.Name.Space == nsText && t.Name.Local == "tab":
				push("\t", "")
			case t.Name.Space == nsText && t.Name.Local == "s":
				n := 1
				if v := xmlAttr(t, nsText, "c"); v != "" {
					if c, err := strconv.Atoi(v); err == nil && c > 0 && c < 1024 {
						n = c
					}
				}
				push(strings.Repeat(" ", n), "")
			case t.Name.Space == nsTable && t.Name.Local == "table":
				push("<table>", "</table>")
			case t.Name.Space == nsTable && t.Name.Local == "table-row":
				push("<tr>", "</tr>")
			case t.Name.Space == nsTable && t.Name.Local == "table-cell":
				push("<td>", "</td>")
			default:
				push("", "")
			}
		case xml.EndElement:
			if t.Name.Space == nsOffice && t.Name.Local == "text" {
				inBody = false
				continue
			}
			if !inBody || len(closers) == 0 {
				continue
			}
			out.WriteString(closers[len(closers)-1])
			closers = closers[:len(closers)-1]
		case xml.CharData:
			if inBody {
				out.WriteString(html.EscapeString(string(t)))
			}
		}
	}
	return out.String(), nil
}

func xmlAttr(el xml.StartElement, space, local string) string {
	for _, a := range el.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
