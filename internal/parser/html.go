package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/bibgest/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser handles HTML renderings of bibliography documents. HTML carries
// no source line information, so block positions are zero.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader) ([]doctree.Block, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var blocks []doctree.Block
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.DataAtom); level > 0 {
				blocks = append(blocks, doctree.Heading{
					Depth:   level,
					Content: htmlInlines(n),
				})
				return
			}

			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Header:
				return
			case atom.Ul, atom.Ol:
				blocks = append(blocks, htmlList(n))
				return
			case atom.P, atom.Pre, atom.Table, atom.Blockquote:
				blocks = append(blocks, doctree.Opaque{Kind: n.Data})
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// Find <body> or use whole document.
	body := findBody(doc)
	if body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return blocks, nil
}

func htmlList(n *html.Node) doctree.List {
	var list doctree.List
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		content := c
		if p := firstElementChild(c); p != nil && p.DataAtom == atom.P {
			content = p
		}
		list.Items = append(list.Items, doctree.ListItem{Content: htmlInlines(content)})
	}
	return list
}

// htmlInlines converts the inline children of n, collapsing whitespace the
// way a browser would and trimming it at both ends.
func htmlInlines(n *html.Node) []doctree.Inline {
	var b inlineBuilder
	convertHTMLInlines(n, &b)
	nodes := b.result()

	if len(nodes) > 0 {
		if t, ok := nodes[0].(doctree.Text); ok {
			t.Value = strings.TrimLeft(t.Value, " ")
			if t.Value == "" {
				nodes = nodes[1:]
			} else {
				nodes[0] = t
			}
		}
	}
	if len(nodes) > 0 {
		last := len(nodes) - 1
		if t, ok := nodes[last].(doctree.Text); ok {
			t.Value = strings.TrimRight(t.Value, " ")
			if t.Value == "" {
				nodes = nodes[:last]
			} else {
				nodes[last] = t
			}
		}
	}
	return nodes
}

func convertHTMLInlines(n *html.Node, b *inlineBuilder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.writeText(collapseSpace(c.Data))
		case html.ElementNode:
			switch c.DataAtom {
			case atom.A:
				b.add(doctree.Link{URL: attr(c, "href"), Children: htmlInlines(c)})
			case atom.Em, atom.I:
				b.add(doctree.Emphasis{Children: htmlInlines(c)})
			case atom.Strong, atom.B:
				b.add(doctree.Strong{Children: htmlInlines(c)})
			case atom.Code, atom.Kbd:
				b.add(doctree.InlineCode{Value: textContent(c)})
			case atom.Img:
				alt := attr(c, "alt")
				if alt == "" {
					alt = attr(c, "title")
				}
				b.add(doctree.Image{URL: attr(c, "src"), Alt: alt})
			case atom.Br:
				b.add(doctree.Break{})
			case atom.Ul, atom.Ol, atom.Script, atom.Style:
				// Nested lists are not part of the item's citation.
			default:
				convertHTMLInlines(c, b)
			}
		}
	}
}

func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				sb.WriteByte(' ')
			}
			space = true
		default:
			sb.WriteRune(r)
			space = false
		}
	}
	return sb.String()
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
