package parser

import (
	"bytes"
	"io"
	"sort"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader) ([]doctree.Block, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))
	lines := newLineIndex(src)

	var blocks []doctree.Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		pos := lines.blockRange(n)
		switch node := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, doctree.Heading{
				Depth:   node.Level,
				Content: convertInlines(node, src),
				Pos:     pos,
			})
		case *ast.List:
			list := doctree.List{Pos: pos}
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				list.Items = append(list.Items, doctree.ListItem{
					Content: listItemContent(c, src),
					Pos:     lines.blockRange(c),
				})
			}
			blocks = append(blocks, list)
		default:
			blocks = append(blocks, doctree.Opaque{Kind: n.Kind().String(), Pos: pos})
		}
	}
	return blocks, nil
}

// listItemContent returns the inline content of the item's first paragraph.
// Nested lists and later paragraphs are not part of the citation.
func listItemContent(item ast.Node, src []byte) []doctree.Inline {
	first := item.FirstChild()
	switch first.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return convertInlines(first, src)
	}
	return nil
}

func convertInlines(parent ast.Node, src []byte) []doctree.Inline {
	var b inlineBuilder
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			b.writeText(string(unescape(node.Segment.Value(src))))
			if node.HardLineBreak() {
				b.add(doctree.Break{})
			} else if node.SoftLineBreak() {
				b.writeText("\n")
			}
		case *ast.String:
			if node.IsCode() {
				b.writeText(string(node.Value))
			} else {
				b.writeText(string(unescape(node.Value)))
			}
		case *ast.Emphasis:
			children := convertInlines(node, src)
			if node.Level >= 2 {
				b.add(doctree.Strong{Children: children})
			} else {
				b.add(doctree.Emphasis{Children: children})
			}
		case *ast.CodeSpan:
			b.add(doctree.InlineCode{Value: rawText(node, src)})
		case *ast.Link:
			b.add(doctree.Link{
				URL:      string(node.Destination),
				Children: convertInlines(node, src),
			})
		case *ast.AutoLink:
			b.add(doctree.Link{
				URL:      string(node.URL(src)),
				Children: []doctree.Inline{doctree.Text{Value: string(node.Label(src))}},
			})
		case *ast.Image:
			alt := rawText(node, src)
			if alt == "" {
				alt = string(node.Title)
			}
			b.add(doctree.Image{URL: string(node.Destination), Alt: alt})
		default:
			// Raw HTML and extension inlines carry no citation data.
		}
	}
	return b.result()
}

// rawText concatenates the text segments under n without unescaping.
func rawText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(rawText(c, src))
		}
	}
	return buf.String()
}

func unescape(b []byte) []byte {
	b = util.UnescapePunctuations(b)
	b = util.ResolveNumericReferences(b)
	return util.ResolveEntityNames(b)
}

// lineIndex maps byte offsets in the source to 1-based line numbers.
type lineIndex struct {
	newlines []int
}

func newLineIndex(src []byte) *lineIndex {
	idx := &lineIndex{}
	for i, c := range src {
		if c == '\n' {
			idx.newlines = append(idx.newlines, i)
		}
	}
	return idx
}

func (l *lineIndex) line(offset int) int {
	return sort.SearchInts(l.newlines, offset) + 1
}

// blockRange returns the lines spanned by the source segments of n and its
// block descendants.
func (l *lineIndex) blockRange(n ast.Node) doctree.Position {
	start, stop := -1, -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		segs := c.Lines()
		if segs == nil || segs.Len() == 0 {
			return ast.WalkContinue, nil
		}
		first, last := segs.At(0), segs.At(segs.Len()-1)
		if start < 0 || first.Start < start {
			start = first.Start
		}
		end := last.Stop - 1
		if end < last.Start {
			end = last.Start
		}
		if end > stop {
			stop = end
		}
		return ast.WalkContinue, nil
	})
	if start < 0 {
		return doctree.Position{}
	}
	return doctree.Position{StartLine: l.line(start), EndLine: l.line(stop)}
}
