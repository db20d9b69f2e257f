package citation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/dgallion1/bibgest/internal/inline"
	"github.com/dgallion1/bibgest/internal/relator"
)

// authorLeadIn opens an author list in the annotation text after a link.
const authorLeadIn = " - "

var (
	// ErrEmptyItem is returned for a list item with no inline content.
	ErrEmptyItem = errors.New("empty list item")
	// ErrNoReference is returned when a list item does not start with a link.
	ErrNoReference = errors.New("list item does not start with a link")
)

// Parser turns list items into citation entries. It holds no per-item state
// and may be shared between goroutines.
type Parser struct {
	relators *relator.Registry
}

// NewParser returns a parser that validates role annotations against reg.
// reg must not be nil.
func NewParser(reg *relator.Registry) *Parser {
	return &Parser{relators: reg}
}

// state is either scanning or accumulating.
type state interface {
	isState()
}

// scanning looks for author lists, notes, access notes and secondary links.
type scanning struct {
	insideAuthor bool
}

// accumulating collects an open parenthetical note spread over several nodes.
type accumulating struct {
	buffer string
}

func (scanning) isState()     {}
func (accumulating) isState() {}

// Parse extracts a citation entry from a list item. Only a missing or
// malformed leading link is an error; grammar problems in the annotations
// are reported through the entry's review flags.
func (p *Parser) Parse(item []doctree.Inline) (doctree.Entry, error) {
	if len(item) == 0 {
		return doctree.Entry{}, ErrEmptyItem
	}
	head, ok := item[0].(doctree.Link)
	if !ok {
		return doctree.Entry{}, fmt.Errorf("%w: got %s", ErrNoReference, kindOf(item[0]))
	}
	if head.URL == "" || len(head.Children) == 0 {
		return doctree.Entry{}, fmt.Errorf("%w: link has no url or text", ErrNoReference)
	}

	b := &builder{relators: p.relators}
	b.entry.URL = head.URL
	title, err := inline.Render(head.Children)
	if err != nil {
		title = inline.RenderLenient(head.Children)
		b.flagReview()
	}
	b.entry.Title = title

	var st state = scanning{}
	for _, n := range item[1:] {
		var halt bool
		st, halt = b.step(st, n)
		if halt {
			break
		}
	}
	b.finish(st)
	return b.entry, nil
}

type builder struct {
	relators  *relator.Registry
	entry     doctree.Entry
	author    string
	hasAuthor bool
}

func (b *builder) step(st state, n doctree.Inline) (state, bool) {
	switch s := st.(type) {
	case scanning:
		return b.scan(s, n), false
	case accumulating:
		return b.accumulate(s, n)
	}
	panic(fmt.Sprintf("citation: unknown state %T", st))
}

func (b *builder) scan(s scanning, n doctree.Inline) state {
	switch node := n.(type) {
	case doctree.Text:
		return b.scanText(s, node.Value)

	case doctree.InlineCode:
		if !s.insideAuthor {
			return s
		}
		if _, ok := b.relators.ValidateCode(node.Value); !ok {
			b.flagReview()
			b.entry.HasRelatorTermWarnings = boolPtr(true)
		}
		if !strings.HasSuffix(strings.TrimSpace(b.author), ",") {
			b.flagReview()
			b.entry.HasAuthorWarnings = boolPtr(true)
		}
		b.author += inline.Wrap(node.Value, "`")
		return s

	case doctree.Emphasis:
		content, err := inline.Render(node.Children)
		if err != nil {
			b.flagReview()
			return s
		}
		if strings.HasPrefix(content, "(") && strings.HasSuffix(content, ")") {
			access := inline.StripOuterParens(content)
			b.entry.AccessNotes = &access
			return scanning{}
		}
		return s

	case doctree.Link:
		title, err := inline.Render(node.Children)
		if err != nil {
			title = inline.RenderLenient(node.Children)
			b.flagReview()
		}
		b.entry.OtherLinks = append(b.entry.OtherLinks, doctree.OtherLink{
			Title: inline.StripOuterParens(title),
			URL:   node.URL,
		})
		return scanning{}
	}
	return s
}

func (b *builder) scanText(s scanning, text string) state {
	if rest, ok := strings.CutPrefix(text, authorLeadIn); ok {
		b.author = strings.TrimSpace(beforeParen(rest))
		b.hasAuthor = true
		s.insideAuthor = true
	} else if s.insideAuthor {
		b.author += beforeParen(text)
	}
	if strings.Contains(text, "(") {
		return b.scanNotes(text)
	}
	return s
}

// scanNotes records every complete "(...)" run in text and switches to
// accumulating when the last "(" is left open.
func (b *builder) scanNotes(text string) state {
	for {
		open := strings.IndexByte(text, '(')
		if open < 0 {
			return scanning{}
		}
		end := strings.IndexByte(text[open:], ')')
		if end < 0 {
			return accumulating{buffer: text[open+1:]}
		}
		b.addNote(text[open : open+end+1])
		text = text[open+end+1:]
	}
}

func (b *builder) accumulate(s accumulating, n doctree.Inline) (state, bool) {
	switch node := n.(type) {
	case doctree.Emphasis:
		content, err := inline.Render(node.Children)
		if err != nil {
			return b.halt(s)
		}
		s.buffer += inline.Wrap(content, "*")
		return s, false

	case doctree.Link:
		return b.halt(s)
	}

	text, err := nodeText(n)
	if err != nil {
		return b.halt(s)
	}
	end := strings.IndexByte(text, ')')
	if end < 0 {
		s.buffer += text
		return s, false
	}
	b.entry.Notes = append(b.entry.Notes, s.buffer+text[:end])
	return b.scanNotes(text[end+1:]), false
}

// halt stops the tail at a node that cannot continue an open note. The
// unterminated note is dropped.
func (b *builder) halt(accumulating) (state, bool) {
	b.flagReview()
	return scanning{}, true
}

func (b *builder) finish(st state) {
	if s, ok := st.(accumulating); ok {
		b.flagReview()
		if strings.TrimSpace(s.buffer) != "" {
			b.entry.Notes = append(b.entry.Notes, s.buffer)
		}
	}
	if b.hasAuthor {
		author := strings.TrimSpace(b.author)
		b.entry.Author = &author
		if strings.HasSuffix(author, ",") || strings.HasSuffix(author, "`") {
			b.flagReview()
			b.entry.HasAuthorWarnings = boolPtr(true)
		}
	}
}

func (b *builder) addNote(raw string) {
	b.entry.Notes = append(b.entry.Notes, inline.StripOuterParens(raw))
}

func (b *builder) flagReview() {
	b.entry.ManualReviewRequired = boolPtr(true)
}

func beforeParen(s string) string {
	before, _, _ := strings.Cut(s, "(")
	return before
}

// nodeText is the display text of a single node in a note.
func nodeText(n doctree.Inline) (string, error) {
	if t, ok := n.(doctree.Text); ok {
		return t.Value, nil
	}
	return inline.Render([]doctree.Inline{n})
}

func kindOf(n doctree.Inline) string {
	switch n.(type) {
	case doctree.Text:
		return "text"
	case doctree.Emphasis:
		return "emphasis"
	case doctree.Strong:
		return "strong"
	case doctree.InlineCode:
		return "inline code"
	case doctree.Link:
		return "link"
	case doctree.Image:
		return "image"
	case doctree.Break:
		return "break"
	}
	return fmt.Sprintf("%T", n)
}

func boolPtr(v bool) *bool { return &v }
