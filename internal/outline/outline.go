package outline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/dgallion1/bibgest/internal/inline"
)

// indexHeading marks table-of-contents headings, which carry no entries.
const indexHeading = "Index"

var errNoSection = errors.New("no enclosing section")

// EntryParser turns one list item into a citation entry.
type EntryParser interface {
	Parse(item []doctree.Inline) (doctree.Entry, error)
}

// Build walks the top-level blocks of a document and groups list entries
// under the depth-3 sections and depth-4 subsections that precede them.
// Blocks up to and including the second depth-3 heading form the document's
// index and are skipped. A block that fails is recorded as a ParseError and
// the walk continues with the next block.
func Build(blocks []doctree.Block, p EntryParser) ([]doctree.Section, []doctree.ParseError) {
	o := &outliner{parser: p, sections: []doctree.Section{}}
	for _, blk := range blocks[contentStart(blocks):] {
		for _, err := range o.apply(blk) {
			pos := blk.Position()
			o.errors = append(o.errors, doctree.ParseError{
				StartLine: pos.StartLine,
				EndLine:   pos.EndLine,
				Message:   err.Error(),
			})
		}
	}
	return o.sections, o.errors
}

// contentStart returns the index of the first block after the second
// depth-3 heading, or len(blocks) when there are fewer than two.
func contentStart(blocks []doctree.Block) int {
	count := 0
	for i, blk := range blocks {
		if h, ok := blk.(doctree.Heading); ok && h.Depth == 3 {
			count++
			if count == 2 {
				return i + 1
			}
		}
	}
	return len(blocks)
}

type outliner struct {
	parser   EntryParser
	sections []doctree.Section
	errors   []doctree.ParseError
	// inSubsection is true when the last heading seen was depth 4.
	inSubsection bool
}

// apply folds one block into the outline and returns the faults it produced.
func (o *outliner) apply(blk doctree.Block) []error {
	switch b := blk.(type) {
	case doctree.Heading:
		if err := o.heading(b); err != nil {
			return []error{err}
		}
	case doctree.List:
		return o.list(b)
	}
	return nil
}

func (o *outliner) heading(h doctree.Heading) error {
	name := inline.RenderLenient(h.Content)
	if name == indexHeading {
		return nil
	}
	switch h.Depth {
	case 3:
		o.sections = append(o.sections, doctree.Section{
			Name:        name,
			Entries:     []doctree.Entry{},
			Subsections: []doctree.Subsection{},
		})
		o.inSubsection = false
	case 4:
		if len(o.sections) == 0 {
			return fmt.Errorf("subsection %q: %w", name, errNoSection)
		}
		last := &o.sections[len(o.sections)-1]
		last.Subsections = append(last.Subsections, doctree.Subsection{
			Name:    name,
			Entries: []doctree.Entry{},
		})
		o.inSubsection = true
	}
	return nil
}

func (o *outliner) list(l doctree.List) []error {
	if len(o.sections) == 0 {
		return []error{fmt.Errorf("list: %w", errNoSection)}
	}
	section := &o.sections[len(o.sections)-1]
	target := &section.Entries
	if o.inSubsection {
		subs := section.Subsections
		target = &subs[len(subs)-1].Entries
	}

	var errs []error
	for i, item := range l.Items {
		entry, err := o.parser.Parse(item.Content)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i+1, err))
			continue
		}
		*target = append(*target, entry)
	}
	return errs
}
