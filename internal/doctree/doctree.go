package doctree

import "fmt"

// Position is the 1-based source line range of a block. Zero when the
// source format carries no line information.
type Position struct {
	StartLine int
	EndLine   int
}

// Inline is one unit of formatted text content. The set of kinds is closed:
// only the types in this package implement it.
type Inline interface {
	inline()
}

type (
	// Text is a run of plain text.
	Text struct{ Value string }
	// Emphasis is a run of emphasized content.
	Emphasis struct{ Children []Inline }
	// Strong is a run of strongly emphasized content.
	Strong struct{ Children []Inline }
	// InlineCode is a code span.
	InlineCode struct{ Value string }
	// Link is a hyperlink with inline content.
	Link struct {
		URL      string
		Children []Inline
	}
	// Image is an inline image reference.
	Image struct {
		URL string
		Alt string
	}
	// Break is a hard line break.
	Break struct{}
)

func (Text) inline()       {}
func (Emphasis) inline()   {}
func (Strong) inline()     {}
func (InlineCode) inline() {}
func (Link) inline()       {}
func (Image) inline()      {}
func (Break) inline()      {}

// Block is a top-level structural unit of a document.
type Block interface {
	Position() Position
}

// Heading is a section heading.
type Heading struct {
	Depth   int
	Content []Inline
	Pos     Position
}

// List is a block-level list.
type List struct {
	Items []ListItem
	Pos   Position
}

// Opaque is any block kind the outline builder ignores (paragraphs, code, html, ...).
type Opaque struct {
	Kind string
	Pos  Position
}

func (h Heading) Position() Position { return h.Pos }
func (l List) Position() Position    { return l.Pos }
func (o Opaque) Position() Position  { return o.Pos }

// ListItem is the inline content of one list entry. By convention Content[0]
// is the primary resource link and the rest is free-form annotation.
type ListItem struct {
	Content []Inline
	Pos     Position
}

// OtherLink is a secondary link found in an entry's annotations.
type OtherLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Entry is the structured citation extracted from one list item. Optional
// fields are nil when not detected.
type Entry struct {
	URL                    string      `json:"url"`
	Title                  string      `json:"title"`
	Author                 *string     `json:"author,omitempty"`
	AccessNotes            *string     `json:"accessNotes,omitempty"`
	Notes                  []string    `json:"notes,omitempty"`
	OtherLinks             []OtherLink `json:"otherLinks,omitempty"`
	ManualReviewRequired   *bool       `json:"manualReviewRequired,omitempty"`
	HasAuthorWarnings      *bool       `json:"hasAuthorWarnings,omitempty"`
	HasRelatorTermWarnings *bool       `json:"hasRelatorTermWarnings,omitempty"`
}

// Section is a depth-3 heading with its entries and subsections.
type Section struct {
	Name        string       `json:"section"`
	Entries     []Entry      `json:"entries"`
	Subsections []Subsection `json:"subsections"`
}

// Subsection is a depth-4 heading nested under a Section.
type Subsection struct {
	Name    string  `json:"section"`
	Entries []Entry `json:"entries"`
}

// ParseError records a block that failed to parse.
type ParseError struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Message   string `json:"message"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d - line %d: %s", e.StartLine, e.EndLine, e.Message)
}

// Language identifies the locale of a document.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Document is the parsed form of one bibliography file.
type Document struct {
	Language Language       `json:"language"`
	Index    map[string]any `json:"index"`
	Sections []Section      `json:"sections"`
}

// EntryCount returns the number of entries across all sections and
// subsections.
func (d Document) EntryCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Entries)
		for _, sub := range s.Subsections {
			n += len(sub.Entries)
		}
	}
	return n
}

// Directory groups the documents of one media type.
type Directory struct {
	Type     string         `json:"type"`
	Index    map[string]any `json:"index"`
	Children []Document     `json:"children"`
}

// Root is the top of the catalog tree.
type Root struct {
	Type     string      `json:"type"`
	Children []Directory `json:"children"`
}

// FileErrors lists the parse errors of a single file.
type FileErrors struct {
	File   string       `json:"file"`
	Errors []ParseError `json:"errors"`
}

// DirectoryErrors lists the files with errors in one directory.
type DirectoryErrors struct {
	Directory string       `json:"directory"`
	Files     []FileErrors `json:"files"`
}

// ErrorLog is the top of the error report.
type ErrorLog struct {
	Type        string            `json:"type"`
	Directories []DirectoryErrors `json:"directories"`
}
