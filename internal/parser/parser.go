package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bibgest/internal/doctree"
)

// Parser converts raw document bytes into top-level blocks.
type Parser interface {
	Parse(r io.Reader) ([]doctree.Block, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// inlineBuilder merges adjacent text runs the way a markdown AST does, so a
// text node never directly follows another text node.
type inlineBuilder struct {
	nodes []doctree.Inline
	text  strings.Builder
}

func (b *inlineBuilder) writeText(s string) {
	b.text.WriteString(s)
}

func (b *inlineBuilder) add(n doctree.Inline) {
	b.flush()
	b.nodes = append(b.nodes, n)
}

func (b *inlineBuilder) flush() {
	if b.text.Len() > 0 {
		b.nodes = append(b.nodes, doctree.Text{Value: b.text.String()})
		b.text.Reset()
	}
}

func (b *inlineBuilder) result() []doctree.Inline {
	b.flush()
	return b.nodes
}
