package inline

import (
	"fmt"
	"strings"

	"github.com/dgallion1/bibgest/internal/doctree"
)

// UnsupportedError is returned by Render for node kinds that have no display form.
type UnsupportedError struct {
	Kind string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported inline node: %s", e.Kind)
}

// Render flattens inline nodes into a markdown display string. A nested link
// is rejected with *UnsupportedError.
func Render(nodes []doctree.Inline) (string, error) {
	var sb strings.Builder
	if err := render(&sb, nodes, true); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderLenient is Render that silently skips links. Used for heading text.
func RenderLenient(nodes []doctree.Inline) string {
	var sb strings.Builder
	_ = render(&sb, nodes, false)
	return sb.String()
}

func render(sb *strings.Builder, nodes []doctree.Inline, strict bool) error {
	for _, n := range nodes {
		switch node := n.(type) {
		case doctree.Text:
			sb.WriteString(node.Value)
		case doctree.InlineCode:
			sb.WriteString(Wrap(node.Value, "`"))
		case doctree.Emphasis:
			sb.WriteString("_")
			if err := render(sb, node.Children, strict); err != nil {
				return err
			}
			sb.WriteString("_")
		case doctree.Strong:
			sb.WriteString("**")
			if err := render(sb, node.Children, strict); err != nil {
				return err
			}
			sb.WriteString("**")
		case doctree.Image:
			sb.WriteString("![" + node.Alt + "](" + node.URL + ")")
		case doctree.Break:
			sb.WriteString("\n")
		case doctree.Link:
			if strict {
				return &UnsupportedError{Kind: "link"}
			}
		default:
			if strict {
				return &UnsupportedError{Kind: fmt.Sprintf("%T", n)}
			}
		}
	}
	return nil
}

// StripOuterParens returns the interior of s when it is wrapped in a single
// pair of parentheses, and s unchanged otherwise.
func StripOuterParens(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return s[1 : len(s)-1]
	}
	return s
}

// Wrap surrounds s with token on both sides.
func Wrap(s, token string) string {
	return token + s + token
}
