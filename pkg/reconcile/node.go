package reconcile

import (
	"strings"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Kind is the level of a node in the page annotation tree.
type Kind int

const (
	KindPage Kind = iota
	KindBlock
	KindLine
	KindWord
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindBlock:
		return "block"
	case KindLine:
		return "line"
	default:
		return "word"
	}
}

// MissingText stands in for an unresolved word when a tree is rendered.
const MissingText = "[?]"

// Node is an element of the page annotation tree. Only word nodes carry
// text. Box is in page coordinates.
type Node struct {
	Kind     Kind
	Box      geom.Box
	Children []*Node

	Text      string // accepted, corrected text
	Original  string // recognizer text before correction
	Corrected bool
	Missing   bool // no text could be assigned
	Italic    bool

	Baseline    int
	HasBaseline bool
}

// NewNode creates a node without children.
func NewNode(kind Kind, box geom.Box) *Node {
	return &Node{Kind: kind, Box: box}
}

// Add appends children and returns n.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Words returns the word nodes below n in tree order, n itself if it is a word.
func (n *Node) Words() []*Node {
	var out []*Node
	n.walk(func(c *Node) {
		if c.Kind == KindWord {
			out = append(out, c)
		}
	})
	return out
}

// Lines returns the line nodes below n in tree order, n itself if it is a line.
func (n *Node) Lines() []*Node {
	var out []*Node
	n.walk(func(c *Node) {
		if c.Kind == KindLine {
			out = append(out, c)
		}
	})
	return out
}

// Blocks returns the block nodes below n in tree order.
func (n *Node) Blocks() []*Node {
	var out []*Node
	n.walk(func(c *Node) {
		if c.Kind == KindBlock {
			out = append(out, c)
		}
	})
	return out
}

// MissingCount is the number of word nodes still marked missing.
func (n *Node) MissingCount() int {
	count := 0
	for _, w := range n.Words() {
		if w.Missing {
			count++
		}
	}
	return count
}

// Render returns the text below n, one line of text per line node, with
// MissingText in place of unresolved words.
func (n *Node) Render() string {
	var sb strings.Builder
	lines := n.Lines()
	if len(lines) == 0 && n.Kind == KindWord {
		lines = []*Node{NewNode(KindLine, n.Box).Add(n)}
	}
	for _, line := range lines {
		words := line.Words()
		for i, w := range words {
			if i > 0 {
				sb.WriteByte(' ')
			}
			switch {
			case w.Missing:
				sb.WriteString(MissingText)
			default:
				sb.WriteString(w.Text)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// reset clears the annotations derived by a previous reconciliation.
func (n *Node) reset() {
	n.Text = ""
	n.Original = ""
	n.Corrected = false
	n.Missing = false
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// geomWord converts a word node for the baseline estimator.
func (n *Node) geomWord() geom.Word {
	return geom.Word{Text: n.Text, Box: n.Box, Baseline: n.Baseline, HasBaseline: n.HasBaseline, Italic: n.Italic}
}
