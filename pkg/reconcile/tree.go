package reconcile

import (
	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/hocr"
	"github.com/gardar/ocrfuse/pkg/layout"
)

// PageFromHOCR builds an annotation tree from the structure of an hOCR page:
// one block holding a line node per hOCR line and a word node per word box.
// Text is not copied, so the tree can be reconciled from scratch. Words
// outside any line are grouped into lines by position.
func PageFromHOCR(p hocr.Page) *Node {
	page := NewNode(KindPage, p.BBox)
	block := NewNode(KindBlock, p.BBox)

	for _, l := range p.Lines {
		line := NewNode(KindLine, l.BBox)
		for _, w := range l.Words {
			word := NewNode(KindWord, w.BBox)
			word.Italic = w.Italic
			if l.HasBaseline {
				word.Baseline = l.Baseline.At(l.BBox, (w.BBox.Left+w.BBox.Right)/2)
				word.HasBaseline = true
			}
			line.Add(word)
		}
		block.Add(line)
	}

	loose := make([]geom.Box, 0, len(p.Words))
	italic := make(map[geom.Box]bool)
	for _, w := range p.Words {
		loose = append(loose, w.BBox)
		if w.Italic {
			italic[w.BBox] = true
		}
	}
	for _, boxes := range layout.GroupLines(loose) {
		bounds, _ := geom.Bounds(boxes...)
		line := NewNode(KindLine, bounds)
		for _, b := range boxes {
			word := NewNode(KindWord, b)
			word.Italic = italic[b]
			line.Add(word)
		}
		block.Add(line)
	}

	if len(block.Children) > 0 {
		if bounds, ok := geom.Bounds(boxesOf(block.Children)...); ok && page.Box == (geom.Box{}) {
			page.Box = bounds
			block.Box = bounds
		}
		page.Add(block)
	}
	return page
}

func boxesOf(nodes []*Node) []geom.Box {
	out := make([]geom.Box, len(nodes))
	for i, n := range nodes {
		out[i] = n.Box
	}
	return out
}
