package geom

import (
	"slices"
	"strings"
)

// Word is a piece of recognized text at a position. Baseline is the page row
// at the foot of the word's non-descending glyphs, valid when HasBaseline is
// set.
type Word struct {
	Text        string
	Box         Box
	Baseline    int
	HasBaseline bool
	Italic      bool
}

// Translate shifts the word and its baseline.
func (w Word) Translate(dx, dy int) Word {
	w.Box = w.Box.Translate(dx, dy)
	if w.HasBaseline {
		w.Baseline += dy
	}
	return w
}

// SortWords sorts words in reading order by their boxes.
func SortWords(words []Word, cmp Comparator) {
	if cmp == nil {
		cmp = Compare
	}
	slices.SortStableFunc(words, func(a, b Word) int { return cmp(a.Box, b.Box) })
}

// Boxes returns the boxes of words in order.
func Boxes(words []Word) []Box {
	out := make([]Box, len(words))
	for i, w := range words {
		out[i] = w.Box
	}
	return out
}

// JoinLeftToRight concatenates word text ordered by left edge.
func JoinLeftToRight(words []Word) string {
	ordered := slices.Clone(words)
	slices.SortStableFunc(ordered, func(a, b Word) int { return a.Box.Left - b.Box.Left })
	var sb strings.Builder
	for _, w := range ordered {
		sb.WriteString(w.Text)
	}
	return sb.String()
}
