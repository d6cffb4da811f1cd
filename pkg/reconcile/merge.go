package reconcile

import (
	"slices"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Merge sorts the recognized words into reading order and returns the
// structural boxes no recognized word covers. A structural box is covered
// when cmp reports it equal to a recognized box, that is when the two overlap
// on both axes. Neither input is modified.
func Merge(recognized []geom.Word, structural []geom.Box, cmp geom.Comparator) (merged []geom.Word, missed []geom.Box) {
	if cmp == nil {
		cmp = geom.Compare
	}
	merged = slices.Clone(recognized)
	geom.SortWords(merged, cmp)

	for _, b := range structural {
		covered := slices.ContainsFunc(merged, func(w geom.Word) bool {
			return cmp(b, w.Box) == 0
		})
		if !covered {
			missed = append(missed, b)
		}
	}
	geom.SortBoxes(missed, cmp)
	return merged, missed
}

// Insert adds words to a merged set and restores reading order.
func Insert(merged []geom.Word, cmp geom.Comparator, words ...geom.Word) []geom.Word {
	out := make([]geom.Word, 0, len(merged)+len(words))
	out = append(out, merged...)
	out = append(out, words...)
	geom.SortWords(out, cmp)
	return out
}

// Assignment is the text chosen for each structural box.
type Assignment struct {
	Texts     []string    // per structural box, empty when unresolved
	Italic    []bool      // per structural box, set when an assigned word is italic
	Exact     int         // boxes matched by an identical recognized box
	Contained int         // boxes filled by the containment pass
	Orphans   []geom.Word // merged words no box took
}

// Assign gives every structural box its text. A merged word whose box equals
// a structural box goes to that box; the rest form a pool. Each box still
// without text then takes every pool word it contains, or that cmp reports
// equal to it, concatenated left to right.
func Assign(boxes []geom.Box, merged []geom.Word, cmp geom.Comparator) Assignment {
	if cmp == nil {
		cmp = geom.Compare
	}
	a := Assignment{Texts: make([]string, len(boxes)), Italic: make([]bool, len(boxes))}
	taken := make([]bool, len(boxes))

	var pool []geom.Word
	for _, w := range merged {
		i := slices.IndexFunc(boxes, func(b geom.Box) bool { return b == w.Box })
		for i >= 0 && taken[i] {
			next := slices.IndexFunc(boxes[i+1:], func(b geom.Box) bool { return b == w.Box })
			if next < 0 {
				i = -1
				break
			}
			i += next + 1
		}
		if i < 0 || w.Text == "" {
			pool = append(pool, w)
			continue
		}
		a.Texts[i] = w.Text
		a.Italic[i] = w.Italic
		taken[i] = true
		a.Exact++
	}

	for i, b := range boxes {
		if taken[i] || len(pool) == 0 {
			continue
		}
		var inside, rest []geom.Word
		for _, w := range pool {
			if w.Text != "" && (b.Contains(w.Box) || cmp(b, w.Box) == 0) {
				inside = append(inside, w)
			} else {
				rest = append(rest, w)
			}
		}
		if len(inside) == 0 {
			continue
		}
		a.Texts[i] = geom.JoinLeftToRight(inside)
		a.Italic[i] = slices.ContainsFunc(inside, func(w geom.Word) bool { return w.Italic })
		taken[i] = true
		a.Contained++
		pool = rest
	}

	for _, w := range pool {
		if w.Text != "" {
			a.Orphans = append(a.Orphans, w)
		}
	}
	return a
}
