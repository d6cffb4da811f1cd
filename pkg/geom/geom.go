// Package geom holds the bounding-box value type shared by every stage of the
// word fusion pipeline, together with the reading-order comparator used to
// reconcile recognizer output against structural layout boxes.
//
// Boxes live in page-pixel space with the origin at the top-left corner.
// Right and Bottom are exclusive edges, matching the hOCR "bbox x0 y0 x1 y1"
// convention produced by the recognizer.
package geom

import (
	"errors"
	"fmt"
	"image"
	"slices"
)

// ErrGeometryMismatch reports an inverted or degenerate box.
var ErrGeometryMismatch = errors.New("geometry mismatch")

// Box is an axis-aligned rectangle in page-pixel coordinates.
type Box struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// NewBox builds a box and rejects inverted coordinates.
func NewBox(left, top, right, bottom int) (Box, error) {
	if right < left || bottom < top {
		return Box{}, fmt.Errorf("%w: box (%d,%d,%d,%d) is inverted", ErrGeometryMismatch, left, top, right, bottom)
	}
	return Box{Left: left, Top: top, Right: right, Bottom: bottom}, nil
}

// FromRect converts an image rectangle into a Box.
func FromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y}
}

// Rect converts the box into an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

func (b Box) Width() int  { return b.Right - b.Left }
func (b Box) Height() int { return b.Bottom - b.Top }

// Origin is the top-left corner.
func (b Box) Origin() image.Point { return image.Pt(b.Left, b.Top) }

// Degenerate reports a box with zero width or height. Such boxes cannot be
// cropped or recognized and are skipped by callers.
func (b Box) Degenerate() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Validate returns ErrGeometryMismatch for degenerate boxes.
func (b Box) Validate() error {
	if b.Degenerate() {
		return fmt.Errorf("%w: box %s has no area", ErrGeometryMismatch, b)
	}
	return nil
}

// Translate shifts the box by dx, dy.
func (b Box) Translate(dx, dy int) Box {
	return Box{Left: b.Left + dx, Top: b.Top + dy, Right: b.Right + dx, Bottom: b.Bottom + dy}
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		Left:   min(b.Left, o.Left),
		Top:    min(b.Top, o.Top),
		Right:  max(b.Right, o.Right),
		Bottom: max(b.Bottom, o.Bottom),
	}
}

// Bounds aggregates boxes into their enclosing box. It returns false for an
// empty input.
func Bounds(boxes ...Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = out.Union(b)
	}
	return out, true
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return o.Left >= b.Left && o.Right <= b.Right && o.Top >= b.Top && o.Bottom <= b.Bottom
}

// OverlapsX reports whether the horizontal extents intersect.
func (b Box) OverlapsX(o Box) bool {
	return b.Left < o.Right && o.Left < b.Right
}

// OverlapsY reports whether the vertical extents intersect.
func (b Box) OverlapsY(o Box) bool {
	return b.Top < o.Bottom && o.Top < b.Bottom
}

// Overlaps reports whether the two boxes share any area.
func (b Box) Overlaps(o Box) bool {
	return b.OverlapsX(o) && b.OverlapsY(o)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.Left, b.Top, b.Right, b.Bottom)
}

// Compare orders boxes for reading: rows before columns. A box entirely above
// another sorts first; boxes sharing a row are ordered left to right; boxes
// that overlap in both directions compare equal.
func Compare(a, b Box) int {
	if !a.OverlapsY(b) {
		if a.Bottom <= b.Top {
			return -1
		}
		return 1
	}
	if !a.OverlapsX(b) {
		if a.Right <= b.Left {
			return -1
		}
		return 1
	}
	return 0
}

// Comparator is the ordering used by the reconciliation merge.
type Comparator func(a, b Box) int

// SortBoxes sorts boxes in reading order, keeping the input order of boxes
// that compare equal.
func SortBoxes(boxes []Box, cmp Comparator) {
	if cmp == nil {
		cmp = Compare
	}
	slices.SortStableFunc(boxes, cmp)
}
