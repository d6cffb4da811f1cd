package geom

import (
	"errors"
	"testing"
)

func TestNewBox(t *testing.T) {
	if _, err := NewBox(10, 10, 5, 20); !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("expected ErrGeometryMismatch for inverted box, got %v", err)
	}
	b, err := NewBox(1, 2, 3, 4)
	if err != nil {
		t.Fatalf("NewBox() error = %v", err)
	}
	if b.Width() != 2 || b.Height() != 2 {
		t.Fatalf("unexpected size %dx%d", b.Width(), b.Height())
	}
	zero := Box{Left: 5, Top: 5, Right: 5, Bottom: 9}
	if !zero.Degenerate() || zero.Validate() == nil {
		t.Fatalf("zero-width box should be degenerate")
	}
}

func TestCompare(t *testing.T) {
	john := Box{10, 10, 50, 30}
	doe := Box{60, 10, 100, 30}
	below := Box{10, 40, 50, 60}
	span := Box{10, 10, 100, 30}

	tests := []struct {
		name string
		a, b Box
		want int
	}{
		{"same row left first", john, doe, -1},
		{"same row right after", doe, john, 1},
		{"upper row first", doe, below, -1},
		{"lower row after", below, john, 1},
		{"overlap is equal", span, john, 0},
		{"identical is equal", john, john, 0},
		{"touching rows do not overlap", Box{0, 0, 10, 10}, Box{0, 10, 10, 20}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompareTotalAndTransitiveOnGrid(t *testing.T) {
	var boxes []Box
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			boxes = append(boxes, Box{col * 30, row * 20, col*30 + 25, row*20 + 15})
		}
	}
	for _, a := range boxes {
		for _, b := range boxes {
			ab, ba := Compare(a, b), Compare(b, a)
			if a == b {
				if ab != 0 {
					t.Fatalf("Compare(%s, %s) = %d, want 0", a, b, ab)
				}
				continue
			}
			if ab == 0 || ab != -ba {
				t.Fatalf("comparator not total/antisymmetric for %s, %s: %d, %d", a, b, ab, ba)
			}
			for _, c := range boxes {
				if ab < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Fatalf("comparator not transitive for %s < %s < %s", a, b, c)
				}
			}
		}
	}
}

func TestSortBoxesReadingOrder(t *testing.T) {
	boxes := []Box{
		{60, 40, 100, 60},
		{60, 10, 100, 30},
		{10, 40, 50, 60},
		{10, 10, 50, 30},
	}
	SortBoxes(boxes, nil)
	want := []Box{{10, 10, 50, 30}, {60, 10, 100, 30}, {10, 40, 50, 60}, {60, 40, 100, 60}}
	for i := range want {
		if boxes[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, boxes[i], want[i])
		}
	}
}

func TestBoundsAndContains(t *testing.T) {
	if _, ok := Bounds(); ok {
		t.Fatalf("Bounds() of nothing should report false")
	}
	u, ok := Bounds(Box{10, 10, 50, 30}, Box{60, 12, 100, 35})
	if !ok || u != (Box{10, 10, 100, 35}) {
		t.Fatalf("unexpected union %s", u)
	}
	if !u.Contains(Box{10, 10, 50, 30}) {
		t.Fatalf("union should contain its parts")
	}
	if u.Contains(Box{5, 10, 50, 30}) {
		t.Fatalf("box sticking out must not be contained")
	}
}

func TestJoinLeftToRight(t *testing.T) {
	words := []Word{
		{Text: "Doe", Box: Box{60, 10, 100, 30}},
		{Text: "John", Box: Box{10, 10, 50, 30}},
	}
	if got := JoinLeftToRight(words); got != "JohnDoe" {
		t.Fatalf("JoinLeftToRight() = %q", got)
	}
	if words[0].Text != "Doe" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestWordTranslate(t *testing.T) {
	w := Word{Text: "a", Box: Box{0, 0, 10, 10}, Baseline: 8, HasBaseline: true}
	got := w.Translate(5, 7)
	if got.Box != (Box{5, 7, 15, 17}) || got.Baseline != 15 {
		t.Fatalf("unexpected translation %+v", got)
	}
}
