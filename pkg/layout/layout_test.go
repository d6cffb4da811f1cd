package layout

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gardar/ocrfuse/pkg/geom"
)

func pageWithInk(rects ...image.Rectangle) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 100, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	for _, r := range rects {
		draw.Draw(img, r, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	}
	return img
}

func TestProjectionAnalyzerWordsFor(t *testing.T) {
	img := pageWithInk(
		image.Rect(5, 10, 20, 20),
		image.Rect(30, 10, 50, 22),
		image.Rect(60, 10, 65, 20), // two strokes of one word
		image.Rect(67, 10, 72, 20),
		image.Rect(5, 28, 40, 35),
	)
	a := NewProjectionAnalyzer(Config{})

	tests := []struct {
		name   string
		region image.Rectangle
		want   []geom.Box
	}{
		{
			name:   "whole page",
			region: img.Bounds(),
			want: []geom.Box{
				{Left: 5, Top: 10, Right: 20, Bottom: 20},
				{Left: 30, Top: 10, Right: 50, Bottom: 22},
				{Left: 60, Top: 10, Right: 72, Bottom: 20},
				{Left: 5, Top: 28, Right: 40, Bottom: 35},
			},
		},
		{
			name:   "region local",
			region: image.Rect(25, 0, 55, 40),
			want: []geom.Box{
				{Left: 5, Top: 10, Right: 25, Bottom: 22},
				{Left: 0, Top: 28, Right: 15, Bottom: 35},
			},
		},
		{
			name:   "outside the raster",
			region: image.Rect(200, 200, 300, 300),
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.WordsFor(context.Background(), img, tt.region)
			if err != nil {
				t.Fatalf("WordsFor() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WordsFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectionAnalyzerCancelled(t *testing.T) {
	img := pageWithInk(image.Rect(5, 10, 20, 20))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProjectionAnalyzer(Config{}).WordsFor(ctx, img, img.Bounds()); err == nil {
		t.Fatal("expected context error")
	}
}

func TestGroupLines(t *testing.T) {
	boxes := []geom.Box{
		{Left: 60, Top: 31, Right: 90, Bottom: 50},
		{Left: 10, Top: 10, Right: 50, Bottom: 30},
		{Left: 10, Top: 32, Right: 50, Bottom: 50},
		{Left: 60, Top: 12, Right: 100, Bottom: 29},
	}
	want := [][]geom.Box{
		{{Left: 10, Top: 10, Right: 50, Bottom: 30}, {Left: 60, Top: 12, Right: 100, Bottom: 29}},
		{{Left: 10, Top: 32, Right: 50, Bottom: 50}, {Left: 60, Top: 31, Right: 90, Bottom: 50}},
	}
	got := GroupLines(boxes)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GroupLines() = %v, want %v", got, want)
	}
	if boxes[0] != (geom.Box{Left: 60, Top: 31, Right: 90, Bottom: 50}) {
		t.Error("input was reordered")
	}
	if GroupLines(nil) != nil {
		t.Error("expected nil for no boxes")
	}
}

func TestRuns(t *testing.T) {
	profile := []int{0, 1, 1, 0, 0, 1, 0, 1, 1}
	if got := runs(profile, 1, 0); !reflect.DeepEqual(got, [][2]int{{1, 3}, {5, 6}, {7, 9}}) {
		t.Errorf("runs() = %v", got)
	}
	if got := runs(profile, 1, 2); !reflect.DeepEqual(got, [][2]int{{1, 3}, {5, 9}}) {
		t.Errorf("bridged runs() = %v", got)
	}
}

func TestProjectionAnalyzerRenderedText(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 160, 60))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	for i, text := range []string{"John Doe", "Smith"} {
		d.Dot = fixed.P(10, 20+i*25)
		d.DrawString(text)
	}

	boxes, err := NewProjectionAnalyzer(DefaultConfig()).WordsFor(context.Background(), img, img.Bounds())
	if err != nil {
		t.Fatalf("WordsFor() error = %v", err)
	}
	lines := GroupLines(boxes)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), boxes)
	}
	if len(lines[0]) != 2 || len(lines[1]) != 1 {
		t.Errorf("words per line = %d/%d, want 2/1: %v", len(lines[0]), len(lines[1]), lines)
	}
	if lines[0][0].Left < 10 || lines[0][0].Bottom > 22 {
		t.Errorf("first word %s is outside the drawn text", lines[0][0])
	}
}
