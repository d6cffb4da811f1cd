// Package layout provides the recognizer-free structural pass: word geometry
// without text, used as a recall safety net for the recognizer.
package layout

import (
	"context"
	"image"
	"image/color"
	"slices"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Analyzer returns word boxes for a region of a raster. Boxes are relative to
// region.Min and share the raster's coordinate space and resolution.
type Analyzer interface {
	WordsFor(ctx context.Context, img image.Image, region image.Rectangle) ([]geom.Box, error)
}

// Config tunes the projection analyzer
type Config struct {
	DarkThreshold uint8   // luma below which a pixel counts as ink
	MinRowInk     int     // dark pixels a row needs to belong to a text band
	WordGap       float64 // column gap, relative to band height, that splits words
	MinWordWidth  int     // narrower runs are treated as noise
	MinLineHeight int     // thinner bands are treated as noise
}

// DefaultConfig returns settings suited to 300 DPI scans
func DefaultConfig() Config {
	return Config{
		DarkThreshold: 160,
		MinRowInk:     1,
		WordGap:       0.35,
		MinWordWidth:  2,
		MinLineHeight: 3,
	}
}

// ProjectionAnalyzer finds text lines from the row ink profile and splits
// each line into words at column gaps wider than a fraction of its height.
type ProjectionAnalyzer struct {
	cfg Config
}

// NewProjectionAnalyzer creates an analyzer, filling unset fields from DefaultConfig.
func NewProjectionAnalyzer(cfg Config) *ProjectionAnalyzer {
	def := DefaultConfig()
	if cfg.DarkThreshold == 0 {
		cfg.DarkThreshold = def.DarkThreshold
	}
	if cfg.MinRowInk <= 0 {
		cfg.MinRowInk = def.MinRowInk
	}
	if cfg.WordGap <= 0 {
		cfg.WordGap = def.WordGap
	}
	if cfg.MinWordWidth <= 0 {
		cfg.MinWordWidth = def.MinWordWidth
	}
	if cfg.MinLineHeight <= 0 {
		cfg.MinLineHeight = def.MinLineHeight
	}
	return &ProjectionAnalyzer{cfg: cfg}
}

// WordsFor implements Analyzer.
func (p *ProjectionAnalyzer) WordsFor(ctx context.Context, img image.Image, region image.Rectangle) ([]geom.Box, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, nil
	}
	ink := p.inkMask(img, region)
	w, h := region.Dx(), region.Dy()

	rowInk := make([]int, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ink[y*w+x] {
				rowInk[y]++
			}
		}
	}

	var boxes []geom.Box
	for _, band := range runs(rowInk, p.cfg.MinRowInk, 0) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if band[1]-band[0] < p.cfg.MinLineHeight {
			continue
		}
		boxes = append(boxes, p.splitBand(ink, w, band[0], band[1])...)
	}
	return boxes, nil
}

// splitBand cuts the rows [top, bottom) into words and tightens each word
// vertically to its own ink.
func (p *ProjectionAnalyzer) splitBand(ink []bool, w, top, bottom int) []geom.Box {
	colInk := make([]int, w)
	for y := top; y < bottom; y++ {
		for x := 0; x < w; x++ {
			if ink[y*w+x] {
				colInk[x]++
			}
		}
	}
	gap := max(1, int(p.cfg.WordGap*float64(bottom-top)+0.5))

	var boxes []geom.Box
	for _, run := range runs(colInk, 1, gap) {
		left, right := run[0], run[1]
		if right-left < p.cfg.MinWordWidth {
			continue
		}
		wordTop, wordBottom := bottom, top
		for y := top; y < bottom; y++ {
			for x := left; x < right; x++ {
				if ink[y*w+x] {
					wordTop = min(wordTop, y)
					wordBottom = max(wordBottom, y+1)
					break
				}
			}
		}
		if wordBottom <= wordTop {
			continue
		}
		boxes = append(boxes, geom.Box{Left: left, Top: wordTop, Right: right, Bottom: wordBottom})
	}
	return boxes
}

// inkMask thresholds the region into a row-major mask.
func (p *ProjectionAnalyzer) inkMask(img image.Image, region image.Rectangle) []bool {
	w := region.Dx()
	mask := make([]bool, w*region.Dy())
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			mask[(y-region.Min.Y)*w+(x-region.Min.X)] = isInk(img.At(x, y), p.cfg.DarkThreshold)
		}
	}
	return mask
}

func isInk(c color.Color, threshold uint8) bool {
	g := color.GrayModel.Convert(c).(color.Gray)
	_, _, _, a := c.RGBA()
	return a != 0 && g.Y < threshold
}

// runs returns half-open intervals where profile[i] >= minValue. Intervals
// separated by fewer than bridge empty positions are joined.
func runs(profile []int, minValue, bridge int) [][2]int {
	var out [][2]int
	start := -1
	for i, v := range profile {
		switch {
		case v >= minValue && start < 0:
			start = i
		case v < minValue && start >= 0:
			out = append(out, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(profile)})
	}
	if bridge <= 0 || len(out) < 2 {
		return out
	}

	joined := out[:1]
	for _, r := range out[1:] {
		last := &joined[len(joined)-1]
		if r[0]-last[1] < bridge {
			last[1] = r[1]
			continue
		}
		joined = append(joined, r)
	}
	return joined
}

// GroupLines groups word boxes into lines: a box joins the current line when
// it overlaps the line's vertical extent. Lines come out top to bottom, words
// left to right. The input slice is not modified.
func GroupLines(boxes []geom.Box) [][]geom.Box {
	if len(boxes) == 0 {
		return nil
	}
	sorted := slices.Clone(boxes)
	slices.SortStableFunc(sorted, func(a, b geom.Box) int {
		if a.Top != b.Top {
			return a.Top - b.Top
		}
		return a.Left - b.Left
	})

	var lines [][]geom.Box
	var current []geom.Box
	var extent geom.Box
	for _, b := range sorted {
		if len(current) > 0 && b.OverlapsY(extent) {
			current = append(current, b)
			extent = extent.Union(b)
			continue
		}
		if len(current) > 0 {
			lines = append(lines, current)
		}
		current = []geom.Box{b}
		extent = b
	}
	lines = append(lines, current)

	for _, line := range lines {
		slices.SortStableFunc(line, func(a, b geom.Box) int { return a.Left - b.Left })
	}
	return lines
}
