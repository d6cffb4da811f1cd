package hocr

import (
	"math"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Document is a parsed recognizer result
type Document struct {
	Metadata map[string]string // ocr-system and friends from the head section
	Pages    []Page
}

// Page corresponds to an element with class 'ocr_page'
type Page struct {
	ID    string
	BBox  geom.Box
	Lines []Line
	Words []Word // words found outside any line
}

// Line corresponds to an element with class 'ocr_line' (or one of the other
// line-like classes: ocr_caption, ocr_header, ocr_textfloat)
type Line struct {
	ID          string
	BBox        geom.Box
	Baseline    Baseline
	HasBaseline bool
	Words       []Word
}

// Baseline is the hOCR 'baseline slope offset' property. The baseline passes
// through (Left, Bottom+Offset) of the line box with the given slope.
type Baseline struct {
	Slope  float64
	Offset float64
}

// At returns the page row of the baseline at column x for a line box.
func (b Baseline) At(line geom.Box, x int) int {
	y := float64(line.Bottom) + b.Offset + b.Slope*float64(x-line.Left)
	return int(math.Round(y))
}

// Word corresponds to an element with class 'ocrx_word'
type Word struct {
	ID         string
	Text       string
	BBox       geom.Box
	Confidence float64 // x_wconf, 0-100
	Italic     bool    // text wrapped in <em> or <i>
}
