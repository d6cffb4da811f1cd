package hocr

import (
	"strings"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Words flattens the document into positioned words in document order.
// Words inside a line with a baseline carry the baseline row at their
// horizontal centre.
func (d Document) Words() []geom.Word {
	var out []geom.Word
	for _, page := range d.Pages {
		for _, line := range page.Lines {
			for _, w := range line.Words {
				gw := geom.Word{Text: w.Text, Box: w.BBox, Italic: w.Italic}
				if line.HasBaseline {
					center := (w.BBox.Left + w.BBox.Right) / 2
					gw.Baseline = line.Baseline.At(line.BBox, center)
					gw.HasBaseline = true
				}
				out = append(out, gw)
			}
		}
		for _, w := range page.Words {
			out = append(out, geom.Word{Text: w.Text, Box: w.BBox, Italic: w.Italic})
		}
	}
	return out
}

// Text returns the recognized text, one line per hOCR line and a blank line
// between pages.
func (d Document) Text() string {
	var builder strings.Builder
	for i, page := range d.Pages {
		if i > 0 {
			builder.WriteString("\n")
		}
		for _, line := range page.Lines {
			for j, word := range line.Words {
				if j > 0 {
					builder.WriteString(" ")
				}
				builder.WriteString(word.Text)
			}
			builder.WriteString("\n")
		}
	}
	return builder.String()
}
