// Package overlay renders a reconciled page as a searchable PDF.
//
// The page raster fills a single PDF page whose size matches the raster in
// points, and every resolved word is drawn as invisible text over its box on
// a toggleable layer. In debug mode the text is drawn visibly: corrected words
// in blue, the rest in red, and unresolved words as an outlined box.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"codeberg.org/go-pdf/fpdf"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/reconcile"
)

// Stats counts what was drawn onto the text layer.
type Stats struct {
	Words          int
	Missing        int
	EncodingErrors int
}

// Render writes a one page PDF with the page raster and a text layer built
// from the word nodes below page.
func Render(w io.Writer, img image.Image, page *reconcile.Node, cfg Config, log logrus.FieldLogger) (Stats, error) {
	if img == nil || img.Bounds().Empty() {
		return Stats{}, errors.New("overlay: empty page raster")
	}
	if page == nil {
		return Stats{}, errors.New("overlay: no page tree")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Font.Name == "" {
		cfg.Font = DefaultFont
	}
	if cfg.LayerName == "" {
		cfg.LayerName = DefaultConfig().LayerName
	}
	log = log.WithField("component", "overlay")

	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return Stats{}, fmt.Errorf("failed to encode page raster: %w", err)
	}

	bounds := img.Bounds()
	wd, ht := float64(bounds.Dx()), float64(bounds.Dy())
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: wd, Ht: ht})

	opts := fpdf.ImageOptions{ReadDpi: false, ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("page", opts, &raster)
	pdf.ImageOptions("page", 0, 0, wd, ht, false, opts, 0, "")

	// word boxes are in raster coordinates
	origin := bounds.Min
	transform := func(x, y int) (float64, float64) {
		return float64(x - origin.X), float64(y - origin.Y)
	}

	stats := drawTextLayer(pdf, page, cfg, transform)
	if stats.Words > 0 && stats.EncodingErrors > stats.Words/10 {
		log.WithFields(logrus.Fields{
			"errors": stats.EncodingErrors,
			"words":  stats.Words,
		}).Warn("Character encoding issues in text layer")
	}

	if err := pdf.Output(w); err != nil {
		return stats, fmt.Errorf("failed to generate PDF: %w", err)
	}
	log.WithFields(logrus.Fields{
		"words":   stats.Words,
		"missing": stats.Missing,
	}).Debug("Overlay written")
	return stats, nil
}

// drawTextLayer draws the word nodes onto a layer of the current page.
func drawTextLayer(pdf *fpdf.Fpdf, page *reconcile.Node, cfg Config, transform func(x, y int) (float64, float64)) Stats {
	layer := pdf.AddLayer(cfg.LayerName, true)
	pdf.BeginLayer(layer)
	defer pdf.EndLayer()

	pdf.SetFont(cfg.Font.Name, cfg.Font.Style, cfg.Font.Size)
	if !cfg.Debug {
		pdf.SetAlpha(0.0, "Normal") // hide text from normal view
	}

	var stats Stats
	for _, word := range page.Words() {
		if word.Missing || word.Text == "" {
			stats.Missing++
			if cfg.Debug {
				x, y := transform(word.Box.Left, word.Box.Top)
				pdf.SetDrawColor(255, 0, 0)
				pdf.Rect(x, y, float64(word.Box.Width()), float64(word.Box.Height()), "D")
			}
			continue
		}
		stats.Words++
		if cfg.Debug {
			if word.Corrected {
				pdf.SetTextColor(0, 0, 255)
			} else {
				pdf.SetTextColor(255, 0, 0)
			}
		}
		if !drawWord(pdf, word.Text, word.Box, cfg, transform) {
			stats.EncodingErrors++
		}
	}
	return stats
}

// drawWord renders a single word scaled to the width of its box. It reports
// false when the text had to be written without Latin-1 conversion.
func drawWord(pdf *fpdf.Fpdf, text string, box geom.Box, cfg Config, transform func(x, y int) (float64, float64)) bool {
	x, y := transform(box.Left, box.Top)
	x2, _ := transform(box.Right, box.Top)
	wordWidth := x2 - x

	ok := true
	latin1, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		ok = false
		latin1 = text // fallback to raw text
	}

	strWidth := pdf.GetStringWidth(latin1)
	if strWidth > 0 && wordWidth > 0 {
		pdf.SetFontSize(cfg.Font.Size * wordWidth / strWidth)
	}

	fontSize, _ := pdf.GetFontSize()
	pdf.Text(x, y+fontSize*cfg.Font.AscentRatio, latin1)
	pdf.SetFontSize(cfg.Font.Size)

	if cfg.Debug {
		pdf.SetDrawColor(0, 160, 0)
		pdf.Rect(x, y, wordWidth, float64(box.Height()), "D")
	}
	return ok
}
