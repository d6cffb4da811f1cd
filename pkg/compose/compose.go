// Package compose builds synthetic rasters for targeted re-recognition.
//
// A line strip pastes the pixels of each word next to each other on a white
// canvas, with a reserved separator glyph sequence drawn between neighbours so
// the recognizer keeps the original word segmentation. Words are lined up on
// the common baseline using the per-word shifts of the baseline estimator, and
// italic words are sheared upright row by row.
package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gardar/ocrfuse/pkg/baseline"
	"github.com/gardar/ocrfuse/pkg/geom"
)

// Config holds the compositor settings
type Config struct {
	DPI        float64 // resolution of the source raster
	MinGap     float64 // smallest gap around a separator, in inches
	MaxGap     float64 // largest gap around a separator, in inches
	Separator  string  // glyphs drawn between words
	Marker     string  // glyphs prepended for the empty-result retry
	ShearAngle float64 // italic shear in degrees
	Margin     int     // white border in pixels
}

// DefaultConfig returns settings for 300 DPI scans
func DefaultConfig() Config {
	return Config{
		DPI:        300,
		MinGap:     0.04,
		MaxGap:     0.2,
		Separator:  "XQX",
		Marker:     "XQX",
		ShearAngle: 12,
		Margin:     10,
	}
}

// Word is one word to paste: the pixels inside Box taken from Image.
type Word struct {
	Image  image.Image
	Box    geom.Box
	Italic bool
}

// Strip is a composited raster. Boxes holds the target rectangle of each word
// inside Image, in input order. Overflow counts pixel writes that fell outside
// the canvas and were dropped.
type Strip struct {
	Image    *image.Gray
	Boxes    []geom.Box
	Overflow int
}

// Compositor renders strips. It is safe for concurrent use.
type Compositor struct {
	cfg  Config
	font *opentype.Font
	log  logrus.FieldLogger
}

// NewCompositor parses the separator font and fills unset config fields.
func NewCompositor(cfg Config, log logrus.FieldLogger) (*Compositor, error) {
	def := DefaultConfig()
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	if cfg.MaxGap < cfg.MinGap {
		cfg.MaxGap = max(def.MaxGap, cfg.MinGap)
	}
	if cfg.Separator == "" {
		cfg.Separator = def.Separator
	}
	if cfg.Marker == "" {
		cfg.Marker = def.Marker
	}
	if cfg.Margin < 0 {
		cfg.Margin = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse separator font: %w", err)
	}
	return &Compositor{cfg: cfg, font: f, log: log.WithField("component", "compose")}, nil
}

// Separator returns the glyphs drawn between words.
func (c *Compositor) Separator() string { return c.cfg.Separator }

// Marker returns the glyphs used by Prefix.
func (c *Compositor) Marker() string { return c.cfg.Marker }

// ComposeLine renders one line. line must come from the baseline estimator
// for the same words; its shifts place every word on the common baseline.
func (c *Compositor) ComposeLine(words []Word, line baseline.Result) (Strip, error) {
	if len(words) == 0 {
		return Strip{}, fmt.Errorf("%w: no words to compose", geom.ErrGeometryMismatch)
	}
	if len(line.Shifts) != len(words) {
		return Strip{}, fmt.Errorf("%w: %d shifts for %d words", geom.ErrGeometryMismatch, len(line.Shifts), len(words))
	}
	for _, w := range words {
		if w.Box.Degenerate() {
			return Strip{}, fmt.Errorf("%w: degenerate word box %s", geom.ErrGeometryMismatch, w.Box)
		}
	}

	height := line.Bottom - line.Top
	face, err := c.separatorFace(height)
	if err != nil {
		return Strip{}, err
	}
	defer face.Close()
	sepWidth := font.MeasureString(face, c.cfg.Separator).Ceil()

	m := c.cfg.Margin
	tan := math.Tan(c.cfg.ShearAngle * math.Pi / 180)

	// columns first, then the canvas
	xs := make([]int, len(words))
	seps := make([]int, 0, len(words)-1)
	x := m
	for i, w := range words {
		if i > 0 {
			gap := c.gap(w.Box.Left - words[i-1].Box.Right)
			x += gap
			seps = append(seps, x)
			x += sepWidth + gap
		}
		xs[i] = x
		x += w.Box.Width() + c.shearExtent(w, tan)
	}

	cv := newCanvas(image.Rect(0, 0, x+m, height+2*m), c.log)
	baselineY := m + line.Baseline - line.Top
	for _, sx := range seps {
		c.drawText(cv.img, face, c.cfg.Separator, sx, baselineY)
	}

	strip := Strip{Image: cv.img, Boxes: make([]geom.Box, len(words))}
	for i, w := range words {
		y := m + w.Box.Top + line.Shifts[i] - line.Top
		cv.paste(w, xs[i], y, tan)
		strip.Boxes[i] = geom.Box{
			Left:   xs[i],
			Top:    y,
			Right:  xs[i] + w.Box.Width() + c.shearExtent(w, tan),
			Bottom: y + w.Box.Height(),
		}
	}

	strip.Overflow = cv.overflow
	if cv.overflow > 0 {
		c.log.WithFields(logrus.Fields{
			"words":    len(words),
			"overflow": cv.overflow,
		}).Warn("Composition wrote outside the canvas")
	}
	return strip, nil
}

// ComposeBlock stacks the strips of several lines into one raster. Boxes are
// returned line by line.
func (c *Compositor) ComposeBlock(lines [][]Word, results []baseline.Result) (Strip, error) {
	if len(lines) != len(results) {
		return Strip{}, fmt.Errorf("%w: %d baseline results for %d lines", geom.ErrGeometryMismatch, len(results), len(lines))
	}
	strips := make([]Strip, 0, len(lines))
	width, height := 0, 0
	for i, words := range lines {
		s, err := c.ComposeLine(words, results[i])
		if err != nil {
			return Strip{}, fmt.Errorf("line %d: %w", i, err)
		}
		strips = append(strips, s)
		width = max(width, s.Image.Bounds().Dx())
		height += s.Image.Bounds().Dy()
	}

	out := Strip{Image: image.NewGray(image.Rect(0, 0, width, height))}
	draw.Draw(out.Image, out.Image.Bounds(), image.White, image.Point{}, draw.Src)
	y := 0
	for _, s := range strips {
		r := s.Image.Bounds().Add(image.Pt(0, y))
		draw.Draw(out.Image, r, s.Image, image.Point{}, draw.Src)
		for _, b := range s.Boxes {
			out.Boxes = append(out.Boxes, b.Translate(0, y))
		}
		out.Overflow += s.Overflow
		y += r.Dy()
	}
	return out, nil
}

// Prefix draws the marker glyphs left of img and returns the new raster with
// the width that was added. Recognized boxes must be shifted left by that
// width to map back onto img.
func (c *Compositor) Prefix(img image.Image) (*image.Gray, int, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, 0, fmt.Errorf("%w: empty raster", geom.ErrGeometryMismatch)
	}
	size := max(8, b.Dy()*2/3)
	face, err := c.separatorFace(size)
	if err != nil {
		return nil, 0, err
	}
	defer face.Close()

	gap := c.gap(0)
	width := c.cfg.Margin + font.MeasureString(face, c.cfg.Marker).Ceil() + gap
	out := image.NewGray(image.Rect(0, 0, width+b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(width, 0, width+b.Dx(), b.Dy()), img, b.Min, draw.Src)

	ascent := face.Metrics().Ascent.Ceil()
	c.drawText(out, face, c.cfg.Marker, c.cfg.Margin, (b.Dy()+ascent)/2)
	return out, width, nil
}

// separatorFace returns a Go Mono face whose ascent plus descent is height
// pixels.
func (c *Compositor) separatorFace(height int) (font.Face, error) {
	height = max(height, 4)
	opts := &opentype.FaceOptions{Size: float64(height), DPI: 72, Hinting: font.HintingFull}
	face, err := opentype.NewFace(c.font, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create separator face: %w", err)
	}
	m := face.Metrics()
	natural := (m.Ascent + m.Descent).Ceil()
	if natural <= 0 || natural == height {
		return face, nil
	}
	face.Close()

	opts.Size = float64(height) * float64(height) / float64(natural)
	face, err = opentype.NewFace(c.font, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create separator face: %w", err)
	}
	return face, nil
}

func (c *Compositor) drawText(dst draw.Image, face font.Face, text string, x, baselineY int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(x, baselineY),
	}
	d.DrawString(text)
}

// gap clamps a natural inter-word distance to the configured bounds.
func (c *Compositor) gap(natural int) int {
	lo := int(math.Round(c.cfg.MinGap * c.cfg.DPI))
	hi := int(math.Round(c.cfg.MaxGap * c.cfg.DPI))
	return min(max(natural, lo), hi)
}

func (c *Compositor) shearExtent(w Word, tan float64) int {
	if !w.Italic {
		return 0
	}
	return int(math.Round(float64(w.Box.Height()-1) * tan))
}

// canvas is a white raster that drops and counts writes outside its bounds.
type canvas struct {
	img      *image.Gray
	overflow int
	log      logrus.FieldLogger
}

func newCanvas(r image.Rectangle, log logrus.FieldLogger) *canvas {
	img := image.NewGray(r)
	draw.Draw(img, r, image.White, image.Point{}, draw.Src)
	return &canvas{img: img, log: log}
}

func (cv *canvas) set(x, y int, c color.Gray) {
	if !(image.Point{X: x, Y: y}).In(cv.img.Rect) {
		cv.overflow++
		cv.log.WithFields(logrus.Fields{"x": x, "y": y}).Trace("Pixel outside canvas")
		return
	}
	cv.img.SetGray(x, y, c)
}

// paste copies the word's pixels with its top-left corner at (x, y). Italic
// words move each row right by round(row * tan), which rights a forward slant.
func (cv *canvas) paste(w Word, x, y int, tan float64) {
	src := w.Image.Bounds()
	for row := 0; row < w.Box.Height(); row++ {
		offset := 0
		if w.Italic {
			offset = int(math.Round(float64(row) * tan))
		}
		for col := 0; col < w.Box.Width(); col++ {
			p := image.Pt(w.Box.Left+col, w.Box.Top+row)
			if !p.In(src) {
				continue
			}
			px := color.GrayModel.Convert(w.Image.At(p.X, p.Y)).(color.Gray)
			if px.Y == 0xff {
				continue
			}
			cv.set(x+col+offset, y+row, px)
		}
	}
}
