// Package baseline estimates a line's common baseline and corrects for
// line-wide skew by shifting words vertically.
//
// Coordinates grow downwards. A baseline is the row just below the foot of
// the non-descending glyphs, the same convention hOCR uses where a zero
// baseline offset puts the baseline on the bottom edge of the line box.
package baseline

import (
	"image"
	"image/color"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Slope classifies the direction of a line's baselines, left to right.
type Slope int

const (
	Even Slope = iota
	Ascending
	Descending
)

func (s Slope) String() string {
	switch s {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "even"
	}
}

// Config holds the estimator settings
type Config struct {
	SlopeRatio    float64 // share of comparisons one direction plus ties must reach
	Tolerance     int     // deltas within this many pixels count as ties
	InkFraction   float64 // row density, relative to the peak, that still counts as body text
	DarkThreshold uint8   // luma below which a pixel is ink
}

// DefaultConfig returns the usual settings
func DefaultConfig() Config {
	return Config{
		SlopeRatio:    0.8,
		Tolerance:     0,
		InkFraction:   0.5,
		DarkThreshold: 160,
	}
}

// Result is the derived geometry of one line.
type Result struct {
	Baseline  int   // authoritative baseline after shifting
	Baselines []int // per-word baseline before shifting
	Shifts    []int // per-word vertical shift, never negative
	Top       int
	Bottom    int
	Slope     Slope
	Sloped    bool
}

// Estimator computes line baselines.
type Estimator struct {
	cfg Config
	log logrus.FieldLogger
}

// NewEstimator creates an estimator; zero fields fall back to DefaultConfig.
func NewEstimator(cfg Config, log logrus.FieldLogger) *Estimator {
	def := DefaultConfig()
	if cfg.SlopeRatio <= 0 {
		cfg.SlopeRatio = def.SlopeRatio
	}
	if cfg.InkFraction <= 0 {
		cfg.InkFraction = def.InkFraction
	}
	if cfg.DarkThreshold == 0 {
		cfg.DarkThreshold = def.DarkThreshold
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Estimator{cfg: cfg, log: log.WithField("component", "baseline")}
}

// Estimate derives the baseline of a line of words. Words without a baseline
// get one from their own pixels in page; page may be nil when every word
// already carries a baseline.
func (e *Estimator) Estimate(page image.Image, words []geom.Word) Result {
	if len(words) == 0 {
		return Result{}
	}

	res := Result{
		Baselines: make([]int, len(words)),
		Shifts:    make([]int, len(words)),
	}
	for i, w := range words {
		switch {
		case w.HasBaseline:
			res.Baselines[i] = w.Baseline
		case page != nil:
			b, ok := FindBaseline(page, w.Box.Rect(), e.cfg.DarkThreshold, e.cfg.InkFraction)
			if !ok {
				e.log.WithField("box", w.Box).Debug("No ink in word, using its bottom edge")
			}
			res.Baselines[i] = b
		default:
			res.Baselines[i] = w.Box.Bottom
		}
	}

	res.Slope, res.Sloped = e.classify(res.Baselines)

	sum := 0
	for _, b := range res.Baselines {
		sum += b
	}
	mean := int(math.Round(float64(sum) / float64(len(words))))

	if !res.Sloped {
		res.Baseline = mean
		res.Top, res.Bottom = words[0].Box.Top, words[0].Box.Bottom
		for _, w := range words[1:] {
			res.Top = min(res.Top, w.Box.Top)
			res.Bottom = max(res.Bottom, w.Box.Bottom)
		}
		return res
	}

	minShift := math.MaxInt
	for i, b := range res.Baselines {
		res.Shifts[i] = mean - b
		minShift = min(minShift, res.Shifts[i])
	}
	res.Baseline = mean - minShift
	for i, w := range words {
		res.Shifts[i] -= minShift
		top, bottom := w.Box.Top+res.Shifts[i], w.Box.Bottom+res.Shifts[i]
		if i == 0 {
			res.Top, res.Bottom = top, bottom
			continue
		}
		res.Top = min(res.Top, top)
		res.Bottom = max(res.Bottom, bottom)
	}

	e.log.WithFields(logrus.Fields{
		"slope":    res.Slope,
		"baseline": res.Baseline,
		"words":    len(words),
	}).Debug("Corrected sloped line")
	return res
}

// classify counts the direction of consecutive baseline deltas. A line is
// sloped when one direction plus ties reaches SlopeRatio of all comparisons
// and that direction holds a strict majority of the non-tied ones.
func (e *Estimator) classify(baselines []int) (Slope, bool) {
	n := len(baselines) - 1
	if n < 1 {
		return Even, false
	}
	var up, even, down int
	for i := 0; i < n; i++ {
		d := baselines[i+1] - baselines[i]
		switch {
		case d > e.cfg.Tolerance:
			down++
		case d < -e.cfg.Tolerance:
			up++
		default:
			even++
		}
	}
	need := e.cfg.SlopeRatio * float64(n)
	decided := up + down
	if float64(down+even) >= need && down*2 > decided {
		return Descending, true
	}
	if float64(up+even) >= need && up*2 > decided {
		return Ascending, true
	}
	return Even, false
}

// FindBaseline returns the baseline of the ink inside r: one past the lowest
// row whose ink count reaches fraction of the densest row. Without ink it
// returns r.Max.Y and false.
func FindBaseline(img image.Image, r image.Rectangle, threshold uint8, fraction float64) (int, bool) {
	bottom := r.Max.Y
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return bottom, false
	}
	rows := make([]int, r.Dy())
	peak := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		n := 0
		for x := r.Min.X; x < r.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < threshold {
				n++
			}
		}
		rows[y-r.Min.Y] = n
		peak = max(peak, n)
	}
	if peak == 0 {
		return bottom, false
	}
	cut := int(math.Ceil(fraction * float64(peak)))
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i] >= cut {
			return r.Min.Y + i + 1, true
		}
	}
	return bottom, false
}
