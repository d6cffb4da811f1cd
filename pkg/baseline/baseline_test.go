package baseline

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gardar/ocrfuse/pkg/geom"
)

func newTestEstimator() *Estimator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewEstimator(DefaultConfig(), l)
}

// wordsOn builds 10px wide words spaced along a line, one per baseline. Each
// word box ends on its baseline and is ten pixels high.
func wordsOn(baselines ...int) []geom.Word {
	words := make([]geom.Word, len(baselines))
	for i, b := range baselines {
		left := i * 12
		words[i] = geom.Word{
			Box:         geom.Box{Left: left, Top: b - 10, Right: left + 10, Bottom: b},
			Baseline:    b,
			HasBaseline: true,
		}
	}
	return words
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name       string
		baselines  []int
		wantSloped bool
		wantSlope  Slope
		wantBase   int
		wantShifts []int
		wantTop    int
		wantBottom int
	}{
		{
			name:       "descending",
			baselines:  []int{20, 22, 24, 26},
			wantSloped: true,
			wantSlope:  Descending,
			wantBase:   26,
			wantShifts: []int{6, 4, 2, 0},
			wantTop:    16,
			wantBottom: 26,
		},
		{
			name:       "ascending with a tie",
			baselines:  []int{30, 28, 28, 26, 24},
			wantSloped: true,
			wantSlope:  Ascending,
			wantBase:   30,
			wantShifts: []int{0, 2, 2, 4, 6},
			wantTop:    20,
			wantBottom: 30,
		},
		{
			name:       "exactly eighty percent",
			baselines:  []int{10, 12, 14, 12, 12, 14},
			wantSloped: true,
			wantSlope:  Descending,
			wantBase:   14,
			wantShifts: []int{4, 2, 0, 2, 2, 0},
			wantTop:    4,
			wantBottom: 14,
		},
		{
			name:       "zigzag is not sloped",
			baselines:  []int{20, 22, 20, 22, 20},
			wantSlope:  Even,
			wantBase:   21,
			wantShifts: []int{0, 0, 0, 0, 0},
			wantTop:    10,
			wantBottom: 22,
		},
		{
			name:       "flat",
			baselines:  []int{20, 20, 20},
			wantSlope:  Even,
			wantBase:   20,
			wantShifts: []int{0, 0, 0},
			wantTop:    10,
			wantBottom: 20,
		},
		{
			name:       "single word",
			baselines:  []int{17},
			wantSlope:  Even,
			wantBase:   17,
			wantShifts: []int{0},
			wantTop:    7,
			wantBottom: 17,
		},
	}
	e := newTestEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(nil, wordsOn(tt.baselines...))
			if got.Sloped != tt.wantSloped || got.Slope != tt.wantSlope {
				t.Errorf("slope = %v/%v, want %v/%v", got.Slope, got.Sloped, tt.wantSlope, tt.wantSloped)
			}
			if got.Baseline != tt.wantBase {
				t.Errorf("Baseline = %d, want %d", got.Baseline, tt.wantBase)
			}
			if !reflect.DeepEqual(got.Shifts, tt.wantShifts) {
				t.Errorf("Shifts = %v, want %v", got.Shifts, tt.wantShifts)
			}
			if got.Top != tt.wantTop || got.Bottom != tt.wantBottom {
				t.Errorf("bounds = %d..%d, want %d..%d", got.Top, got.Bottom, tt.wantTop, tt.wantBottom)
			}
			for i, s := range got.Shifts {
				if s < 0 {
					t.Errorf("shift %d is negative: %d", i, s)
				}
				if got.Sloped && got.Baselines[i]+s != got.Baseline {
					t.Errorf("word %d does not land on the baseline", i)
				}
			}
		})
	}
}

func TestEstimateFromPixels(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	// body rows 10..19 plus a thin descender
	draw.Draw(img, image.Rect(2, 10, 12, 20), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(2, 20, 4, 25), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	words := []geom.Word{{Box: geom.Box{Left: 0, Top: 5, Right: 15, Bottom: 30}}}
	got := newTestEstimator().Estimate(img, words)
	if got.Baseline != 20 {
		t.Errorf("Baseline = %d, want 20", got.Baseline)
	}
}

func TestFindBaselineWithoutInk(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if b, ok := FindBaseline(img, image.Rect(0, 0, 10, 8), 160, 0.5); ok || b != 8 {
		t.Errorf("FindBaseline() = %d, %v; want 8, false", b, ok)
	}
}
