package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/reconcile"
)

func testPage() (*image.Gray, *reconcile.Node) {
	img := image.NewGray(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	line := reconcile.NewNode(reconcile.KindLine, geom.Box{Left: 10, Top: 10, Right: 190, Bottom: 30}).Add(
		&reconcile.Node{Kind: reconcile.KindWord, Box: geom.Box{Left: 10, Top: 10, Right: 50, Bottom: 30}, Text: "John"},
		&reconcile.Node{Kind: reconcile.KindWord, Box: geom.Box{Left: 60, Top: 10, Right: 100, Bottom: 30}, Text: "Müller", Original: "Mü1ler", Corrected: true},
		&reconcile.Node{Kind: reconcile.KindWord, Box: geom.Box{Left: 110, Top: 10, Right: 190, Bottom: 30}, Missing: true},
	)
	page := reconcile.NewNode(reconcile.KindPage, geom.FromRect(img.Bounds())).Add(
		reconcile.NewNode(reconcile.KindBlock, line.Box).Add(line),
	)
	return img, page
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRender(t *testing.T) {
	for _, debug := range []bool{false, true} {
		img, page := testPage()
		cfg := DefaultConfig()
		cfg.Debug = debug

		var buf bytes.Buffer
		stats, err := Render(&buf, img, page, cfg, quietLogger())
		if err != nil {
			t.Fatalf("Render(debug=%v) error = %v", debug, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
			t.Errorf("Render(debug=%v) output is not a PDF", debug)
		}
		if stats.Words != 2 || stats.Missing != 1 || stats.EncodingErrors != 0 {
			t.Errorf("Render(debug=%v) stats = %+v", debug, stats)
		}
	}
}

func TestRenderRejectsEmptyInput(t *testing.T) {
	_, page := testPage()
	if _, err := Render(io.Discard, image.NewGray(image.Rectangle{}), page, DefaultConfig(), quietLogger()); err == nil {
		t.Error("expected error for empty raster")
	}
	img, _ := testPage()
	if _, err := Render(io.Discard, img, nil, DefaultConfig(), quietLogger()); err == nil {
		t.Error("expected error for nil page")
	}
}

func TestRenderCountsEncodingErrors(t *testing.T) {
	img, page := testPage()
	page.Words()[0].Text = "日本"

	stats, err := Render(io.Discard, img, page, DefaultConfig(), quietLogger())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if stats.EncodingErrors != 1 {
		t.Errorf("EncodingErrors = %d, want 1", stats.EncodingErrors)
	}
}
