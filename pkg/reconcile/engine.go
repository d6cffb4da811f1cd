// Package reconcile fuses recognizer output with the structural layout pass
// and writes the result into a page annotation tree.
//
// For a block or line the engine recognizes the whole region, merges the
// recognized words with the structural word boxes, re-recognizes every
// structural word the recognizer missed, assigns text to the structural word
// nodes (exact box first, then containment) and corrects it. Lines that still
// have several unresolved words are composited into one strip with separator
// glyphs and recognized again as plain text.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gardar/ocrfuse/pkg/baseline"
	"github.com/gardar/ocrfuse/pkg/compose"
	"github.com/gardar/ocrfuse/pkg/correct"
	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/layout"
	"github.com/gardar/ocrfuse/pkg/recognizer"
)

// Config holds the engine settings
type Config struct {
	Margin         int  // white border around every recognized region
	Workers        int  // concurrent recognizer invocations per block, and blocks per page
	LineMinMissing int  // missing words a line needs before it is composited
	LineRetry      bool // enable composited line re-recognition
}

// DefaultConfig returns the usual settings
func DefaultConfig() Config {
	return Config{
		Margin:         10,
		Workers:        4,
		LineMinMissing: 2,
		LineRetry:      true,
	}
}

// Components are the collaborators of an Engine. Recognizer, Compositor and
// Corrector are required; a nil Analyzer or Estimator gets the default.
type Components struct {
	Recognizer recognizer.Recognizer
	Analyzer   layout.Analyzer
	Estimator  *baseline.Estimator
	Compositor *compose.Compositor
	Corrector  *correct.Engine
}

// Engine reconciles regions of a page.
type Engine struct {
	cfg Config
	c   Components
	log logrus.FieldLogger
}

// NewEngine checks the components and fills config defaults.
func NewEngine(cfg Config, c Components, log logrus.FieldLogger) (*Engine, error) {
	if c.Recognizer == nil || c.Compositor == nil || c.Corrector == nil {
		return nil, errors.New("reconcile: recognizer, compositor and corrector are required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if c.Analyzer == nil {
		c.Analyzer = layout.NewProjectionAnalyzer(layout.DefaultConfig())
	}
	if c.Estimator == nil {
		c.Estimator = baseline.NewEstimator(baseline.DefaultConfig(), log)
	}
	if cfg.Margin < 0 {
		cfg.Margin = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.LineMinMissing <= 0 {
		cfg.LineMinMissing = DefaultConfig().LineMinMissing
	}
	return &Engine{cfg: cfg, c: c, log: log.WithField("component", "reconcile")}, nil
}

// Reconcile annotates the word nodes below node, a block or a line, with text
// read from page, or marks them missing. Running it again on the same inputs
// gives the same annotations. Failures local to a word or region are logged
// and skipped; only recognizer launch failures and context cancellation are
// returned.
func (e *Engine) Reconcile(ctx context.Context, node *Node, page image.Image) (Report, error) {
	var report Report
	if node.Kind != KindBlock && node.Kind != KindLine {
		return report, fmt.Errorf("reconcile: cannot reconcile a %s node", node.Kind)
	}
	log := e.log.WithFields(logrus.Fields{"kind": node.Kind, "region": node.Box})
	if err := node.Box.Validate(); err != nil {
		log.WithError(err).Warn("Skipping degenerate region")
		return report, nil
	}

	// whole region, with the prefix retry on an empty result
	recognized, retried, err := e.recognize(ctx, page, node.Box, node.Kind.String(), log)
	if err != nil {
		return report, err
	}
	report.Recognized = len(recognized)
	if retried {
		report.Retried++
	}

	words, err := e.structure(ctx, node, page, log)
	if err != nil {
		return report, err
	}
	boxes := make([]geom.Box, 0, len(words))
	valid := make([]*Node, 0, len(words))
	for _, w := range words {
		if w.Box.Degenerate() {
			log.WithField("box", w.Box).Warn("Skipping degenerate word box")
			w.reset()
			continue
		}
		boxes = append(boxes, w.Box)
		valid = append(valid, w)
	}

	merged, missed := Merge(recognized, boxes, geom.Compare)

	// missed words, only once the merge is complete
	recovered, retries, err := e.recognizeMissed(ctx, page, missed, log)
	if err != nil {
		return report, err
	}
	report.Retried += retries
	report.Recovered += len(recovered)
	merged = Insert(merged, geom.Compare, recovered...)

	assignment := Assign(boxes, merged, geom.Compare)
	report.Assigned = assignment.Exact
	report.Contained = assignment.Contained
	report.Orphans = assignment.Orphans
	for i, w := range valid {
		w.reset()
		if assignment.Texts[i] == "" {
			w.Missing = true
			continue
		}
		if assignment.Italic[i] {
			w.Italic = true
		}
		if e.accept(w, assignment.Texts[i]) {
			report.Corrected++
		}
	}

	if e.cfg.LineRetry {
		lines := node.Lines()
		for _, line := range lines {
			n, c, err := e.recognizeLine(ctx, line, page, log)
			if err != nil {
				return report, err
			}
			report.Recovered += n
			report.Corrected += c
		}
	}

	report.Missing = node.MissingCount()
	if len(report.Orphans) > 0 {
		log.WithField("orphans", len(report.Orphans)).Debug("Recognized words without a structural node")
	}
	log.WithFields(logrus.Fields{
		"recognized": report.Recognized,
		"recovered":  report.Recovered,
		"missing":    report.Missing,
	}).Debug("Reconciled region")
	return report, nil
}

// accept stores corrected text on a word node and reports whether the
// correction changed it.
func (e *Engine) accept(w *Node, text string) bool {
	c := e.c.Corrector.Correct(text)
	w.Original = c.Original
	w.Text = c.Text
	w.Corrected = c.Changed
	w.Missing = false
	return c.Changed
}

// structure returns the structural word nodes of node. When node has none the
// layout analyzer is asked for word boxes and nodes are created for them.
func (e *Engine) structure(ctx context.Context, node *Node, page image.Image, log logrus.FieldLogger) ([]*Node, error) {
	if words := node.Words(); len(words) > 0 {
		return words, nil
	}

	local, err := e.c.Analyzer.WordsFor(ctx, page, node.Box.Rect())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Layout analysis failed")
		return nil, nil
	}
	boxes := make([]geom.Box, len(local))
	for i, b := range local {
		boxes[i] = b.Translate(node.Box.Left, node.Box.Top)
	}

	switch node.Kind {
	case KindLine:
		geom.SortBoxes(boxes, geom.Compare)
		for _, b := range boxes {
			node.Add(NewNode(KindWord, b))
		}
	default:
		for _, lineBoxes := range layout.GroupLines(boxes) {
			lineBox, _ := geom.Bounds(lineBoxes...)
			line := NewNode(KindLine, lineBox)
			for _, b := range lineBoxes {
				line.Add(NewNode(KindWord, b))
			}
			node.Add(line)
		}
	}
	return node.Words(), nil
}

// recognize runs the recognizer on box of page and returns words in page
// coordinates. A region that yields nothing is tried once more with the
// marker prefix.
func (e *Engine) recognize(ctx context.Context, page image.Image, box geom.Box, kind string, log logrus.FieldLogger) ([]geom.Word, bool, error) {
	raster := e.crop(page, box)
	m := e.cfg.Margin

	res, err := e.invoke(ctx, recognizer.Request{
		Image:    raster,
		Basename: e.c.Recognizer.NextBasename(kind),
		Offset:   image.Pt(m, m),
	}, log)
	if err != nil {
		return nil, false, err
	}
	if !res.Empty() {
		return toPage(res.Words, box), false, nil
	}

	prefixed, width, err := e.c.Compositor.Prefix(raster)
	if err != nil {
		log.WithError(err).Warn("Could not build marker prefix")
		return nil, false, nil
	}
	res, err = e.invoke(ctx, recognizer.Request{
		Image:    prefixed,
		Basename: e.c.Recognizer.NextBasename(kind + "-prefixed"),
		Offset:   image.Pt(m+width, m),
	}, log)
	if err != nil {
		return nil, true, err
	}
	words := recognizer.StripMarker(res.Words, e.c.Compositor.Marker())
	return toPage(words, box), true, nil
}

// recognizeMissed re-recognizes each missed box on its own. The returned
// words carry the missed box and the text found inside it.
func (e *Engine) recognizeMissed(ctx context.Context, page image.Image, missed []geom.Box, log logrus.FieldLogger) ([]geom.Word, int, error) {
	if len(missed) == 0 {
		return nil, 0, nil
	}
	found := make([]geom.Word, len(missed))
	retried := make([]bool, len(missed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, box := range missed {
		i, box := i, box
		g.Go(func() error {
			words, r, err := e.recognize(gctx, page, box, "word", log.WithField("word", box))
			if err != nil {
				return err
			}
			retried[i] = r
			found[i] = geom.Word{Text: geom.JoinLeftToRight(words), Box: box}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var out []geom.Word
	retries := 0
	for i, w := range found {
		if retried[i] {
			retries++
		}
		if w.Text != "" {
			out = append(out, w)
		}
	}
	return out, retries, nil
}

// recognizeLine composites the missing words of a line into one strip and
// recognizes it as plain text. Tokens are only used when their count matches
// the number of words.
func (e *Engine) recognizeLine(ctx context.Context, line *Node, page image.Image, log logrus.FieldLogger) (recovered, corrected int, err error) {
	var missing []*Node
	for _, w := range line.Words() {
		if w.Missing {
			missing = append(missing, w)
		}
	}
	if len(missing) < e.cfg.LineMinMissing {
		return 0, 0, nil
	}
	log = log.WithFields(logrus.Fields{"line": line.Box, "words": len(missing)})

	geomWords := make([]geom.Word, len(missing))
	parts := make([]compose.Word, len(missing))
	for i, w := range missing {
		geomWords[i] = w.geomWord()
		parts[i] = compose.Word{Image: page, Box: w.Box, Italic: w.Italic}
	}
	est := e.c.Estimator.Estimate(page, geomWords)
	strip, err := e.c.Compositor.ComposeLine(parts, est)
	if err != nil {
		log.WithError(err).Warn("Could not composite line")
		return 0, 0, nil
	}

	res, err := e.invoke(ctx, recognizer.Request{
		Image:    strip.Image,
		Basename: e.c.Recognizer.NextBasename("strip"),
		Mode:     recognizer.ModePlain,
	}, log)
	if err != nil {
		return 0, 0, err
	}
	if len(res.Tokens) != len(missing) {
		log.WithField("tokens", len(res.Tokens)).Debug("Token count does not match the composited words")
		return 0, 0, nil
	}
	for i, token := range res.Tokens {
		if token == "" {
			continue
		}
		recovered++
		if e.accept(missing[i], token) {
			corrected++
		}
	}
	return recovered, corrected, nil
}

// invoke calls the recognizer and turns soft failures into an empty result.
func (e *Engine) invoke(ctx context.Context, req recognizer.Request, log logrus.FieldLogger) (recognizer.Result, error) {
	res, err := e.c.Recognizer.Recognize(ctx, req)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, recognizer.ErrLaunch):
		return res, err
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, recognizer.ErrTimeout):
		log.WithField("basename", req.Basename).Warn("Recognizer timed out, treating as empty")
	default:
		log.WithError(err).WithField("basename", req.Basename).Warn("Recognition failed, treating as empty")
	}
	return recognizer.Result{Process: res.Process}, nil
}

// crop copies box of page onto a white raster with the configured margin.
func (e *Engine) crop(page image.Image, box geom.Box) *image.Gray {
	m := e.cfg.Margin
	out := image.NewGray(image.Rect(0, 0, box.Width()+2*m, box.Height()+2*m))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(m, m, m+box.Width(), m+box.Height()), page, box.Origin(), draw.Src)
	return out
}

// toPage moves region-local words into page coordinates and drops empty ones.
func toPage(words []geom.Word, box geom.Box) []geom.Word {
	out := make([]geom.Word, 0, len(words))
	for _, w := range words {
		if w.Text == "" {
			continue
		}
		out = append(out, w.Translate(box.Left, box.Top))
	}
	return out
}
