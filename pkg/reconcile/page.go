package reconcile

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Report summarizes a reconciliation.
type Report struct {
	Recognized int         // words from the region-level pass
	Recovered  int         // words found by targeted re-recognition
	Retried    int         // invocations repeated with the marker prefix
	Assigned   int         // word nodes matched by an identical box
	Contained  int         // word nodes filled by the containment pass
	Corrected  int         // accepted texts changed by the correction rules
	Missing    int         // word nodes left unresolved
	Orphans    []geom.Word // recognized words no word node took
}

// Add accumulates another report into r.
func (r *Report) Add(o Report) {
	r.Recognized += o.Recognized
	r.Recovered += o.Recovered
	r.Retried += o.Retried
	r.Assigned += o.Assigned
	r.Contained += o.Contained
	r.Corrected += o.Corrected
	r.Missing += o.Missing
	r.Orphans = append(r.Orphans, o.Orphans...)
}

// ReconcilePage reconciles every block of page concurrently. A page without
// blocks is treated as a single block covering the whole raster. Blocks are
// independent, so a failing block does not affect the others; only launch
// failures and cancellation abort the page.
func (e *Engine) ReconcilePage(ctx context.Context, page *Node, img image.Image) (Report, error) {
	if page.Box == (geom.Box{}) {
		page.Box = geom.FromRect(img.Bounds())
	}
	blocks := page.Blocks()
	if len(blocks) == 0 {
		block := NewNode(KindBlock, page.Box)
		page.Add(block)
		blocks = []*Node{block}
	}

	reports := make([]Report, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			r, err := e.Reconcile(gctx, block, img)
			reports[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var total Report
	for _, r := range reports {
		total.Add(r)
	}
	e.log.WithFields(logrus.Fields{
		"blocks":     len(blocks),
		"recognized": total.Recognized,
		"recovered":  total.Recovered,
		"corrected":  total.Corrected,
		"missing":    total.Missing,
		"orphans":    len(total.Orphans),
	}).Info("Reconciled page")
	return total, nil
}
