// Package recognizer supervises the external OCR process.
//
// A Supervisor writes a synthetic raster into its working directory, runs the
// recognizer executable as
//
//	executable inputImage outputBase [extra args...] [configName]
//
// and waits for it under a bounded deadline enforced by a guard goroutine.
// The guard polls for the result file; once the file shows up the remaining
// wait shrinks to a short tail so a recognizer that is slow to exit after
// flushing its output is not cut off early. When the deadline passes the
// process is killed and reaped before Recognize returns.
//
// Results come in two shapes. In markup mode the recognizer writes hOCR and
// every word carries its own box. In plain mode the recognizer writes text for
// a composited strip in which words were separated by a reserved glyph
// sequence; the text is split back into one token per source word.
//
// Rasters and raw results are left in the working directory so any invocation
// can be replayed by hand.
package recognizer

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// Mode selects the result format requested from the recognizer.
type Mode int

const (
	// ModeMarkup asks for hOCR with per-word geometry.
	ModeMarkup Mode = iota
	// ModePlain asks for plain text split on the separator.
	ModePlain
)

func (m Mode) String() string {
	if m == ModePlain {
		return "plain"
	}
	return "markup"
}

func (m Mode) extension() string {
	if m == ModePlain {
		return ".txt"
	}
	return ".hocr"
}

// Request describes one recognizer invocation.
type Request struct {
	Image    image.Image
	Basename string      // caller-unique working file name, no extension
	Mode     Mode        // result format
	Offset   image.Point // synthetic margin/prefix added to the raster
}

// ProcessResult records what happened to one subprocess.
type ProcessResult struct {
	ExitObserved bool
	TimedOut     bool
	OutputPath   string
}

// Result is the outcome of a recognizer invocation. Words are set in markup
// mode, in image-local coordinates with the request offset removed. Tokens are
// set in plain mode.
type Result struct {
	Words   []geom.Word
	Tokens  []string
	Process ProcessResult
}

// Empty reports a result without any recognized text.
func (r Result) Empty() bool {
	for _, w := range r.Words {
		if w.Text != "" {
			return false
		}
	}
	for _, t := range r.Tokens {
		if t != "" {
			return false
		}
	}
	return true
}

// Recognizer turns a raster into positioned words or tokens.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (Result, error)
	NextBasename(kind string) string
}

// Sequence hands out working file names that are unique across every
// invocation made through it, so concurrent invocations never collide.
type Sequence struct {
	run string
	n   atomic.Uint64
}

// NewSequence creates a sequence with a fresh run id.
func NewSequence() *Sequence {
	return &Sequence{run: uuid.NewString()[:8]}
}

// Next returns the next basename for the given kind of region.
func (s *Sequence) Next(kind string) string {
	return fmt.Sprintf("%s-%s-%06d", s.run, kind, s.n.Add(1))
}
