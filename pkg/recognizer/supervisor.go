package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gardar/ocrfuse/pkg/hocr"
)

// Config holds the supervisor settings
type Config struct {
	Executable   string        // recognizer binary, looked up in PATH
	ConfigName   string        // config argument selecting markup output (e.g. "hocr")
	ExtraArgs    []string      // arguments placed before the config name (e.g. "-l", "eng")
	WorkDir      string        // shared working/cache directory
	PollInterval time.Duration // guard polling period
	Ceiling      time.Duration // hard bound on the wait
	Tail         time.Duration // wait left once the result file appears
	Separator    string        // reserved glyph sequence used by composited strips
}

// DefaultConfig returns a config with the usual tesseract settings
func DefaultConfig() Config {
	return Config{
		Executable:   "tesseract",
		ConfigName:   "hocr",
		WorkDir:      filepath.Join(os.TempDir(), "ocrfuse"),
		PollInterval: 100 * time.Millisecond,
		Ceiling:      20 * time.Second,
		Tail:         2 * time.Second,
		Separator:    "XQX",
	}
}

// waitDelay bounds how long Wait keeps copying output after the process is
// gone, in case a grandchild still holds the pipes open.
const waitDelay = time.Second

// Supervisor runs the external recognizer under a bounded wait.
type Supervisor struct {
	cfg        Config
	executable string
	seq        *Sequence
	log        logrus.FieldLogger
}

// NewSupervisor resolves the executable and prepares the working directory.
// A missing executable is reported as ErrLaunch.
func NewSupervisor(cfg Config, log logrus.FieldLogger) (*Supervisor, error) {
	defaults := DefaultConfig()
	if cfg.Executable == "" {
		cfg.Executable = defaults.Executable
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaults.WorkDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = defaults.Ceiling
	}
	if cfg.Tail <= 0 {
		cfg.Tail = defaults.Tail
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	executable, err := exec.LookPath(cfg.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	return &Supervisor{
		cfg:        cfg,
		executable: executable,
		seq:        NewSequence(),
		log:        log.WithField("component", "recognizer"),
	}, nil
}

// NextBasename returns a working file name unique to this supervisor.
func (s *Supervisor) NextBasename(kind string) string {
	return s.seq.Next(kind)
}

// WorkDir is the directory holding rasters and raw results.
func (s *Supervisor) WorkDir() string {
	return s.cfg.WorkDir
}

// Recognize writes the raster, runs the recognizer and parses its result.
// A missing result file yields an empty Result and no error, unless the
// bounded wait expired, in which case ErrTimeout is returned.
func (s *Supervisor) Recognize(ctx context.Context, req Request) (Result, error) {
	if req.Image == nil {
		return Result{}, fmt.Errorf("%w: no raster", ErrIO)
	}
	if req.Basename == "" {
		req.Basename = s.NextBasename("region")
	}
	log := s.log.WithFields(logrus.Fields{"basename": req.Basename, "mode": req.Mode})

	input := filepath.Join(s.cfg.WorkDir, req.Basename+".png")
	if err := writePNG(input, req.Image); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	started := time.Now()
	proc, err := s.run(ctx, input, filepath.Join(s.cfg.WorkDir, req.Basename), req.Mode, log)
	res := Result{Process: proc}
	if err != nil {
		return res, err
	}

	data, err := os.ReadFile(proc.OutputPath)
	if errors.Is(err, fs.ErrNotExist) {
		if proc.TimedOut {
			log.WithField("elapsed", time.Since(started)).Warn("Recognizer timed out without a result")
			return res, ErrTimeout
		}
		log.Debug("Recognizer produced no result file")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrIO, err)
	}

	switch req.Mode {
	case ModePlain:
		res.Tokens = SplitTokens(string(data), s.cfg.Separator)
	default:
		doc, err := hocr.Parse(data)
		if err != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrIO, proc.OutputPath, err)
		}
		for _, w := range doc.Words() {
			res.Words = append(res.Words, w.Translate(-req.Offset.X, -req.Offset.Y))
		}
	}

	log.WithFields(logrus.Fields{
		"words":     len(res.Words),
		"tokens":    len(res.Tokens),
		"timed_out": proc.TimedOut,
		"elapsed":   time.Since(started),
	}).Debug("Recognizer finished")
	return res, nil
}

// run spawns the recognizer and blocks until it exits, the guard expires or
// ctx is cancelled. The guard goroutine is always joined before returning.
func (s *Supervisor) run(ctx context.Context, input, outBase string, mode Mode, log logrus.FieldLogger) (proc ProcessResult, err error) {
	proc.OutputPath = outBase + mode.extension()
	if err := os.Remove(proc.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return proc, fmt.Errorf("%w: %w", ErrIO, err)
	}

	args := []string{input, outBase}
	args = append(args, s.cfg.ExtraArgs...)
	if mode == ModeMarkup && s.cfg.ConfigName != "" {
		args = append(args, s.cfg.ConfigName)
	}

	cmd := exec.Command(s.executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return proc, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	guardCtx, stopGuard := context.WithCancel(ctx)
	expired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.guard(guardCtx, proc.OutputPath, start, expired)
	}()
	defer func() {
		stopGuard()
		wg.Wait()
	}()

	select {
	case waitErr := <-exited:
		proc.ExitObserved = true
		if waitErr != nil {
			log.WithError(waitErr).WithField("stderr", stderr.String()).Debug("Recognizer exited with an error")
		}
	case <-expired:
		proc.TimedOut = true
		terminate(cmd, exited, log)
	case <-ctx.Done():
		terminate(cmd, exited, log)
		return proc, ctx.Err()
	}
	return proc, nil
}

// guard polls for the result file and closes expired once the deadline passes.
// The deadline starts at the ceiling and shrinks to the tail as soon as a
// fresh result file is seen.
func (s *Supervisor) guard(ctx context.Context, path string, start time.Time, expired chan<- struct{}) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	deadline := start.Add(s.cfg.Ceiling)
	// file systems with one second mtime resolution
	fresh := start.Truncate(time.Second)
	tailing := false

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !tailing {
				if info, err := os.Stat(path); err == nil && !info.ModTime().Before(fresh) {
					tailing = true
					if tail := now.Add(s.cfg.Tail); tail.Before(deadline) {
						deadline = tail
					}
				}
			}
			if !now.Before(deadline) {
				close(expired)
				return
			}
		}
	}
}

// terminate kills the process and reaps it.
func terminate(cmd *exec.Cmd, exited <-chan error, log logrus.FieldLogger) {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.WithError(err).Warn("Failed to kill recognizer")
	}
	<-exited
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create raster file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode raster: %w", err)
	}
	return f.Close()
}
