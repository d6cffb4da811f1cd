package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gardar/ocrfuse/pkg/geom"
)

const wordsHOCR = `<html><body><div class='ocr_page' title='bbox 0 0 200 40'>
<span class='ocr_line' title='bbox 20 10 120 30; baseline 0 -4'>
<span class='ocrx_word' title='bbox 20 10 60 30; x_wconf 90'>John</span>
<span class='ocrx_word' title='bbox 70 10 120 30; x_wconf 90'>Doe</span>
</span></div></body></html>`

// fakeRecognizer writes an executable shell script standing in for the
// recognizer. The script receives "input outputBase [args...]" like the real one.
func fakeRecognizer(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed in PATH")
	}
	path := filepath.Join(t.TempDir(), "fake-recognizer")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake recognizer: %v", err)
	}
	return path
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestSupervisor(t *testing.T, script string, mutate func(*Config)) *Supervisor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Executable = fakeRecognizer(t, script)
	cfg.WorkDir = t.TempDir()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Ceiling = 2 * time.Second
	cfg.Tail = 100 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSupervisor(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	return s
}

func blankRaster() image.Image {
	img := image.NewGray(image.Rect(0, 0, 200, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func TestNewSupervisorMissingExecutable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executable = filepath.Join(t.TempDir(), "does-not-exist")
	cfg.WorkDir = t.TempDir()
	if _, err := NewSupervisor(cfg, quietLogger()); !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

func TestRecognizeMarkup(t *testing.T) {
	script := "cat > \"$2.hocr\" <<'EOF'\n" + wordsHOCR + "\nEOF"
	s := newTestSupervisor(t, script, nil)

	base := s.NextBasename("block")
	res, err := s.Recognize(context.Background(), Request{
		Image:    blankRaster(),
		Basename: base,
		Offset:   image.Pt(10, 5),
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !res.Process.ExitObserved || res.Process.TimedOut {
		t.Errorf("unexpected process result %+v", res.Process)
	}
	want := []geom.Word{
		{Text: "John", Box: geom.Box{Left: 10, Top: 5, Right: 50, Bottom: 25}, Baseline: 21, HasBaseline: true},
		{Text: "Doe", Box: geom.Box{Left: 60, Top: 5, Right: 110, Bottom: 25}, Baseline: 21, HasBaseline: true},
	}
	if len(res.Words) != len(want) {
		t.Fatalf("got %d words, want %d", len(res.Words), len(want))
	}
	for i := range want {
		if res.Words[i] != want[i] {
			t.Errorf("word %d = %+v, want %+v", i, res.Words[i], want[i])
		}
	}
	if _, err := os.Stat(filepath.Join(s.WorkDir(), base+".png")); err != nil {
		t.Errorf("raster should stay in the working directory: %v", err)
	}
}

func TestRecognizePassesConfigName(t *testing.T) {
	// the last argument is echoed back as the only word
	script := `for last; do :; done
printf "<div class='ocr_page' title='bbox 0 0 9 9'><span class='ocrx_word' title='bbox 1 1 5 5'>%s</span></div>" "$last" > "$2.hocr"`
	s := newTestSupervisor(t, script, func(c *Config) {
		c.ExtraArgs = []string{"-l", "eng"}
		c.ConfigName = "hocr"
	})
	res, err := s.Recognize(context.Background(), Request{Image: blankRaster()})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(res.Words) != 1 || res.Words[0].Text != "hocr" {
		t.Fatalf("expected config name as last argument, got %+v", res.Words)
	}
}

func TestRecognizePlain(t *testing.T) {
	script := `printf 'John XQX Doe\nx q x  Smith\n' > "$2.txt"`
	s := newTestSupervisor(t, script, nil)
	res, err := s.Recognize(context.Background(), Request{Image: blankRaster(), Mode: ModePlain})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	// the first variant found wins, so the loose form stays inside the token
	want := []string{"John", "Doe x q x Smith"}
	if strings.Join(res.Tokens, "|") != strings.Join(want, "|") {
		t.Fatalf("Tokens = %q, want %q", res.Tokens, want)
	}
}

func TestRecognizeNoResultIsEmpty(t *testing.T) {
	s := newTestSupervisor(t, "exit 1", nil)
	res, err := s.Recognize(context.Background(), Request{Image: blankRaster()})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !res.Empty() || !res.Process.ExitObserved {
		t.Fatalf("expected empty result with observed exit, got %+v", res)
	}
}

func TestRecognizeMalformedResult(t *testing.T) {
	s := newTestSupervisor(t, `echo '<html><body>garbage</body></html>' > "$2.hocr"`, nil)
	_, err := s.Recognize(context.Background(), Request{Image: blankRaster()})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestRecognizeTimeoutWithoutResult(t *testing.T) {
	s := newTestSupervisor(t, "exec sleep 30", func(c *Config) {
		c.Ceiling = 300 * time.Millisecond
		c.Tail = 100 * time.Millisecond
	})

	start := time.Now()
	res, err := s.Recognize(context.Background(), Request{Image: blankRaster()})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !res.Process.TimedOut || res.Process.ExitObserved {
		t.Errorf("unexpected process result %+v", res.Process)
	}
	// ceiling + tail plus slack for process start and reaping
	if elapsed > 3*time.Second {
		t.Fatalf("Recognize() took %v, expected to return soon after the ceiling", elapsed)
	}
}

func TestRecognizeTailAfterResult(t *testing.T) {
	// writes its result and then hangs; the tail lets us collect the result
	script := "cat > \"$2.hocr\" <<'EOF'\n" + wordsHOCR + "\nEOF\nexec sleep 30"
	s := newTestSupervisor(t, script, func(c *Config) {
		c.Ceiling = 10 * time.Second
		c.Tail = 150 * time.Millisecond
	})

	start := time.Now()
	res, err := s.Recognize(context.Background(), Request{Image: blankRaster()})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("tail did not shorten the wait")
	}
	if !res.Process.TimedOut || len(res.Words) != 2 {
		t.Fatalf("expected words collected after the tail, got %+v", res)
	}
}

func TestRecognizeContextCancel(t *testing.T) {
	s := newTestSupervisor(t, "exec sleep 30", func(c *Config) {
		c.Ceiling = 10 * time.Second
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Recognize(ctx, Request{Image: blankRaster()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestNextBasenameUnique(t *testing.T) {
	seq := NewSequence()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := seq.Next("word")
		if seen[name] {
			t.Fatalf("duplicate basename %s", name)
		}
		seen[name] = true
	}
}
