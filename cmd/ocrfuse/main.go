// ocrfuse recovers the words an OCR engine missed on a scanned page.
//
// It recognizes the page region by region, compares the recognized words with
// the word boxes of a structural layout pass, re-recognizes every word box that
// received no text (alone, then composited with its missing neighbours into one
// strip) and cleans up the text with correction rules.
//
// Usage:
//
//	ocrfuse reconcile --image page.png [--config config.yml] [--hocr layout.hocr] [--text out.txt] [--overlay out.pdf]
//	ocrfuse correct TOKEN...
//
// Configuration:
//
// Without --config the built-in defaults are used: tesseract from PATH with
// the hocr config, a 20s ceiling per invocation and four workers. See package
// config for the file format.
//
// Backends:
//
//	tesseract  run the recognizer executable as a supervised subprocess
//	docai      send regions to a Google Document AI OCR processor
//
// The docai backend authenticates with GOOGLE_APPLICATION_CREDENTIALS.
//
// Example:
//
//	ocrfuse reconcile --image scan.png --text scan.txt --overlay scan.pdf --log-level debug
//	ocrfuse correct 'D0nald' '19O5,' 'ofthe'
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gardar/ocrfuse/pkg/baseline"
	"github.com/gardar/ocrfuse/pkg/compose"
	"github.com/gardar/ocrfuse/pkg/config"
	"github.com/gardar/ocrfuse/pkg/correct"
	"github.com/gardar/ocrfuse/pkg/docai"
	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/hocr"
	"github.com/gardar/ocrfuse/pkg/layout"
	"github.com/gardar/ocrfuse/pkg/overlay"
	"github.com/gardar/ocrfuse/pkg/reconcile"
	"github.com/gardar/ocrfuse/pkg/recognizer"
)

var (
	configPath string
	logLevel   string
	backend    string

	imagePath   string
	hocrPath    string
	textPath    string
	overlayPath string
	debugPDF    bool
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:           "ocrfuse",
	Short:         "Recover words an OCR engine missed",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a page image",
	Long:  "Recognize a page image, re-recognize the words the first pass missed and print the corrected text",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

var correctCmd = &cobra.Command{
	Use:   "correct TOKEN...",
	Short: "Apply the correction rules to tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCorrect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error), overrides the config")

	reconcileCmd.Flags().StringVar(&imagePath, "image", "", "Path to the page image (PNG or JPEG)")
	reconcileCmd.Flags().StringVar(&hocrPath, "hocr", "", "hOCR file whose word boxes seed the page structure")
	reconcileCmd.Flags().StringVar(&textPath, "text", "", "Path to save the reconciled text (default stdout)")
	reconcileCmd.Flags().StringVar(&overlayPath, "overlay", "", "Path to save a searchable PDF of the page")
	reconcileCmd.Flags().BoolVar(&debugPDF, "debug-overlay", false, "Draw the overlay text and word boxes visibly")
	reconcileCmd.Flags().StringVar(&backend, "backend", "", "Recognizer backend (tesseract or docai), overrides the config")
	reconcileCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(reconcileCmd, correctCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("ocrfuse failed")
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies the flag overrides
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.SetLevel(cfg.Level())
	return cfg, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	img, err := readImage(imagePath)
	if err != nil {
		return err
	}
	page := reconcile.NewNode(reconcile.KindPage, geom.FromRect(img.Bounds()))
	if hocrPath != "" {
		if page, err = readStructure(hocrPath); err != nil {
			return err
		}
	}

	rec, closeRec, err := newRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRec()

	engine, err := newEngine(cfg, rec)
	if err != nil {
		return err
	}

	report, err := engine.ReconcilePage(ctx, page, img)
	if err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", imagePath, err)
	}

	if err := writeText(page.Render()); err != nil {
		return err
	}
	if overlayPath != "" {
		if err := writeOverlay(img, page, cfg); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"words":     len(page.Words()),
		"missing":   page.MissingCount(),
		"recovered": report.Recovered,
		"corrected": report.Corrected,
		"orphans":   len(report.Orphans),
	}).Info("Done")
	fmt.Fprintf(os.Stderr, "%d of %d words missing\n", page.MissingCount(), len(page.Words()))
	return nil
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rs, err := cfg.RuleSet()
	if err != nil {
		return err
	}
	engine := correct.NewEngine(rs, log)
	for _, c := range engine.CorrectAll(args) {
		if c.Changed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.Original, c.Text, strings.Join(c.Rules, ","))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Original, c.Text)
		}
	}
	return nil
}

// newRecognizer builds the configured backend and a function releasing it
func newRecognizer(ctx context.Context, cfg config.Config) (recognizer.Recognizer, func(), error) {
	switch cfg.Backend {
	case config.BackendDocAI:
		r, err := docai.New(ctx, cfg.DocAI, cfg.WorkDir, cfg.Compose.Separator, log)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	default:
		s, err := recognizer.NewSupervisor(cfg.SupervisorConfig(), log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func newEngine(cfg config.Config, rec recognizer.Recognizer) (*reconcile.Engine, error) {
	compositor, err := compose.NewCompositor(cfg.ComposeConfig(), log)
	if err != nil {
		return nil, err
	}
	rs, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}
	return reconcile.NewEngine(cfg.ReconcileConfig(), reconcile.Components{
		Recognizer: rec,
		Analyzer:   layout.NewProjectionAnalyzer(cfg.LayoutConfig()),
		Estimator:  baseline.NewEstimator(cfg.BaselineConfig(), log),
		Compositor: compositor,
		Corrector:  correct.NewEngine(rs, log),
	}, log)
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	log.WithFields(logrus.Fields{"image": path, "format": format, "size": img.Bounds().Size()}).Debug("Read page image")
	return img, nil
}

func readStructure(path string) (*reconcile.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hOCR file: %w", err)
	}
	doc, err := hocr.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("hOCR file %s contains no pages", path)
	}
	if len(doc.Pages) > 1 {
		log.WithField("pages", len(doc.Pages)).Warn("Using the first page of the hOCR file")
	}
	return reconcile.PageFromHOCR(doc.Pages[0]), nil
}

func writeText(text string) error {
	if textPath == "" {
		_, err := io.WriteString(os.Stdout, text)
		return err
	}
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write text output: %w", err)
	}
	log.WithField("path", textPath).Info("Text saved")
	return nil
}

func writeOverlay(img image.Image, page *reconcile.Node, cfg config.Config) error {
	oc := cfg.Overlay
	oc.Debug = oc.Debug || debugPDF
	var buf bytes.Buffer
	if _, err := overlay.Render(&buf, img, page, oc, log); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(overlayPath), 0o755); err != nil {
		return fmt.Errorf("failed to create overlay directory: %w", err)
	}
	if err := os.WriteFile(overlayPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	log.WithField("path", overlayPath).Info("Overlay saved")
	return nil
}
