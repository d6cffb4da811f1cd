// Package config loads the ocrfuse YAML configuration.
//
// A file only needs the settings it changes; everything else keeps the value
// from Default. Durations are written as Go duration strings ("100ms", "20s").
//
//	backend: tesseract
//	log_level: info
//	workers: 4
//	recognizer:
//	  executable: tesseract
//	  args: ["-l", "eng"]
//	  ceiling: 20s
//	docai:
//	  project_id: "your-gcp-project-id"
//	  location: "us"
//	  processor_id: "your-processor-id"
//	correction:
//	  rules_file: rules.yaml
//	  dictionary:
//	    tothe: to the
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gardar/ocrfuse/pkg/baseline"
	"github.com/gardar/ocrfuse/pkg/compose"
	"github.com/gardar/ocrfuse/pkg/correct"
	"github.com/gardar/ocrfuse/pkg/docai"
	"github.com/gardar/ocrfuse/pkg/layout"
	"github.com/gardar/ocrfuse/pkg/overlay"
	"github.com/gardar/ocrfuse/pkg/reconcile"
	"github.com/gardar/ocrfuse/pkg/recognizer"
)

// Backends
const (
	BackendTesseract = "tesseract"
	BackendDocAI     = "docai"
)

// Duration is a time.Duration read from a duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the whole configuration file
type Config struct {
	Backend    string           `yaml:"backend"`
	LogLevel   string           `yaml:"log_level"`
	Workers    int              `yaml:"workers"`
	WorkDir    string           `yaml:"work_dir"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	DocAI      docai.Config     `yaml:"docai"`
	Layout     LayoutConfig     `yaml:"layout"`
	Baseline   BaselineConfig   `yaml:"baseline"`
	Compose    ComposeConfig    `yaml:"compose"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Correction CorrectionConfig `yaml:"correction"`
	Overlay    overlay.Config   `yaml:"overlay"`
}

// RecognizerConfig configures the recognizer process
type RecognizerConfig struct {
	Executable   string   `yaml:"executable"`
	ConfigName   string   `yaml:"config_name"`
	Args         []string `yaml:"args"`
	PollInterval Duration `yaml:"poll_interval"`
	Ceiling      Duration `yaml:"ceiling"`
	Tail         Duration `yaml:"tail"`
}

type LayoutConfig struct {
	DarkThreshold uint8   `yaml:"dark_threshold"`
	MinRowInk     int     `yaml:"min_row_ink"`
	WordGap       float64 `yaml:"word_gap"`
	MinWordWidth  int     `yaml:"min_word_width"`
	MinLineHeight int     `yaml:"min_line_height"`
}

type BaselineConfig struct {
	SlopeRatio  float64 `yaml:"slope_ratio"`
	Tolerance   int     `yaml:"tolerance"`
	InkFraction float64 `yaml:"ink_fraction"`
}

// ComposeConfig configures strip compositing. The separator is shared with
// the recognizer, which splits plain output on it.
type ComposeConfig struct {
	DPI        float64 `yaml:"dpi"`
	MinGap     float64 `yaml:"min_gap"`
	MaxGap     float64 `yaml:"max_gap"`
	Separator  string  `yaml:"separator"`
	Marker     string  `yaml:"marker"`
	ShearAngle float64 `yaml:"shear_angle"`
	Margin     int     `yaml:"margin"`
}

type ReconcileConfig struct {
	Margin         int  `yaml:"margin"`
	LineMinMissing int  `yaml:"line_min_missing"`
	LineRetry      bool `yaml:"line_retry"`
}

// CorrectionConfig selects the rule file and adds dictionary entries on top
// of it. Without a rules file the built-in rules are used.
type CorrectionConfig struct {
	RulesFile  string            `yaml:"rules_file"`
	Dictionary map[string]string `yaml:"dictionary"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	rec := recognizer.DefaultConfig()
	lay := layout.DefaultConfig()
	base := baseline.DefaultConfig()
	comp := compose.DefaultConfig()
	recon := reconcile.DefaultConfig()
	return Config{
		Backend:  BackendTesseract,
		LogLevel: "info",
		Workers:  recon.Workers,
		WorkDir:  rec.WorkDir,
		Recognizer: RecognizerConfig{
			Executable:   rec.Executable,
			ConfigName:   rec.ConfigName,
			PollInterval: Duration(rec.PollInterval),
			Ceiling:      Duration(rec.Ceiling),
			Tail:         Duration(rec.Tail),
		},
		Layout: LayoutConfig{
			DarkThreshold: lay.DarkThreshold,
			MinRowInk:     lay.MinRowInk,
			WordGap:       lay.WordGap,
			MinWordWidth:  lay.MinWordWidth,
			MinLineHeight: lay.MinLineHeight,
		},
		Baseline: BaselineConfig{
			SlopeRatio:  base.SlopeRatio,
			Tolerance:   base.Tolerance,
			InkFraction: base.InkFraction,
		},
		Compose: ComposeConfig{
			DPI:        comp.DPI,
			MinGap:     comp.MinGap,
			MaxGap:     comp.MaxGap,
			Separator:  comp.Separator,
			Marker:     comp.Marker,
			ShearAngle: comp.ShearAngle,
			Margin:     comp.Margin,
		},
		Reconcile: ReconcileConfig{
			Margin:         recon.Margin,
			LineMinMissing: recon.LineMinMissing,
			LineRetry:      recon.LineRetry,
		},
		Overlay: overlay.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendTesseract:
		if c.Recognizer.Executable == "" {
			errs = append(errs, errors.New("recognizer.executable is empty"))
		}
	case BackendDocAI:
		if err := c.DocAI.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Compose.Separator == "" {
		errs = append(errs, errors.New("compose.separator is empty"))
	}
	if c.Compose.MinGap > c.Compose.MaxGap {
		errs = append(errs, fmt.Errorf("compose.min_gap %.3f is larger than max_gap %.3f", c.Compose.MinGap, c.Compose.MaxGap))
	}
	if c.Baseline.SlopeRatio <= 0 || c.Baseline.SlopeRatio > 1 {
		errs = append(errs, fmt.Errorf("baseline.slope_ratio %.2f is outside (0, 1]", c.Baseline.SlopeRatio))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, info when it does not parse.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c Config) SupervisorConfig() recognizer.Config {
	return recognizer.Config{
		Executable:   c.Recognizer.Executable,
		ConfigName:   c.Recognizer.ConfigName,
		ExtraArgs:    c.Recognizer.Args,
		WorkDir:      c.WorkDir,
		PollInterval: time.Duration(c.Recognizer.PollInterval),
		Ceiling:      time.Duration(c.Recognizer.Ceiling),
		Tail:         time.Duration(c.Recognizer.Tail),
		Separator:    c.Compose.Separator,
	}
}

func (c Config) LayoutConfig() layout.Config {
	return layout.Config(c.Layout)
}

func (c Config) BaselineConfig() baseline.Config {
	return baseline.Config{
		SlopeRatio:    c.Baseline.SlopeRatio,
		Tolerance:     c.Baseline.Tolerance,
		InkFraction:   c.Baseline.InkFraction,
		DarkThreshold: c.Layout.DarkThreshold,
	}
}

func (c Config) ComposeConfig() compose.Config {
	return compose.Config(c.Compose)
}

func (c Config) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		Margin:         c.Reconcile.Margin,
		Workers:        c.Workers,
		LineMinMissing: c.Reconcile.LineMinMissing,
		LineRetry:      c.Reconcile.LineRetry,
	}
}

// RuleSet builds the correction rules: the rules file, or the built-in
// rules, plus the configured dictionary entries.
func (c Config) RuleSet() (*correct.RuleSet, error) {
	var (
		rs  *correct.RuleSet
		err error
	)
	if c.Correction.RulesFile != "" {
		rs, err = correct.LoadRuleSet(c.Correction.RulesFile)
	} else {
		rs, err = correct.DefaultRuleSet()
	}
	if err != nil {
		return nil, err
	}
	if len(c.Correction.Dictionary) > 0 {
		rs = rs.WithDictionary(c.Correction.Dictionary)
	}
	return rs, nil
}
