// Package docai is a Recognizer backed by Google Document AI.
//
// It sends each raster to an OCR processor as a PNG and converts the tokens of
// the response into positioned words, so it can stand in for the local
// recognizer process. The raw response is kept next to the raster in the
// working directory as JSON for replay.
//
// Authentication uses the GOOGLE_APPLICATION_CREDENTIALS environment variable
// unless a credentials file is configured.
package docai

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/gardar/ocrfuse/pkg/geom"
	"github.com/gardar/ocrfuse/pkg/recognizer"
)

// Config holds the Document AI processor settings
type Config struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	ProcessorID     string `yaml:"processor_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Validate reports missing processor settings.
func (c Config) Validate() error {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if c.Location == "" {
		missing = append(missing, "location")
	}
	if c.ProcessorID == "" {
		missing = append(missing, "processor_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("docai config is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// processorName builds the resource name of the processor
func (c Config) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// Recognizer sends rasters to Document AI.
type Recognizer struct {
	cfg       Config
	workDir   string
	separator string
	process   processFunc
	client    *documentai.DocumentProcessorClient
	seq       *recognizer.Sequence
	log       logrus.FieldLogger
}

// New connects to the regional Document AI endpoint. A client that cannot be
// created is reported as recognizer.ErrLaunch.
func New(ctx context.Context, cfg Config, workDir, separator string, log logrus.FieldLogger) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", recognizer.ErrLaunch, err)
	}
	credentials := cfg.CredentialsFile
	if credentials == "" {
		credentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Document AI client: %w", recognizer.ErrLaunch, err)
	}
	r, err := newRecognizer(cfg, workDir, separator, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	}, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.client = client
	return r, nil
}

func newRecognizer(cfg Config, workDir, separator string, process processFunc, log logrus.FieldLogger) (*Recognizer, error) {
	if workDir == "" {
		workDir = recognizer.DefaultConfig().WorkDir
	}
	if separator == "" {
		separator = recognizer.DefaultConfig().Separator
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &Recognizer{
		cfg:       cfg,
		workDir:   workDir,
		separator: separator,
		process:   process,
		seq:       recognizer.NewSequence(),
		log:       log.WithFields(logrus.Fields{"component": "recognizer", "backend": "docai"}),
	}, nil
}

// Close releases the client connection.
func (r *Recognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// NextBasename implements recognizer.Recognizer.
func (r *Recognizer) NextBasename(kind string) string {
	return r.seq.Next(kind)
}

// Recognize implements recognizer.Recognizer. Service errors are reported as
// recognizer.ErrIO so a single failing region does not abort the page.
func (r *Recognizer) Recognize(ctx context.Context, req recognizer.Request) (recognizer.Result, error) {
	if req.Image == nil {
		return recognizer.Result{}, fmt.Errorf("%w: no raster", recognizer.ErrIO)
	}
	if req.Basename == "" {
		req.Basename = r.NextBasename("region")
	}
	base := filepath.Join(r.workDir, req.Basename)
	log := r.log.WithFields(logrus.Fields{"basename": req.Basename, "mode": req.Mode})

	var buf bytes.Buffer
	if err := png.Encode(&buf, req.Image); err != nil {
		return recognizer.Result{}, fmt.Errorf("%w: failed to encode raster: %w", recognizer.ErrIO, err)
	}
	if err := os.WriteFile(base+".png", buf.Bytes(), 0o644); err != nil {
		return recognizer.Result{}, fmt.Errorf("%w: %w", recognizer.ErrIO, err)
	}

	started := time.Now()
	resp, err := r.process(ctx, &documentaipb.ProcessRequest{
		Name: r.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  buf.Bytes(),
				MimeType: "image/png",
			},
		},
		SkipHumanReview: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return recognizer.Result{}, ctx.Err()
		}
		return recognizer.Result{}, fmt.Errorf("%w: failed to process document: %w", recognizer.ErrIO, err)
	}

	res := recognizer.Result{Process: recognizer.ProcessResult{ExitObserved: true, OutputPath: base + ".json"}}
	doc := resp.GetDocument()
	if err := writeJSON(res.Process.OutputPath, doc); err != nil {
		log.WithError(err).Warn("Failed to keep raw response")
	}
	if doc == nil {
		return res, nil
	}

	switch req.Mode {
	case recognizer.ModePlain:
		res.Tokens = recognizer.SplitTokens(doc.GetText(), r.separator)
	default:
		for _, w := range Words(doc) {
			res.Words = append(res.Words, w.Translate(-req.Offset.X, -req.Offset.Y))
		}
	}

	log.WithFields(logrus.Fields{
		"words":   len(res.Words),
		"tokens":  len(res.Tokens),
		"elapsed": time.Since(started),
	}).Debug("Document AI finished")
	return res, nil
}

// writeJSON stores a response for replay.
func writeJSON(path string, doc *documentaipb.Document) error {
	if doc == nil {
		return nil
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Words converts the tokens of every page into words in pixel coordinates.
// Tokens without text or geometry are skipped.
func Words(doc *documentaipb.Document) []geom.Word {
	var out []geom.Word
	for _, page := range doc.GetPages() {
		for _, token := range page.GetTokens() {
			layout := token.GetLayout()
			text := strings.TrimSpace(textFromLayout(layout, doc.GetText()))
			if text == "" {
				continue
			}
			box, ok := boundingBox(layout, page.GetDimension())
			if !ok {
				continue
			}
			out = append(out, geom.Word{Text: text, Box: box})
		}
	}
	return out
}

// boundingBox returns the pixel box of a layout element. Normalized vertices
// are scaled by the page dimension; absolute vertices are used as they are.
func boundingBox(layout *documentaipb.Document_Page_Layout, dim *documentaipb.Document_Page_Dimension) (geom.Box, bool) {
	poly := layout.GetBoundingPoly()
	var xs, ys []int
	switch {
	case len(poly.GetNormalizedVertices()) > 0 && dim != nil:
		for _, v := range poly.GetNormalizedVertices() {
			xs = append(xs, int(v.GetX()*dim.GetWidth()+0.5))
			ys = append(ys, int(v.GetY()*dim.GetHeight()+0.5))
		}
	case len(poly.GetVertices()) > 0:
		for _, v := range poly.GetVertices() {
			xs = append(xs, int(v.GetX()))
			ys = append(ys, int(v.GetY()))
		}
	default:
		return geom.Box{}, false
	}

	box := geom.Box{Left: xs[0], Top: ys[0], Right: xs[0], Bottom: ys[0]}
	for i := range xs {
		box.Left = min(box.Left, xs[i])
		box.Right = max(box.Right, xs[i])
		box.Top = min(box.Top, ys[i])
		box.Bottom = max(box.Bottom, ys[i])
	}
	return box, true
}

// textFromLayout extracts text from a layout's text anchor segments
func textFromLayout(layout *documentaipb.Document_Page_Layout, fullText string) string {
	anchor := layout.GetTextAnchor()
	if anchor == nil {
		return ""
	}
	runes := []rune(fullText)
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start := max(int(seg.GetStartIndex()), 0)
		end := min(int(seg.GetEndIndex()), len(runes))
		start = min(start, end)
		sb.WriteString(string(runes[start:end]))
	}
	return sb.String()
}
