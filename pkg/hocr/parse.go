package hocr

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// ErrNoPages is returned when the markup contains no 'ocr_page' element.
var ErrNoPages = errors.New("no ocr_page elements found in hOCR data")

var lineClasses = []string{"ocr_line", "ocr_caption", "ocr_header", "ocr_textfloat"}

// Parse converts raw hOCR data into a Document.
func Parse(data []byte) (Document, error) {
	result := Document{Metadata: make(map[string]string)}

	decoded, err := decodeCharset(data)
	if err != nil {
		return result, err
	}

	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return result, fmt.Errorf("failed to parse hOCR markup: %w", err)
	}

	extractDocumentMeta(&result, doc)

	var findPages func(*html.Node)
	findPages = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_page") {
			result.Pages = append(result.Pages, processPage(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findPages(c)
		}
	}
	findPages(doc)

	if len(result.Pages) == 0 {
		return result, ErrNoPages
	}
	return result, nil
}

// decodeCharset converts ISO-8859-1 declared markup to UTF-8. Anything else is
// passed through as is.
func decodeCharset(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte("charset="))
	if idx < 0 {
		return data, nil
	}
	snippet := data[idx+len("charset="):]
	if len(snippet) > 20 {
		snippet = snippet[:20]
	}
	fields := strings.FieldsFunc(string(snippet), func(r rune) bool {
		return r == '"' || r == ';' || r == '\'' || r == '>' || r == ' ' || r == '/'
	})
	if len(fields) == 0 {
		return data, nil
	}
	switch strings.ToLower(fields[0]) {
	case "iso-8859-1", "latin1", "latin-1":
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", fields[0], err)
		}
		return decoded, nil
	case "windows-1252", "cp1252":
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", fields[0], err)
		}
		return decoded, nil
	}
	return data, nil
}

// ParseTitle breaks down an hOCR title attribute into its components
// Example input: "bbox 100 200 300 400; x_wconf 95"
func ParseTitle(title string) map[string][]string {
	result := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		items := strings.Fields(part)
		if len(items) > 0 {
			result[items[0]] = items[1:]
		}
	}
	return result
}

// ParseBoundingBoxFromTitle extracts the bbox property. Extra tokens after the
// four coordinates are ignored.
func ParseBoundingBoxFromTitle(title string) (geom.Box, bool) {
	bbox, ok := ParseTitle(title)["bbox"]
	if !ok || len(bbox) < 4 {
		return geom.Box{}, false
	}
	var coords [4]int
	for i := range coords {
		v, err := strconv.Atoi(bbox[i])
		if err != nil {
			return geom.Box{}, false
		}
		coords[i] = v
	}
	box, err := geom.NewBox(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return geom.Box{}, false
	}
	return box, true
}

// parseBaseline extracts 'baseline slope offset'
func parseBaseline(props map[string][]string) (Baseline, bool) {
	values, ok := props["baseline"]
	if !ok || len(values) < 2 {
		return Baseline{}, false
	}
	slope, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return Baseline{}, false
	}
	offset, err := strconv.ParseFloat(values[1], 64)
	if err != nil {
		return Baseline{}, false
	}
	return Baseline{Slope: slope, Offset: offset}, true
}

// extractDocumentMeta picks up the ocr-* meta entries from the head section
func extractDocumentMeta(result *Document, n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "meta" {
		name := getAttrVal(n, "name")
		content := getAttrVal(n, "content")
		if strings.HasPrefix(name, "ocr-") && content != "" {
			result.Metadata[name] = content
		}
	}
	if n.Type == html.ElementNode && n.Data == "body" {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractDocumentMeta(result, c)
	}
}

// processPage collects lines and loose words below a page element
func processPage(n *html.Node) Page {
	page := Page{ID: getAttrVal(n, "id")}
	if bbox, ok := ParseBoundingBoxFromTitle(getAttrVal(n, "title")); ok {
		page.BBox = bbox
	}

	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if isLine(node) {
				page.Lines = append(page.Lines, processLine(node))
				return
			}
			if hasClass(node, "ocrx_word") {
				if word, ok := processWord(node); ok {
					page.Words = append(page.Words, word)
				}
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c)
	}
	return page
}

// processLine extracts line geometry and its words
func processLine(n *html.Node) Line {
	line := Line{ID: getAttrVal(n, "id")}
	title := getAttrVal(n, "title")
	if bbox, ok := ParseBoundingBoxFromTitle(title); ok {
		line.BBox = bbox
	}
	line.Baseline, line.HasBaseline = parseBaseline(ParseTitle(title))

	var extractWords func(*html.Node)
	extractWords = func(node *html.Node) {
		if node.Type == html.ElementNode && hasClass(node, "ocrx_word") {
			if word, ok := processWord(node); ok {
				line.Words = append(line.Words, word)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			extractWords(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractWords(c)
	}
	return line
}

// processWord reads one word element. Words without a usable bbox or without
// text are dropped.
func processWord(n *html.Node) (Word, bool) {
	word := Word{ID: getAttrVal(n, "id")}
	title := getAttrVal(n, "title")
	bbox, ok := ParseBoundingBoxFromTitle(title)
	if !ok {
		return word, false
	}
	word.BBox = bbox
	if conf, ok := ParseTitle(title)["x_wconf"]; ok && len(conf) > 0 {
		word.Confidence, _ = strconv.ParseFloat(conf[0], 64)
	}
	word.Text = extractTextContent(n)
	word.Italic = hasElement(n, "em", "i")
	return word, word.Text != ""
}

// hasElement reports whether an element below n has one of the given tags
func hasElement(n *html.Node, tags ...string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && slices.Contains(tags, c.Data) {
			return true
		}
		if hasElement(c, tags...) {
			return true
		}
	}
	return false
}

// extractTextContent gets all text from a node and its children
func extractTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractTextContent(c))
	}
	return strings.TrimSpace(sb.String())
}

func isLine(n *html.Node) bool {
	for _, class := range lineClasses {
		if hasClass(n, class) {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Get the value of a specific attribute from a node
func getAttrVal(n *html.Node, attrName string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrName {
			return attr.Val
		}
	}
	return ""
}
