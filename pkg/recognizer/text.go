package recognizer

import (
	"strings"

	"github.com/gardar/ocrfuse/pkg/geom"
)

// SplitTokens splits plain recognizer output back into one token per source
// word. The separator is tried as emitted, lower-cased and loosely spaced
// (one space between its glyphs); when none of them occurs the text is split
// on whitespace. Empty tokens between two separators are kept so positions
// still line up with the source words.
func SplitTokens(text, separator string) []string {
	flat := strings.Join(strings.Fields(text), " ")
	if flat == "" {
		return nil
	}
	if separator != "" {
		for _, variant := range separatorVariants(separator) {
			if !strings.Contains(flat, variant) {
				continue
			}
			parts := strings.Split(flat, variant)
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return strings.Fields(flat)
}

func separatorVariants(separator string) []string {
	runes := []rune(separator)
	loose := make([]string, len(runes))
	for i, r := range runes {
		loose[i] = string(r)
	}
	return []string{separator, strings.ToLower(separator), strings.Join(loose, " ")}
}

// StripMarker removes the marker glyphs prepended for a retry. The words are
// expected to be translated already, so the prefix width has been subtracted
// from every box. A leading token equal to the marker is dropped; a leading
// word that starts with the marker loses the marker text and its box is
// clipped to the original raster.
func StripMarker(words []geom.Word, marker string) []geom.Word {
	if len(words) == 0 || marker == "" {
		return words
	}
	out := make([]geom.Word, 0, len(words))
	out = append(out, words[1:]...)

	first := words[0]
	rest, ok := cutPrefixFold(first.Text, marker)
	if !ok {
		return words
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return out
	}
	first.Text = rest
	if first.Box.Left < 0 {
		first.Box.Left = 0
	}
	if first.Box.Right < first.Box.Left {
		first.Box.Right = first.Box.Left
	}
	return append([]geom.Word{first}, out...)
}

// StripMarkerToken is StripMarker for plain tokens.
func StripMarkerToken(tokens []string, marker string) []string {
	if len(tokens) == 0 || marker == "" {
		return tokens
	}
	rest, ok := cutPrefixFold(tokens[0], marker)
	if !ok {
		return tokens
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return tokens[1:]
	}
	out := append([]string{rest}, tokens[1:]...)
	return out
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) {
		return s, false
	}
	if strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
