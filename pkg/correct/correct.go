// Package correct fixes characters the recognizer commonly confuses, using
// an ordered list of context-guarded substitution rules and a whole-token
// dictionary.
package correct

import (
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the rule chain; a stable token is reached long before.
const maxPasses = 8

// Correction is the outcome for one token. Original is kept as provenance.
type Correction struct {
	Original string
	Text     string
	Changed  bool
	Rules    []string // names of the rules that fired, "dictionary" for a dictionary hit
}

// Engine applies a RuleSet to tokens. It holds no mutable state.
type Engine struct {
	rules *RuleSet
	log   logrus.FieldLogger
}

// NewEngine creates an engine for rs.
func NewEngine(rs *RuleSet, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{rules: rs, log: log.WithField("component", "correct")}
}

// Correct returns the corrected token. Tokens shorter than two characters
// are returned as they are. The dictionary is checked first and after every
// rule that fires, and a hit is final; otherwise the rules run in order,
// repeatedly, until the token stops changing, so correcting a corrected
// token is a no-op.
func (e *Engine) Correct(token string) Correction {
	c := Correction{Original: token, Text: token}
	if utf8.RuneCountInString(token) < 2 {
		return c
	}

	text := norm.NFC.String(token)
	if fixed, ok := e.rules.Lookup(text); ok {
		return e.finish(c, fixed, []string{"dictionary"})
	}

	var fired []string
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, rule := range e.rules.rules {
			out, ok := rule.Apply(text)
			if !ok {
				continue
			}
			text = out
			changed = true
			fired = append(fired, rule.Name)
			// a rule may produce a dictionary key
			if fixed, ok := e.rules.Lookup(text); ok {
				return e.finish(c, fixed, append(fired, "dictionary"))
			}
		}
		if !changed {
			break
		}
	}
	return e.finish(c, text, fired)
}

func (e *Engine) finish(c Correction, text string, rules []string) Correction {
	c.Text = text
	c.Changed = text != c.Original
	c.Rules = rules
	if c.Changed {
		e.logChange(c)
	}
	return c
}

// CorrectAll corrects every token in order.
func (e *Engine) CorrectAll(tokens []string) []Correction {
	out := make([]Correction, len(tokens))
	for i, t := range tokens {
		out[i] = e.Correct(t)
	}
	return out
}

func (e *Engine) logChange(c Correction) {
	e.log.WithFields(logrus.Fields{
		"original":  c.Original,
		"corrected": c.Text,
		"rules":     c.Rules,
	}).Debug("Corrected token")
}
