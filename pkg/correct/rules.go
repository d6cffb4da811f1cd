package correct

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is a whole-token pattern with a single-character replacement map.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	PrefixGuard *regexp.Regexp // optional, matched at the start and left untouched
	Replace     map[rune]string
}

// Apply runs the rule on token and reports whether it changed anything. When
// the prefix guard matches, the pattern is tried on the rest of the token
// first and on the whole token if the rest does not match.
func (r Rule) Apply(token string) (string, bool) {
	prefix, rest := "", token
	if r.PrefixGuard != nil {
		if loc := r.PrefixGuard.FindStringIndex(token); loc != nil && loc[0] == 0 {
			prefix, rest = token[:loc[1]], token[loc[1]:]
		}
	}

	m := r.Pattern.FindStringSubmatchIndex(rest)
	if m == nil && prefix != "" {
		// the guard only protects a prefix the pattern cannot match around
		prefix, rest = "", token
		m = r.Pattern.FindStringSubmatchIndex(rest)
	}
	if m == nil {
		return token, false
	}

	// byte ranges eligible for substitution
	var spans [][2]int
	if len(m) == 2 {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			spans = append(spans, [2]int{m[i], m[i+1]})
		}
	}
	inSpan := func(pos int) bool {
		for _, s := range spans {
			if pos >= s[0] && pos < s[1] {
				return true
			}
		}
		return false
	}

	out := make([]byte, 0, len(token))
	out = append(out, prefix...)
	changed := false
	for pos, ch := range rest {
		if repl, ok := r.Replace[ch]; ok && inSpan(pos) {
			out = append(out, repl...)
			changed = true
			continue
		}
		out = utf8.AppendRune(out, ch)
	}
	if !changed {
		return token, false
	}
	return string(out), true
}

// RuleSet is an ordered list of rules plus a whole-token dictionary. It is
// immutable once built and safe to share between engines and goroutines.
type RuleSet struct {
	rules      []Rule
	dictionary map[string]string
}

// NewRuleSet copies rules and dictionary into a new set.
func NewRuleSet(rules []Rule, dictionary map[string]string) (*RuleSet, error) {
	for i, r := range rules {
		if r.Pattern == nil {
			return nil, fmt.Errorf("rule %d (%s) has no pattern", i, r.Name)
		}
		if len(r.Replace) == 0 {
			return nil, fmt.Errorf("rule %d (%s) has no replacements", i, r.Name)
		}
	}
	rs := &RuleSet{
		rules:      make([]Rule, len(rules)),
		dictionary: maps.Clone(dictionary),
	}
	for i, r := range rules {
		r.Replace = maps.Clone(r.Replace)
		rs.rules[i] = r
	}
	if rs.dictionary == nil {
		rs.dictionary = map[string]string{}
	}
	return rs, nil
}

// Rules returns a copy of the rules in application order.
func (rs *RuleSet) Rules() []Rule {
	return slices.Clone(rs.rules)
}

// Lookup returns the dictionary correction for token, if any.
func (rs *RuleSet) Lookup(token string) (string, bool) {
	v, ok := rs.dictionary[token]
	return v, ok
}

// WithDictionary returns a new set with extra dictionary entries. Existing
// entries with the same key are replaced.
func (rs *RuleSet) WithDictionary(extra map[string]string) *RuleSet {
	dict := maps.Clone(rs.dictionary)
	maps.Copy(dict, extra)
	return &RuleSet{rules: rs.rules, dictionary: dict}
}

type ruleFile struct {
	Dictionary map[string]string `yaml:"dictionary"`
	Rules      []ruleSpec        `yaml:"rules"`
}

type ruleSpec struct {
	Name        string            `yaml:"name"`
	Pattern     string            `yaml:"pattern"`
	PrefixGuard string            `yaml:"prefix_guard"`
	Replace     map[string]string `yaml:"replace"`
}

// ParseRuleSet builds a rule set from its YAML form.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, def := range file.Rules {
		name := def.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		pattern, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", name, err)
		}
		rule := Rule{Name: name, Pattern: pattern, Replace: make(map[rune]string, len(def.Replace))}
		if def.PrefixGuard != "" {
			if rule.PrefixGuard, err = regexp.Compile(def.PrefixGuard); err != nil {
				return nil, fmt.Errorf("rule %s: invalid prefix guard: %w", name, err)
			}
		}
		for from, to := range def.Replace {
			if utf8.RuneCountInString(from) != 1 {
				return nil, fmt.Errorf("rule %s: replacement key %q is not a single character", name, from)
			}
			r, _ := utf8.DecodeRuneInString(from)
			rule.Replace[r] = to
		}
		rules = append(rules, rule)
	}
	return NewRuleSet(rules, file.Dictionary)
}

// LoadRuleSet reads a YAML rule file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRuleSet(data)
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRules)
}
