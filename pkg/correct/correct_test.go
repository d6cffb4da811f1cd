package correct

import (
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	rs, err := DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet() error = %v", err)
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewEngine(rs, l)
}

func TestCorrect(t *testing.T) {
	tests := []struct {
		token   string
		want    string
		changed bool
		rule    string
	}{
		{"3I°48E).", "31°48E).", true, "numeric-block"},
		{"l0", "10", true, "numeric-block"},
		{"19O5,", "1905,", true, "numeric-block"},
		{"M,", "M,", false, ""},
		{"J,Smith", "J.Smith", true, "initial-comma"},
		{"D0nald", "Donald", true, "capitalized-name"},
		{"McD0nald", "McDonald", true, "capitalized-name"},
		{"Macd0nald", "Macdonald", true, "capitalized-name"},
		{"wi1l", "will", true, "lowercase-word"},
		{"|n", "In", true, "leading-bar"},
		{"ofthe", "of the", true, "dictionary"},
		{"Jan5", "Jan5", false, ""},
		{"Smith", "Smith", false, ""},
		{"1905", "1905", false, ""},
	}
	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := e.Correct(tt.token)
			if got.Text != tt.want || got.Changed != tt.changed {
				t.Fatalf("Correct(%q) = %q (changed %v), want %q (changed %v)", tt.token, got.Text, got.Changed, tt.want, tt.changed)
			}
			if got.Original != tt.token {
				t.Errorf("Original = %q, want %q", got.Original, tt.token)
			}
			if tt.rule != "" && (len(got.Rules) == 0 || got.Rules[0] != tt.rule) {
				t.Errorf("Rules = %v, want %s first", got.Rules, tt.rule)
			}
		})
	}
}

func TestCorrectShortTokensUntouched(t *testing.T) {
	e := newTestEngine(t)
	for _, token := range []string{"", "I", "l", "|", "0", "°"} {
		if got := e.Correct(token); got.Changed || got.Text != token {
			t.Errorf("Correct(%q) = %+v, want unchanged", token, got)
		}
	}
}

func TestCorrectIsFixedPoint(t *testing.T) {
	e := newTestEngine(t)
	for _, token := range []string{"3I°48E).", "McD0nald", "wi1l", "|n", "ofthe", "J,Smith", "l|O1", "c0rn5", "|nthe", "t0the", "fr0mthe", "Macd0nald"} {
		first := e.Correct(token)
		second := e.Correct(first.Text)
		if second.Changed || second.Text != first.Text {
			t.Errorf("Correct(%q) = %q, corrected again = %q", token, first.Text, second.Text)
		}
	}
}

func TestRuleOutputLooksUpDictionary(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		token string
		want  string
	}{
		{"|nthe", "In the"},
		{"t0the", "to the"},
		{"fr0mthe", "from the"},
	}
	for _, tt := range tests {
		got := e.Correct(tt.token)
		if got.Text != tt.want || !got.Changed {
			t.Errorf("Correct(%q) = %+v, want %q", tt.token, got, tt.want)
		}
		if n := len(got.Rules); n < 2 || got.Rules[n-1] != "dictionary" {
			t.Errorf("Correct(%q).Rules = %v, want a rule followed by dictionary", tt.token, got.Rules)
		}
	}
}

func TestDictionaryCheckedFirst(t *testing.T) {
	rs, err := ParseRuleSet([]byte(`
dictionary:
  wi1l: "WILL"
rules:
  - name: digits
    pattern: '^[a-z]([a-z1]*)[a-z]$'
    replace: {"1": "l"}
`))
	if err != nil {
		t.Fatalf("ParseRuleSet() error = %v", err)
	}
	got := NewEngine(rs, nil).Correct("wi1l")
	if got.Text != "WILL" || strings.Join(got.Rules, ",") != "dictionary" {
		t.Errorf("Correct() = %+v, want dictionary hit", got)
	}
}

func TestRuleApplyOnlyInsideGroups(t *testing.T) {
	r := Rule{
		Name:    "groups",
		Pattern: regexp.MustCompile(`^I(I+)I$`),
		Replace: map[rune]string{'I': "1"},
	}
	if got, ok := r.Apply("IIII"); !ok || got != "I11I" {
		t.Errorf("Apply() = %q, %v", got, ok)
	}

	whole := Rule{Name: "whole", Pattern: regexp.MustCompile(`^O+$`), Replace: map[rune]string{'O': "0"}}
	if got, _ := whole.Apply("OOO"); got != "000" {
		t.Errorf("Apply() without groups = %q", got)
	}
}

func TestRuleSetIsImmutable(t *testing.T) {
	replace := map[rune]string{'O': "0"}
	dict := map[string]string{"ofthe": "of the"}
	rs, err := NewRuleSet([]Rule{{Name: "o", Pattern: regexp.MustCompile(`^([0-9O]+)$`), Replace: replace}}, dict)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}
	replace['O'] = "X"
	dict["ofthe"] = "changed"

	if got, _ := rs.Rules()[0].Apply("1O"); got != "10" {
		t.Errorf("rule changed after construction: %q", got)
	}
	if got, _ := rs.Lookup("ofthe"); got != "of the" {
		t.Errorf("dictionary changed after construction: %q", got)
	}

	extended := rs.WithDictionary(map[string]string{"tothe": "to the"})
	if _, ok := rs.Lookup("tothe"); ok {
		t.Error("WithDictionary modified the original set")
	}
	if got, ok := extended.Lookup("tothe"); !ok || got != "to the" {
		t.Errorf("extended Lookup() = %q, %v", got, ok)
	}
}

func TestParseRuleSetErrors(t *testing.T) {
	tests := map[string]string{
		"bad pattern":  "rules:\n  - pattern: '('\n    replace: {a: b}\n",
		"bad guard":    "rules:\n  - pattern: 'a'\n    prefix_guard: '('\n    replace: {a: b}\n",
		"long key":     "rules:\n  - pattern: 'a'\n    replace: {ab: c}\n",
		"no replace":   "rules:\n  - pattern: 'a'\n",
		"invalid yaml": "rules: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRuleSet([]byte(doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
