package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultYAML []byte

type Range struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

func (r Range) Contains(v int) bool { return v >= r.Min && v <= r.Max }

func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

type Levels struct {
	Advanced     []string `yaml:"advanced"`
	Intermediate []string `yaml:"intermediate"`
}

type Duration struct {
	Range         `yaml:",inline"`
	WeekPatterns  []string `yaml:"week_patterns"`
	MonthPatterns []string `yaml:"month_patterns"`
	WeeksPerMonth int      `yaml:"weeks_per_month"`
}

type Hours struct {
	Range    `yaml:",inline"`
	Patterns []string `yaml:"patterns"`
}

type Focus struct {
	Keywords []string `yaml:"keywords"`
	Max      int      `yaml:"max"`
	Defaults []string `yaml:"defaults"`
}

type DurationOverride struct {
	Phrases       map[string]int `yaml:"phrases"`
	WeekPatterns  []string       `yaml:"week_patterns"`
	MonthPatterns []string       `yaml:"month_patterns"`
	WeeksPerMonth int            `yaml:"weeks_per_month"`
	Min           int            `yaml:"min"`
	Max           int            `yaml:"max"`
}

type Validator struct {
	TopUpRatio       float64 `yaml:"top_up_ratio"`
	RemainderToFirst bool    `yaml:"remainder_to_first"`
}

type Resources struct {
	DocumentExtensions []string `yaml:"document_extensions"`
	BasicQuerySuffix   string   `yaml:"basic_query_suffix"`
	BasicResults       int      `yaml:"basic_results"`
	TopK               int      `yaml:"top_k"`
}

type Lecture struct {
	Concurrency     int `yaml:"concurrency"`
	MinNoteRunes    int `yaml:"min_note_runes"`
	SnippetRunes    int `yaml:"snippet_runes"`
	ConceptsPerNote int `yaml:"concepts_per_note"`
}

// Policy holds the product tables the stages consult. Compiled regexes and the
// sorted phrase table are built by Load.
type Policy struct {
	Levels           Levels           `yaml:"levels"`
	Duration         Duration         `yaml:"duration"`
	Hours            Hours            `yaml:"hours"`
	Focus            Focus            `yaml:"focus"`
	DurationOverride DurationOverride `yaml:"duration_override"`
	Validator        Validator        `yaml:"validator"`
	Resources        Resources        `yaml:"resources"`
	Lecture          Lecture          `yaml:"lecture"`

	weekRE, monthRE, hourRE         []*regexp.Regexp
	overrideWeekRE, overrideMonthRE []*regexp.Regexp
	phrases                         []phrase
}

type phrase struct {
	text  string
	weeks int
}

// Default returns the embedded policy.
func Default() *Policy {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy: %v", err))
	}
	return p
}

// Load reads a policy file, or returns the embedded default when path is empty.
// Fields absent from the file keep their embedded values.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return parseOver(defaultYAML, raw)
}

func Parse(raw []byte) (*Policy, error) {
	return parseOver(nil, raw)
}

func parseOver(base, raw []byte) (*Policy, error) {
	p := &Policy{}
	if len(base) > 0 {
		if err := yaml.Unmarshal(base, p); err != nil {
			return nil, fmt.Errorf("decode base policy: %w", err)
		}
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

func (p *Policy) Validate() error {
	if p.Duration.Min < 1 || p.Duration.Max < p.Duration.Min {
		return fmt.Errorf("policy: invalid duration range %d..%d", p.Duration.Min, p.Duration.Max)
	}
	if p.Hours.Min < 1 || p.Hours.Max < p.Hours.Min {
		return fmt.Errorf("policy: invalid hours range %d..%d", p.Hours.Min, p.Hours.Max)
	}
	if p.Validator.TopUpRatio <= 0 || p.Validator.TopUpRatio > 1 {
		return fmt.Errorf("policy: top_up_ratio must be in (0,1], got %v", p.Validator.TopUpRatio)
	}
	if p.Lecture.Concurrency < 1 {
		return fmt.Errorf("policy: lecture concurrency must be positive")
	}
	return nil
}

func (p *Policy) compile() error {
	var err error
	if p.weekRE, err = compileAll(p.Duration.WeekPatterns); err != nil {
		return err
	}
	if p.monthRE, err = compileAll(p.Duration.MonthPatterns); err != nil {
		return err
	}
	if p.hourRE, err = compileAll(p.Hours.Patterns); err != nil {
		return err
	}
	if p.overrideWeekRE, err = compileAll(p.DurationOverride.WeekPatterns); err != nil {
		return err
	}
	if p.overrideMonthRE, err = compileAll(p.DurationOverride.MonthPatterns); err != nil {
		return err
	}
	p.phrases = p.phrases[:0]
	for text, weeks := range p.DurationOverride.Phrases {
		p.phrases = append(p.phrases, phrase{text: strings.ToLower(text), weeks: weeks})
	}
	sort.Slice(p.phrases, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(p.phrases[i].text), utf8.RuneCountInString(p.phrases[j].text)
		if li != lj {
			return li > lj
		}
		return p.phrases[i].text < p.phrases[j].text
	})
	return nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("policy: bad pattern %q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}
