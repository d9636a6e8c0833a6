package policy

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DetectLevel returns "advanced", "intermediate" or "beginner".
func (p *Policy) DetectLevel(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, p.Levels.Advanced) {
		return "advanced"
	}
	if containsAny(lower, p.Levels.Intermediate) {
		return "intermediate"
	}
	return "beginner"
}

// ExtractDuration scans for week or month counts. Values outside the range
// are rejected and the default is returned.
func (p *Policy) ExtractDuration(text string) int {
	if v, ok := firstInt(p.weekRE, text); ok && p.Duration.Contains(v) {
		return v
	}
	if v, ok := firstInt(p.monthRE, text); ok {
		weeks := v * p.weeksPerMonth(p.Duration.WeeksPerMonth)
		if p.Duration.Contains(weeks) {
			return weeks
		}
	}
	return p.Duration.Default
}

func (p *Policy) ExtractHours(text string) int {
	for _, re := range p.hourRE {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, err := strconv.Atoi(m[1]); err == nil && p.Hours.Contains(v) {
				return v
			}
		}
	}
	return p.Hours.Default
}

// ExtractFocus returns up to Focus.Max keywords found in text, in table order.
func (p *Policy) ExtractFocus(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range p.Focus.Keywords {
		if len(out) >= p.Focus.Max {
			break
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), p.Focus.Defaults...)
	}
	return out
}

// OverrideDuration finds an explicit duration phrase in a user message. Table
// phrases are tried longest first; a phrase starting with a digit never matches
// right after another digit. The result is clamped to the override range.
func (p *Policy) OverrideDuration(message string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return 0, false
	}
	for _, ph := range p.phrases {
		if matchPhrase(lower, ph.text) {
			return p.clampOverride(ph.weeks), true
		}
	}
	if v, ok := firstInt(p.overrideWeekRE, lower); ok {
		return p.clampOverride(v), true
	}
	if v, ok := firstInt(p.overrideMonthRE, lower); ok {
		return p.clampOverride(v * p.weeksPerMonth(p.DurationOverride.WeeksPerMonth)), true
	}
	return 0, false
}

func (p *Policy) clampOverride(v int) int {
	r := Range{Min: p.DurationOverride.Min, Max: p.DurationOverride.Max}
	return r.Clamp(v)
}

func (p *Policy) weeksPerMonth(v int) int {
	if v <= 0 {
		return 4
	}
	return v
}

// IsDocumentURL reports whether the URL path ends in a document extension.
func (p *Policy) IsDocumentURL(rawURL string) bool {
	u := strings.ToLower(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	for _, ext := range p.Resources.DocumentExtensions {
		if strings.HasSuffix(u, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func matchPhrase(text, ph string) bool {
	digitLead := false
	if r, _ := utf8.DecodeRuneInString(ph); unicode.IsDigit(r) {
		digitLead = true
	}
	from := 0
	for {
		i := strings.Index(text[from:], ph)
		if i < 0 {
			return false
		}
		at := from + i
		if !digitLead || at == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:at])
		if !unicode.IsDigit(prev) {
			return true
		}
		from = at + len(ph)
	}
}

func firstInt(res []*regexp.Regexp, text string) (int, bool) {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
