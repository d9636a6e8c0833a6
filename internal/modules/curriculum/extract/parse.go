package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError is returned when a completion does not carry a usable JSON object.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Snippet == "" {
		return "parse failed: " + e.Reason
	}
	return fmt.Sprintf("parse failed: %s (%q)", e.Reason, e.Snippet)
}

// Result is either Ok (Err == nil) with the decoded object, or ParseFailed.
type Result struct {
	Value map[string]any
	Raw   json.RawMessage
	Err   *ParseError
}

func (r Result) OK() bool { return r.Err == nil && r.Value != nil }

// Decode unmarshals the matched object into out.
func (r Result) Decode(out any) error {
	if !r.OK() {
		if r.Err != nil {
			return r.Err
		}
		return &ParseError{Reason: "empty result"}
	}
	if err := json.Unmarshal(r.Raw, out); err != nil {
		return &ParseError{Reason: "decode: " + err.Error(), Snippet: snippet(string(r.Raw))}
	}
	return nil
}

var fenceRE = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_-]+)?\\s*(.*?)```")

// ParseObject pulls one JSON object out of free-form completion text. It tries a
// strict parse, then the contents of fenced code blocks, then the first
// balanced-brace span.
func ParseObject(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return failed("empty text", "")
	}
	if r, ok := tryObject(trimmed); ok {
		return r
	}
	for _, m := range fenceRE.FindAllStringSubmatch(trimmed, -1) {
		if r, ok := tryObject(strings.TrimSpace(m[1])); ok {
			return r
		}
	}
	span, found := firstBalancedSpan(trimmed)
	if !found {
		return failed("no object span", trimmed)
	}
	if r, ok := tryObject(span); ok {
		return r
	}
	return failed("invalid json in object span", span)
}

func tryObject(s string) (Result, bool) {
	if !strings.HasPrefix(s, "{") {
		return Result{}, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return Result{}, false
	}
	// Anything after the object other than whitespace disqualifies a strict parse.
	if dec.More() {
		return Result{}, false
	}
	end := dec.InputOffset()
	return Result{Value: obj, Raw: json.RawMessage(s[:end])}, true
}

// firstBalancedSpan returns the first {...} span whose braces balance, ignoring
// braces inside string literals.
func firstBalancedSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func failed(reason, text string) Result {
	return Result{Err: &ParseError{Reason: reason, Snippet: snippet(text)}}
}

func snippet(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return string(r)
}
