package promptstyle

import "strings"

const marker = "LEARNMATE_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to system prompts. Mode "json"
// asks for a single JSON object; anything else asks for structured prose.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou are a careful curriculum design assistant for LearnMate.")
	if first := firstLine(base); first != "" {
		b.WriteString("\nTask summary: " + first)
	}
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nUse provided inputs as grounding; do not invent course names, URLs or citations.")
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json":
		b.WriteString("\nReturn exactly one JSON object and nothing else.")
	default:
		b.WriteString("\nAnswer in Korean unless the input is in another language. Be concise and structured.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
