package advisor

import (
	"encoding/json"
	"strings"
)

// extractJSONArray returns the first balanced top-level JSON array in text.
// Brackets inside string literals are ignored. ok is false when no complete
// array is present.
func extractJSONArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	for start >= 0 {
		if end, ok := matchBracket(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBracket(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ParseSuggestions decodes model output into suggestions. Output without a
// usable JSON array yields an empty list rather than an error; entries
// without a name are dropped and unknown priorities become optional.
func ParseSuggestions(text string) []FormSuggestion {
	raw, ok := extractJSONArray(text)
	if !ok {
		return []FormSuggestion{}
	}

	var decoded []FormSuggestion
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return []FormSuggestion{}
	}

	suggestions := make([]FormSuggestion, 0, len(decoded))
	for _, s := range decoded {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			continue
		}
		s.Priority = normalizePriority(s.Priority)
		suggestions = append(suggestions, s)
	}
	return suggestions
}
