package oracle

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 256 * 1024 // 256KB
)

// ExtractJSON isolates the JSON object in a model reply. Models occasionally
// wrap the payload in markdown fences or prepend commentary despite the
// prompt contract, so the extractor tolerates both.
func ExtractJSON(content string) (string, error) {
	if len(content) > maxContentLen {
		return "", fmt.Errorf("content too large")
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("content invalid utf8")
	}

	s := strings.TrimSpace(content)
	if s == "" {
		return "", fmt.Errorf("empty content")
	}

	// strip a single markdown code fence if present
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no json object found")
	}

	// scan for the matching close brace, skipping braces inside strings
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
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced json object")
}
