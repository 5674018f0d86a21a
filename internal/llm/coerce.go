package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CoerceJSON turns a model reply into a JSON object. It tries, in order:
// parsing after stripping code fences, parsing the first balanced {...}
// substring, and finally an empty object with the parse failure attached.
func CoerceJSON(raw string) (map[string]any, error) {
	cleaned := stripFences(strings.TrimSpace(raw))

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
		return data, nil
	}

	if sub := firstObject(cleaned); sub != "" {
		if err := json.Unmarshal([]byte(sub), &data); err == nil {
			return data, nil
		}
	}

	return map[string]any{}, fmt.Errorf("reply is not valid JSON")
}

// stripFences removes a surrounding markdown code fence when present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Language tag on the opening fence
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstObject extracts the first brace-balanced object, skipping braces
// inside string literals.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
				return s[start : i+1]
			}
		}
	}
	return ""
}
