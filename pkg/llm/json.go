package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FallbackSummaryLength is how much of an unparseable response is kept in the
// degraded payload returned by Coerce.
const FallbackSummaryLength = 180

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// StripFences removes a single leading markdown fence line (including an optional
// language tag) and a single trailing fence. Text without a leading fence is
// returned trimmed but otherwise unchanged.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line, which may carry a language tag.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}

	trimmed = strings.TrimRight(trimmed, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code blocks, or other formatting.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	cleaned = StripFences(cleaned)

	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with openChar.
// It handles nested structures by counting bracket depth.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into the target.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}

// Coerce parses model output into a mapping without ever failing.
// A top-level array is wrapped under collection. When nothing parses, the
// degraded payload {summary: text[:180], collection: []} is returned so a single
// malformed generation cannot abort a pipeline stage.
func Coerce(text, collection string) map[string]any {
	if jsonStr, err := ExtractJSON(text); err == nil {
		var decoded any
		if err := json.Unmarshal([]byte(jsonStr), &decoded); err == nil {
			switch v := decoded.(type) {
			case map[string]any:
				return v
			case []any:
				return map[string]any{collection: v}
			}
		}
	}

	return map[string]any{
		"summary":  truncateRunes(strings.TrimSpace(text), FallbackSummaryLength),
		collection: []any{},
	}
}

// IsDegraded reports whether m is the fallback payload produced by Coerce.
func IsDegraded(m map[string]any, collection string) bool {
	if len(m) != 2 {
		return false
	}
	items, ok := m[collection].([]any)
	if !ok || len(items) != 0 {
		return false
	}
	_, ok = m["summary"].(string)
	return ok
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
