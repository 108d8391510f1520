package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// fencePattern matches a markdown code fence with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\n?(.*?)\n?```")

// ExtractJSON pulls a JSON value out of a model reply. Models wrap JSON in
// code fences or surround it with prose; fenced json (or untagged) blocks win,
// then the first balanced object or array in the raw text.
func ExtractJSON(response string) (string, error) {
	for _, match := range fencePattern.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		body := strings.TrimSpace(match[2])
		if json.Valid([]byte(body)) {
			return body, nil
		}
	}

	if raw, ok := extractRawJSON(response); ok {
		return raw, nil
	}

	return "", fmt.Errorf("no valid JSON value found in response")
}

// ExtractJSONAs extracts JSON and unmarshals it into T.
func ExtractJSONAs[T any](response string) (T, error) {
	var result T

	raw, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ParseObject extracts a JSON object from response and checks that it holds
// every required key. When exact is set, extra keys are rejected too.
// Failures are parse errors and therefore retryable.
func ParseObject(response string, exact bool, required ...string) (map[string]any, error) {
	obj, err := ExtractJSONAs[map[string]any](response)
	if err != nil {
		return nil, NewParseError("reply is not a JSON object", err)
	}

	var missing []string
	for _, key := range required {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, NewParseError(fmt.Sprintf("reply is missing keys %v", missing), nil)
	}

	if exact && len(obj) != len(required) {
		var extra []string
		for key := range obj {
			if !contains(required, key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		return nil, NewParseError(fmt.Sprintf("reply has unexpected keys %v", extra), nil)
	}

	return obj, nil
}

// StringField returns obj[key] rendered as a string. Non-string JSON values
// are re-encoded so numbers and booleans keep their literal form.
func StringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func extractRawJSON(response string) (string, bool) {
	for start := 0; start < len(response); start++ {
		c := response[start]
		if c != '{' && c != '[' {
			continue
		}
		candidate := matchBracket(response[start:])
		if candidate != "" && json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// matchBracket returns the prefix of s up to the bracket closing s[0],
// skipping brackets inside string literals.
func matchBracket(s string) string {
	open := s[0]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
