package timeline

import (
	"strconv"
	"strings"
	"unicode"
)

// normalizeKey folds camelCase, kebab-case and dotted keys into snake_case so
// "webResearch", "web-research" and "web_research" address the same field.
func normalizeKey(key string) string {
	trimmed := strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(trimmed) + 4)
	var prev rune
	for i, r := range trimmed {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// normalizePayload returns a copy of value with every nested map key passed
// through normalizeKey. Scalars are returned unchanged.
func normalizePayload(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[normalizeKey(key)] = normalizePayload(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizePayload(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizePayload(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	default:
		return value
	}
}

func asMap(value any) map[string]any {
	if typed, ok := value.(map[string]any); ok {
		return typed
	}
	return nil
}

func firstString(payload map[string]any, keys ...string) string {
	if payload == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// rawString is firstString without trimming; used where the exact input
// length matters.
func rawString(payload map[string]any, keys ...string) string {
	if payload == nil {
		return ""
	}
	for _, key := range keys {
		if typed, ok := payload[key].(string); ok && typed != "" {
			return typed
		}
	}
	return ""
}

func firstBool(payload map[string]any, keys ...string) (bool, bool) {
	if payload == nil {
		return false, false
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case bool:
			return typed, true
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
				return parsed, true
			}
		}
	}
	return false, false
}

// readList returns the first list-like value found under keys.
func readList(payload map[string]any, keys ...string) ([]any, bool) {
	if payload == nil {
		return nil, false
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case []any:
			return typed, true
		}
	}
	return nil, false
}

// readQueryList collects query strings from a list whose items are either
// plain strings or objects carrying a "query" field.
func readQueryList(payload map[string]any, keys ...string) ([]string, bool) {
	raw, ok := readList(payload, keys...)
	if !ok {
		return nil, false
	}
	results := make([]string, 0, len(raw))
	for _, item := range raw {
		var text string
		switch typed := item.(type) {
		case string:
			text = typed
		case map[string]any:
			text = firstString(typed, "query", "text", "value")
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		results = append(results, trimmed)
	}
	return results, true
}

// countResults counts list items, descending one level into nested lists.
func countResults(raw []any) int {
	count := 0
	for _, item := range raw {
		if nested, ok := item.([]any); ok {
			count += len(nested)
			continue
		}
		count++
	}
	return count
}
