package journal

import (
	"encoding/json"
	"strings"
)

// globalRedactPatterns are key substrings that always trigger redaction.
var globalRedactPatterns = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
	"api_key",
	"apikey",
}

const redactedValue = "[REDACTED]"

// Redact replaces sensitive values in a JSON document with [REDACTED]. Keys
// are matched against the global patterns and the extra hints; objects
// nested in arrays are walked too.
func Redact(params json.RawMessage, hints []string) json.RawMessage {
	if len(params) == 0 {
		return params
	}

	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return params
	}
	out, changed := redactValue(v, hints)
	if !changed {
		return params
	}
	result, err := json.Marshal(out)
	if err != nil {
		return params
	}
	return result
}

func redactValue(v any, hints []string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		changed := false
		for key, val := range t {
			if shouldRedact(key, hints) {
				t[key] = redactedValue
				changed = true
				continue
			}
			if nv, ok := redactValue(val, hints); ok {
				t[key] = nv
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, val := range t {
			if nv, ok := redactValue(val, hints); ok {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	}
	return v, false
}

// shouldRedact checks if a key matches any global pattern or hint.
func shouldRedact(key string, hints []string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range globalRedactPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, hint := range hints {
		if strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}
