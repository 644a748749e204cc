package score

import (
	"encoding/json"
	"strconv"
	"strings"
)

// coerceScore turns the shapes models actually emit into a float64:
// numbers, numeric strings, comma/semicolon-separated lists (first
// element), and JSON-encoded containers. The boolean reports whether the
// value was coercible at all.
func coerceScore(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case json.Number:
		n, err := value.Float64()
		return n, err == nil
	case string:
		return coerceString(value)
	case []any:
		if len(value) == 0 {
			return 0, false
		}
		return coerceScore(value[0])
	case map[string]any:
		// A stray single-entry wrapper like {"score": 0.5}.
		if len(value) == 1 {
			for _, inner := range value {
				return coerceScore(inner)
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// coerceString parses a numeric string, accepting separator lists and
// JSON-encoded containers by recursing on their first element.
func coerceString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, true
	}

	for _, sep := range []string{",", ";"} {
		if strings.Contains(s, sep) {
			return coerceString(strings.SplitN(s, sep, 2)[0])
		}
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return coerceScore(decoded)
		}
	}
	return 0, false
}

// coerceOrZero is the normalization-layer view of coercion: anything
// non-coercible becomes 0.0.
func coerceOrZero(v any) float64 {
	n, ok := coerceScore(v)
	if !ok {
		return 0
	}
	return n
}

// clamp bounds n to [0,1].
func clamp(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
