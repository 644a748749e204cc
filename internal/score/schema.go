package score

import (
	"fmt"
	"sort"
)

// BioKeys and DocKeys are the required rubric subscore keys.
var (
	BioKeys = []string{"A1", "A2", "A3", "A4", "A5"}
	DocKeys = []string{"B1", "B2", "B3", "B4", "B5"}
)

// docWeights weight the documentation subscores; completeness (B1) and
// onboarding (B5) count double.
var docWeights = map[string]float64{
	"B1": 2, "B2": 1, "B3": 1, "B4": 1, "B5": 2,
}

// responseShape maps every allowed top-level response key to a shape
// checker. The response must contain exactly this key set.
var responseShape = map[string]func(any) string{
	"tool_name":               wantString,
	"homepage":                wantString,
	"publication_ids":         wantStringList,
	"bio_subscores":           nil, // checked by checkSubscores
	"documentation_subscores": nil,
	"confidence_score":        wantConfidence,
	"concise_description":     wantString,
	"rationale":               wantString,
}

// ValidateResponse checks a parsed model reply against the response
// schema and returns human-readable errors, empty on success.
func ValidateResponse(resp map[string]any) []string {
	var errs []string

	var keys []string
	for key := range responseShape {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, ok := resp[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing required key %q", key))
			continue
		}
		if check := responseShape[key]; check != nil {
			if msg := check(value); msg != "" {
				errs = append(errs, fmt.Sprintf("%s: %s", key, msg))
			}
		}
	}

	var extras []string
	for key := range resp {
		if _, ok := responseShape[key]; !ok {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		errs = append(errs, fmt.Sprintf("unexpected key %q", key))
	}

	errs = append(errs, checkSubscores(resp["bio_subscores"], "bio_subscores", BioKeys)...)
	errs = append(errs, checkSubscores(resp["documentation_subscores"], "documentation_subscores", DocKeys)...)
	return errs
}

// checkSubscores verifies a subscore mapping: required keys present and
// every value, required or extra, numeric (or coercible to a number).
func checkSubscores(value any, name string, required []string) []string {
	if value == nil {
		return nil // missing-key error already reported
	}
	m, ok := value.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("%s: must be an object, got %T", name, value)}
	}

	var errs []string
	for _, key := range required {
		v, present := m[key]
		if !present {
			errs = append(errs, fmt.Sprintf("%s: missing required key %q", name, key))
			continue
		}
		if _, ok := coerceScore(v); !ok {
			errs = append(errs, fmt.Sprintf("%s.%s: value %v is not a number", name, key, v))
		}
	}

	var extras []string
	for key := range m {
		if !contains(required, key) {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		if _, ok := coerceScore(m[key]); !ok {
			errs = append(errs, fmt.Sprintf("%s.%s: value %v is not a number", name, key, m[key]))
		}
	}
	return errs
}

func wantString(v any) string {
	if _, ok := v.(string); !ok {
		return fmt.Sprintf("must be a string, got %T", v)
	}
	return ""
}

func wantStringList(v any) string {
	list, ok := v.([]any)
	if !ok {
		return fmt.Sprintf("must be a list of strings, got %T", v)
	}
	for i, item := range list {
		if _, ok := item.(string); !ok {
			return fmt.Sprintf("element %d must be a string, got %T", i, item)
		}
	}
	return ""
}

func wantConfidence(v any) string {
	n, ok := coerceScore(v)
	if !ok {
		return fmt.Sprintf("must be a number, got %v", v)
	}
	if n < 0 || n > 1 {
		return fmt.Sprintf("must lie in [0,1], got %g", n)
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
