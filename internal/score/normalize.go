package score

import (
	"strings"

	"toolvet/internal/core"
	"toolvet/internal/scrape"
)

// Normalize turns a schema-valid model response into the final score
// record. All coercion lives here; downstream code only ever sees the
// record.
func Normalize(resp map[string]any, cand *core.Candidate, model string, diag Diagnostics, origins []string) *core.ScoreRecord {
	bio := coerceSubscores(resp["bio_subscores"], BioKeys)
	doc := coerceSubscores(resp["documentation_subscores"], DocKeys)

	rec := &core.ScoreRecord{
		ToolName:           stringField(resp, "tool_name", cand.Title),
		BioSubscores:       bio,
		DocSubscores:       doc,
		BioScore:           clamp(mean(bio, BioKeys)),
		DocScore:           clamp(weightedDocScore(doc)),
		Confidence:         clamp(coerceOrZero(resp["confidence_score"])),
		ConciseDescription: stringField(resp, "concise_description", ""),
		Rationale:          stringField(resp, "rationale", ""),
		Model:              model,
		ModelParams: core.ModelParams{
			Attempts:        diag.Attempts,
			SchemaErrors:    diag.SchemaErrors,
			PromptAugmented: diag.PromptAugmented,
		},
		OriginTypes: origins,
	}

	rec.PublicationIDs = pickPublicationIDs(resp, cand)
	rec.Homepage = pickHomepage(resp, cand)
	return rec
}

// coerceSubscores coerces a subscore mapping, defaulting every required
// key and dropping nothing the model sent.
func coerceSubscores(value any, required []string) map[string]float64 {
	out := make(map[string]float64, len(required))
	m, _ := value.(map[string]any)
	for key, v := range m {
		out[key] = coerceOrZero(v)
	}
	for _, key := range required {
		if _, ok := out[key]; !ok {
			out[key] = 0
		}
	}
	return out
}

// mean averages the required keys of a subscore map.
func mean(scores map[string]float64, keys []string) float64 {
	if len(keys) == 0 {
		return 0
	}
	sum := 0.0
	for _, key := range keys {
		sum += scores[key]
	}
	return sum / float64(len(keys))
}

// weightedDocScore computes the weighted documentation mean. When none of
// the weighted keys is present it falls back to the arithmetic mean of
// whatever the map holds.
func weightedDocScore(scores map[string]float64) float64 {
	sum, weight := 0.0, 0.0
	for _, key := range DocKeys {
		if v, ok := scores[key]; ok {
			sum += v * docWeights[key]
			weight += docWeights[key]
		}
	}
	if weight > 0 {
		return sum / weight
	}

	if len(scores) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return total / float64(len(scores))
}

// pickPublicationIDs prefers the model's list, falling back to the
// candidate's identifiers when the model returned none.
func pickPublicationIDs(resp map[string]any, cand *core.Candidate) []string {
	list, _ := resp["publication_ids"].([]any)
	var ids []string
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			ids = core.MergeIDs(ids, s)
		}
	}
	if len(ids) > 0 {
		return ids
	}
	return cand.PublicationIDs
}

// pickHomepage prefers the model's homepage unless it is empty or a
// probable publication URL; the output homepage is never a publication
// URL.
func pickHomepage(resp map[string]any, cand *core.Candidate) string {
	homepage, _ := resp["homepage"].(string)
	homepage = strings.TrimSpace(homepage)
	if homepage != "" && !scrape.IsProbablePublicationURL(homepage) {
		return homepage
	}
	return cand.Homepage
}

// stringField reads a string key, substituting fallback for missing or
// blank values.
func stringField(resp map[string]any, key, fallback string) string {
	if s, ok := resp[key].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
