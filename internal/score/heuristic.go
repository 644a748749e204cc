package score

import (
	"strings"

	"toolvet/internal/core"
)

// HeuristicModel is the model tag carried by fallback score records.
const HeuristicModel = "heuristic"

// heuristicRationale marks fallback records in reports.
const heuristicRationale = "heuristic fallback (model unavailable or invalid output)"

// bioKeywords trigger the higher heuristic bio score when found in the
// title or tags.
var bioKeywords = []string{
	"gene", "genom", "bio", "genomics", "bioinformatics",
	"proteomics", "metabolomics",
}

const maxHeuristicDescription = 280

// HeuristicScore produces a deterministic fallback score record with the
// same shape the model path produces.
func HeuristicScore(cand *core.Candidate, origins []string) *core.ScoreRecord {
	bioValue := 0.4
	if hasBioKeyword(cand) {
		bioValue = 0.8
	}
	docValue := 0.1
	if cand.Homepage != "" {
		docValue = 0.8
	}

	bio := make(map[string]float64, len(BioKeys))
	for _, key := range BioKeys {
		bio[key] = bioValue
	}
	doc := make(map[string]float64, len(DocKeys))
	for _, key := range DocKeys {
		doc[key] = docValue
	}

	return &core.ScoreRecord{
		ToolName:           cand.Title,
		Homepage:           cand.Homepage,
		PublicationIDs:     cand.PublicationIDs,
		BioSubscores:       bio,
		DocSubscores:       doc,
		BioScore:           bioValue,
		DocScore:           docValue,
		Confidence:         0.3,
		ConciseDescription: truncate(cand.Description, maxHeuristicDescription),
		Rationale:          heuristicRationale,
		Model:              HeuristicModel,
		ModelParams:        core.ModelParams{Attempts: 0},
		OriginTypes:        origins,
	}
}

// hasBioKeyword reports whether the title or any tag contains one of the
// bio keywords, case-insensitively.
func hasBioKeyword(cand *core.Candidate) bool {
	haystack := []string{strings.ToLower(cand.Title)}
	for _, tag := range cand.Tags {
		haystack = append(haystack, strings.ToLower(tag))
	}
	for _, text := range haystack {
		for _, kw := range bioKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
