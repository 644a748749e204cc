package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"toolvet/internal/core"
)

// File names written into the output directory.
const (
	PayloadFileName   = "payload.json"
	DecisionsFileName = "decisions.jsonl"
	CSVFileName       = "report.csv"
	InvalidFileName   = "payload.invalid.json"
)

// csvHeader fixes the tabular report's column order.
var csvHeader = []string{
	"id", "tool_name", "title", "homepage",
	"A1", "A2", "A3", "A4", "A5",
	"B1", "B2", "B3", "B4", "B5",
	"bio_score", "documentation_score", "confidence_score",
	"include", "model", "attempts", "origin_types",
}

// WritePayload writes the registry payload: {"version", "entries"}.
func WritePayload(path, version string, entries []core.ToolEntry) error {
	if entries == nil {
		entries = []core.ToolEntry{}
	}
	payload := struct {
		Version string           `json:"version"`
		Entries []core.ToolEntry `json:"entries"`
	}{Version: version, Entries: entries}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// WriteDecisions writes the line-delimited decision report, one JSON
// record per candidate, sorted by candidate ID for stable output.
func WriteDecisions(path string, decisions []core.Decision) error {
	sorted := sortedDecisions(decisions)

	var sb strings.Builder
	for _, d := range sorted {
		line, err := json.Marshal(d)
		if err != nil {
			return err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// WriteCSV writes the tabular report with the fixed column set.
func WriteCSV(path string, decisions []core.Decision) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range sortedDecisions(decisions) {
		row := []string{d.ID, d.Scores.ToolName, d.Title, d.Homepage}
		for _, key := range []string{"A1", "A2", "A3", "A4", "A5"} {
			row = append(row, formatScore(d.Scores.BioSubscores[key]))
		}
		for _, key := range []string{"B1", "B2", "B3", "B4", "B5"} {
			row = append(row, formatScore(d.Scores.DocSubscores[key]))
		}
		row = append(row,
			formatScore(d.Scores.BioScore),
			formatScore(d.Scores.DocScore),
			formatScore(d.Scores.Confidence),
			strconv.FormatBool(d.Include),
			d.Scores.Model,
			strconv.Itoa(d.Scores.ModelParams.Attempts),
			strings.Join(d.Scores.OriginTypes, ";"),
		)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteInvalid writes the invalid-entry report. Callers only invoke this
// when at least one entry was rejected.
func WriteInvalid(path string, invalid []InvalidEntry) error {
	data, err := json.MarshalIndent(invalid, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// sortedDecisions returns a copy ordered by candidate ID. Worker
// completion order is nondeterministic; the reports are not.
func sortedDecisions(decisions []core.Decision) []core.Decision {
	sorted := append([]core.Decision(nil), decisions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// formatScore renders a score with the shortest exact decimal form.
func formatScore(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
