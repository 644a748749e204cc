package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"toolvet/internal/core"
	"toolvet/internal/ollama"
	"toolvet/internal/score"
)

// nopScraper marks every candidate as scraped without network access.
type nopScraper struct{}

func (nopScraper) ScrapeInto(_ context.Context, cand *core.Candidate) {
	if cand.Homepage == "" {
		return
	}
	cand.HomepageStatus = core.HTTPStatus(200)
	cand.HomepageScraped = true
}

// stubModel is a frozen model client: fixed health, scripted responses.
type stubModel struct {
	healthErr error
	calls     atomic.Int32
	respond   func(attempt int32, prompt string) (map[string]any, error)
}

func (m *stubModel) Healthy(context.Context) error { return m.healthErr }
func (m *stubModel) Model() string                 { return "stub-model" }

func (m *stubModel) Generate(_ context.Context, prompt string) (map[string]any, error) {
	return m.respond(m.calls.Add(1), prompt)
}

func validResponse(name string) map[string]any {
	return map[string]any{
		"tool_name":       name,
		"homepage":        "https://" + name + ".example",
		"publication_ids": []any{},
		"bio_subscores": map[string]any{
			"A1": 1.0, "A2": 1.0, "A3": 1.0, "A4": 1.0, "A5": 1.0,
		},
		"documentation_subscores": map[string]any{
			"B1": 1.0, "B2": 1.0, "B3": 1.0, "B4": 1.0, "B5": 1.0,
		},
		"confidence_score":    0.9,
		"concise_description": "desc",
		"rationale":           "because",
	}
}

func writeInput(t *testing.T, records string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.json")
	if err := os.WriteFile(path, []byte(records), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseOptions(t *testing.T, input string) Options {
	return Options{
		InputFile:     input,
		OutputDir:     t.TempDir(),
		Concurrency:   2,
		SchemaRetries: 1,
		MinBioScore:   0.5,
		MinDocScore:   0.4,
	}
}

func TestRunEmptyStream(t *testing.T) {
	input := writeInput(t, `[]`)
	model := &stubModel{respond: func(int32, string) (map[string]any, error) {
		return validResponse("x"), nil
	}}
	p := New(nopScraper{}, nil, model)

	result, err := p.Run(context.Background(), baseOptions(t, input))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Decisions) != 0 || result.Stats.Included != 0 {
		t.Errorf("empty stream produced output: %+v", result)
	}
}

func TestRunScoresAndIncludes(t *testing.T) {
	input := writeInput(t, `[
		{"title": "GoodTool", "homepage": "https://goodtool.example"},
		{"title": "Homeless"}
	]`)
	model := &stubModel{respond: func(_ int32, prompt string) (map[string]any, error) {
		resp := validResponse("scored")
		resp["homepage"] = "" // force fallback to candidate homepage
		return resp, nil
	}}
	p := New(nopScraper{}, nil, model)

	result, err := p.Run(context.Background(), baseOptions(t, input))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(result.Decisions))
	}
	byTitle := make(map[string]core.Decision)
	for _, d := range result.Decisions {
		byTitle[d.Title] = d
	}
	if !byTitle["GoodTool"].Include {
		t.Error("GoodTool should be included")
	}
	if byTitle["Homeless"].Include {
		t.Error("a candidate without a homepage must never be included")
	}
	if result.Stats.Scored != 2 || result.Stats.Included != 1 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestRunUnhealthyModelDowngradesWholeRun(t *testing.T) {
	input := writeInput(t, `[
		{"title": "GenomeTool", "homepage": "https://g.example"},
		{"title": "PlainTool", "homepage": "https://p.example"}
	]`)
	model := &stubModel{
		healthErr: &ollama.TransportError{Op: "probe", Err: errors.New("HTTP 503")},
		respond: func(int32, string) (map[string]any, error) {
			t.Error("generate must not be called when the probe fails")
			return nil, nil
		},
	}
	p := New(nopScraper{}, nil, model)

	result, err := p.Run(context.Background(), baseOptions(t, input))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stats.Fallbacks != 2 || result.Stats.Scored != 0 {
		t.Errorf("stats = %+v", result.Stats)
	}
	for _, d := range result.Decisions {
		if d.Scores.Model != score.HeuristicModel {
			t.Errorf("%s scored by %q, want heuristic", d.Title, d.Scores.Model)
		}
		switch d.Title {
		case "GenomeTool":
			if d.Scores.BioScore != 0.8 {
				t.Errorf("bio-keyworded title bio_score = %g, want 0.8", d.Scores.BioScore)
			}
		case "PlainTool":
			if d.Scores.BioScore != 0.4 {
				t.Errorf("plain title bio_score = %g, want 0.4", d.Scores.BioScore)
			}
		}
	}
}

func TestRunPerCandidateFallback(t *testing.T) {
	input := writeInput(t, `[{"title": "Flaky", "homepage": "https://f.example"}]`)
	model := &stubModel{respond: func(int32, string) (map[string]any, error) {
		return nil, &ollama.ParseError{Raw: "garbage"}
	}}
	p := New(nopScraper{}, nil, model)

	opts := baseOptions(t, input)
	opts.SchemaRetries = 1
	result, err := p.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	d := result.Decisions[0]
	if d.Scores.Model != score.HeuristicModel {
		t.Errorf("model = %q, want heuristic", d.Scores.Model)
	}
	if d.Scores.ModelParams.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (retry diagnostics preserved)", d.Scores.ModelParams.Attempts)
	}
	if result.Stats.Fallbacks != 1 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestRunSchemaRepairRetry(t *testing.T) {
	input := writeInput(t, `[{"title": "Repairable", "homepage": "https://r.example"}]`)
	model := &stubModel{respond: func(attempt int32, _ string) (map[string]any, error) {
		if attempt == 1 {
			bad := validResponse("Repairable")
			bad["documentation_subscores"].(map[string]any)["B5"] = "invalid"
			return bad, nil
		}
		return validResponse("Repairable"), nil
	}}
	p := New(nopScraper{}, nil, model)

	result, err := p.Run(context.Background(), baseOptions(t, input))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	d := result.Decisions[0]
	if d.Scores.ModelParams.Attempts != 2 || !d.Scores.ModelParams.PromptAugmented {
		t.Errorf("model_params = %+v", d.Scores.ModelParams)
	}
	if d.Scores.BioScore != 1.0 {
		t.Errorf("bio_score = %g, want 1.0", d.Scores.BioScore)
	}
}

func TestRunDeterministicAtKOne(t *testing.T) {
	input := writeInput(t, `[
		{"title": "A", "homepage": "https://a.example"},
		{"title": "B", "homepage": "https://b.example"},
		{"title": "C", "homepage": "https://c.example"}
	]`)

	run := func() []byte {
		model := &stubModel{respond: func(_ int32, prompt string) (map[string]any, error) {
			resp := validResponse("fixed")
			resp["homepage"] = ""
			return resp, nil
		}}
		opts := baseOptions(t, input)
		opts.Concurrency = 1
		result, err := New(nopScraper{}, nil, model).Run(context.Background(), opts)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		// Strip the per-run IDs and timings before comparing.
		var titles []string
		for _, d := range result.Decisions {
			titles = append(titles, d.Title)
		}
		data, _ := json.Marshal(titles)
		return data
	}

	if first, second := run(), run(); string(first) != string(second) {
		t.Errorf("K=1 runs differ: %s vs %s", first, second)
	}
}

func TestRunDryRun(t *testing.T) {
	input := writeInput(t, `[{"title": "T", "homepage": "https://t.example"}]`)
	model := &stubModel{respond: func(int32, string) (map[string]any, error) {
		t.Error("dry run must not call the model")
		return nil, nil
	}}
	opts := baseOptions(t, input)
	opts.DryRun = true

	result, err := New(nopScraper{}, nil, model).Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Decisions) != 0 || len(result.Candidates) != 1 {
		t.Errorf("dry run result = %+v", result)
	}
	if _, err := os.Stat(filepath.Join(opts.OutputDir, EnrichedFileName)); !os.IsNotExist(err) {
		t.Error("dry run must not write the enriched cache")
	}
}

func TestRunWritesAndResumesEnriched(t *testing.T) {
	input := writeInput(t, `[{"title": "Cached", "homepage": "https://c.example"}]`)
	model := &stubModel{respond: func(int32, string) (map[string]any, error) {
		return validResponse("Cached"), nil
	}}
	opts := baseOptions(t, input)

	if _, err := New(nopScraper{}, nil, model).Run(context.Background(), opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(opts.OutputDir, EnrichedFileName))
	if err != nil {
		t.Fatalf("enriched cache missing: %v", err)
	}
	var cached []*core.Candidate
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("enriched cache unparseable: %v", err)
	}
	if len(cached) != 1 || !cached[0].HomepageScraped {
		t.Errorf("cached candidates = %+v", cached)
	}

	// Resume: input file is ignored, the cache is authoritative.
	opts.InputFile = "does-not-exist.json"
	opts.ResumeFromEnriched = true
	result, err := New(nopScraper{}, nil, model).Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if len(result.Decisions) != 1 || result.Decisions[0].Title != "Cached" {
		t.Errorf("resumed decisions = %+v", result.Decisions)
	}
}

func TestRunLimit(t *testing.T) {
	input := writeInput(t, `[
		{"title": "A", "homepage": "https://a.example"},
		{"title": "B", "homepage": "https://b.example"}
	]`)
	model := &stubModel{respond: func(int32, string) (map[string]any, error) {
		return validResponse("x"), nil
	}}
	opts := baseOptions(t, input)
	opts.Limit = 1

	result, err := New(nopScraper{}, nil, model).Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Decisions) != 1 {
		t.Errorf("limit ignored: %d decisions", len(result.Decisions))
	}
}
