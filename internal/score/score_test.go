package score

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"toolvet/internal/core"
	"toolvet/internal/ollama"
)

// validResponse builds a schema-valid model reply; override mutates it.
func validResponse(override func(map[string]any)) map[string]any {
	resp := map[string]any{
		"tool_name":       "GenomeTool",
		"homepage":        "https://tool.example",
		"publication_ids": []any{"pmid:12345"},
		"bio_subscores": map[string]any{
			"A1": 1.0, "A2": 1.0, "A3": 1.0, "A4": 1.0, "A5": 1.0,
		},
		"documentation_subscores": map[string]any{
			"B1": 1.0, "B2": 0.5, "B3": 0.5, "B4": 0.0, "B5": 1.0,
		},
		"confidence_score":    0.9,
		"concise_description": "A genome tool.",
		"rationale":           "Well documented.",
	}
	if override != nil {
		override(resp)
	}
	return resp
}

func TestValidateResponseAccepts(t *testing.T) {
	if errs := ValidateResponse(validResponse(nil)); len(errs) != 0 {
		t.Errorf("valid response rejected: %v", errs)
	}
}

func TestValidateResponseErrors(t *testing.T) {
	tests := []struct {
		name     string
		override func(map[string]any)
		wantSub  string
	}{
		{"missing key", func(m map[string]any) { delete(m, "rationale") }, `missing required key "rationale"`},
		{"extra key", func(m map[string]any) { m["extra"] = 1 }, `unexpected key "extra"`},
		{"tool_name type", func(m map[string]any) { m["tool_name"] = 7 }, "tool_name: must be a string"},
		{"ids type", func(m map[string]any) { m["publication_ids"] = "pmid:1" }, "publication_ids: must be a list"},
		{"ids element", func(m map[string]any) { m["publication_ids"] = []any{1} }, "element 0 must be a string"},
		{"subscore missing", func(m map[string]any) {
			m["bio_subscores"] = map[string]any{"A1": 1.0}
		}, `bio_subscores: missing required key "A2"`},
		{"subscore invalid", func(m map[string]any) {
			m["documentation_subscores"].(map[string]any)["B5"] = "invalid"
		}, "documentation_subscores.B5"},
		{"subscore extra non-numeric", func(m map[string]any) {
			m["bio_subscores"].(map[string]any)["A6"] = "wat"
		}, "bio_subscores.A6"},
		{"confidence range", func(m map[string]any) { m["confidence_score"] = 1.5 }, "must lie in [0,1]"},
		{"confidence type", func(m map[string]any) { m["confidence_score"] = true }, "confidence_score: must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateResponse(validResponse(tt.override))
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.wantSub) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", errs, tt.wantSub)
			}
		})
	}
}

func TestCoerceScore(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.0, 1, true},
		{"0.5", 0.5, true},
		{" 1 ", 1, true},
		{"1,0.5,0", 1, true},
		{"0.5;1", 0.5, true},
		{"[0.5, 1]", 0.5, true},
		{[]any{0.5, 1.0}, 0.5, true},
		{map[string]any{"score": "1"}, 1, true},
		{"invalid", 0, false},
		{"", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := coerceScore(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("coerceScore(%v) = (%g, %v), want (%g, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeAggregates(t *testing.T) {
	cand := &core.Candidate{Title: "T", Homepage: "https://cand.example"}
	resp := validResponse(func(m map[string]any) {
		m["documentation_subscores"] = map[string]any{
			"B1": 1.0, "B2": 0.0, "B3": 0.0, "B4": 0.0, "B5": 1.0,
		}
	})
	rec := Normalize(resp, cand, "llama3.1:8b", Diagnostics{Attempts: 1}, []string{"title"})

	if rec.BioScore != 1.0 {
		t.Errorf("bio_score = %g, want 1.0", rec.BioScore)
	}
	want := 4.0 / 7.0
	if math.Abs(rec.DocScore-want) > 1e-9 {
		t.Errorf("documentation_score = %g, want %g", rec.DocScore, want)
	}
	if rec.Model != "llama3.1:8b" || rec.ModelParams.Attempts != 1 {
		t.Errorf("diagnostics not carried: %+v", rec)
	}
}

func TestNormalizeCoercesStrings(t *testing.T) {
	resp := validResponse(func(m map[string]any) {
		m["bio_subscores"] = map[string]any{
			"A1": "1", "A2": "0.5", "A3": "0,1", "A4": 0.5, "A5": "0",
		}
		m["confidence_score"] = "0.7"
	})
	rec := Normalize(resp, &core.Candidate{}, "m", Diagnostics{}, nil)
	if rec.BioSubscores["A2"] != 0.5 || rec.BioSubscores["A3"] != 0 {
		t.Errorf("subscores = %v", rec.BioSubscores)
	}
	if rec.Confidence != 0.7 {
		t.Errorf("confidence = %g", rec.Confidence)
	}
}

func TestNormalizeHomepagePreference(t *testing.T) {
	cand := &core.Candidate{Homepage: "https://cand.example"}

	rec := Normalize(validResponse(nil), cand, "m", Diagnostics{}, nil)
	if rec.Homepage != "https://tool.example" {
		t.Errorf("model homepage preferred: got %q", rec.Homepage)
	}

	rec = Normalize(validResponse(func(m map[string]any) {
		m["homepage"] = "https://doi.org/10.1000/x"
	}), cand, "m", Diagnostics{}, nil)
	if rec.Homepage != "https://cand.example" {
		t.Errorf("publication URL must fall back to candidate: got %q", rec.Homepage)
	}

	rec = Normalize(validResponse(func(m map[string]any) {
		m["homepage"] = ""
	}), cand, "m", Diagnostics{}, nil)
	if rec.Homepage != "https://cand.example" {
		t.Errorf("empty homepage must fall back to candidate: got %q", rec.Homepage)
	}
}

func TestNormalizePublicationIDsFallback(t *testing.T) {
	cand := &core.Candidate{PublicationIDs: []string{"doi:10.1/x"}}
	rec := Normalize(validResponse(func(m map[string]any) {
		m["publication_ids"] = []any{}
	}), cand, "m", Diagnostics{}, nil)
	if len(rec.PublicationIDs) != 1 || rec.PublicationIDs[0] != "doi:10.1/x" {
		t.Errorf("publication_ids = %v", rec.PublicationIDs)
	}
}

func TestWeightedDocScoreFallback(t *testing.T) {
	// No weighted key present: arithmetic mean over what exists.
	got := weightedDocScore(map[string]float64{"X1": 1, "X2": 0})
	if got != 0.5 {
		t.Errorf("fallback mean = %g, want 0.5", got)
	}
	if got := weightedDocScore(nil); got != 0 {
		t.Errorf("empty map = %g, want 0", got)
	}
}

// scriptedGenerator returns canned responses/errors in order.
type scriptedGenerator struct {
	resps   []map[string]any
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (map[string]any, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i >= len(g.resps) {
		i = len(g.resps) - 1
	}
	return g.resps[i], g.errs[i]
}

func TestRetrySucceedsSecondAttempt(t *testing.T) {
	bad := validResponse(func(m map[string]any) {
		m["documentation_subscores"].(map[string]any)["B5"] = "invalid"
	})
	gen := &scriptedGenerator{
		resps: []map[string]any{bad, validResponse(nil)},
		errs:  []error{nil, nil},
	}

	resp, diag, err := RunWithRetries(context.Background(), gen, "base prompt", 2)
	if err != nil {
		t.Fatalf("RunWithRetries failed: %v", err)
	}
	if resp == nil || diag.Attempts != 2 || !diag.PromptAugmented {
		t.Errorf("diag = %+v", diag)
	}
	if len(diag.SchemaErrors) != 1 {
		t.Errorf("schema_errors = %v", diag.SchemaErrors)
	}
	second := gen.prompts[1]
	if !strings.HasPrefix(second, "base prompt") {
		t.Errorf("repair prompt must extend the base prompt: %q", second)
	}
	if !strings.Contains(second, repairPreface) || !strings.Contains(second, "- documentation_subscores.B5") {
		t.Errorf("repair prompt missing error bullets: %q", second)
	}
}

func TestRetryTransportFailsFast(t *testing.T) {
	gen := &scriptedGenerator{
		resps: []map[string]any{nil},
		errs:  []error{&ollama.TransportError{Op: "generate", Err: errors.New("refused")}},
	}
	_, diag, err := RunWithRetries(context.Background(), gen, "p", 3)
	if !errors.Is(err, ollama.ErrModelUnreachable) {
		t.Errorf("expected ErrModelUnreachable, got %v", err)
	}
	if diag.Attempts != 1 || len(gen.prompts) != 1 {
		t.Errorf("transport failure must not retry: %+v", diag)
	}
}

func TestRetryExhaustion(t *testing.T) {
	bad := validResponse(func(m map[string]any) { delete(m, "rationale") })
	gen := &scriptedGenerator{
		resps: []map[string]any{bad, bad, bad},
		errs:  []error{nil, nil, nil},
	}
	_, diag, err := RunWithRetries(context.Background(), gen, "p", 2)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	var retryErr *RetryError
	if !errors.As(err, &retryErr) || retryErr.Attempts != 3 {
		t.Errorf("retry error = %+v", retryErr)
	}
	if diag.Attempts != 3 || len(diag.SchemaErrors) != 3 {
		t.Errorf("diag = %+v", diag)
	}
}

func TestRetryBoundZero(t *testing.T) {
	gen := &scriptedGenerator{
		resps: []map[string]any{nil},
		errs:  []error{&ollama.ParseError{Raw: "garbage"}},
	}
	_, diag, err := RunWithRetries(context.Background(), gen, "p", 0)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected exhaustion, got %v", err)
	}
	if diag.Attempts != 1 || diag.PromptAugmented {
		t.Errorf("single attempt must not augment: %+v", diag)
	}
}

func TestHeuristicScore(t *testing.T) {
	bio := &core.Candidate{
		Title:       "GenomeAligner",
		Description: strings.Repeat("x", 300),
		Homepage:    "https://tool.example",
	}
	rec := HeuristicScore(bio, []string{"title", "homepage"})
	if rec.BioScore != 0.8 || rec.DocScore != 0.8 {
		t.Errorf("scores = %g/%g, want 0.8/0.8", rec.BioScore, rec.DocScore)
	}
	if rec.Model != HeuristicModel {
		t.Errorf("model = %q", rec.Model)
	}
	if len(rec.ConciseDescription) != 280 {
		t.Errorf("description length = %d, want 280", len(rec.ConciseDescription))
	}

	plain := &core.Candidate{Title: "CSV Wrangler"}
	rec = HeuristicScore(plain, nil)
	if rec.BioScore != 0.4 || rec.DocScore != 0.1 {
		t.Errorf("scores = %g/%g, want 0.4/0.1", rec.BioScore, rec.DocScore)
	}

	tagged := &core.Candidate{Title: "Wrangler", Tags: []string{"ProteomicS"}}
	if rec := HeuristicScore(tagged, nil); rec.BioScore != 0.8 {
		t.Errorf("tag keyword not matched: %g", rec.BioScore)
	}
}

// TestHeuristicShapeMatchesValidator round-trips the heuristic record
// through the response validator the model path uses.
func TestHeuristicShapeMatchesValidator(t *testing.T) {
	rec := HeuristicScore(&core.Candidate{Title: "T", Homepage: "https://t.example", Description: "d"}, nil)

	resp := map[string]any{
		"tool_name":               rec.ToolName,
		"homepage":                rec.Homepage,
		"publication_ids":         []any{},
		"bio_subscores":           anyMap(rec.BioSubscores),
		"documentation_subscores": anyMap(rec.DocSubscores),
		"confidence_score":        rec.Confidence,
		"concise_description":     rec.ConciseDescription,
		"rationale":               rec.Rationale,
	}
	if errs := ValidateResponse(resp); len(errs) != 0 {
		t.Errorf("heuristic record fails the validator: %v", errs)
	}
}

func anyMap(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
