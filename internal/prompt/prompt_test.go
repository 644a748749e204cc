package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"toolvet/internal/core"
)

func sampleCandidate() *core.Candidate {
	return &core.Candidate{
		Title:          "GenomeTool",
		Description:    "Aligns genomes.",
		Homepage:       "https://tool.example",
		HomepageStatus: core.HTTPStatus(200),
		Documentation: []core.DocLink{
			{URL: "https://tool.example/manual", Type: "User manual"},
			{URL: "https://tool.example/install"},
		},
		DocKeywords:    []string{"install", "tutorial"},
		Repository:     "https://github.com/org/tool",
		Tags:           []string{"genomics", "alignment"},
		PublicationIDs: []string{"pmid:12345"},
		Publication:    []core.PublicationRef{{Pmid: "12345"}},
	}
}

func TestBuildSubstitutesNamedPlaceholders(t *testing.T) {
	out, _ := Build(sampleCandidate(), "Tool: {title} at {homepage}, status {homepage_status}")
	want := "Tool: GenomeTool at https://tool.example, status 200"
	if out != want {
		t.Errorf("Build = %q, want %q", out, want)
	}
}

func TestBuildLeavesLiteralBraces(t *testing.T) {
	out, _ := Build(sampleCandidate(), "Scores are one of {0, 0.5, 1}; name: {title}; {unknown} stays")
	if !strings.Contains(out, "{0, 0.5, 1}") {
		t.Errorf("literal brace set was mangled: %q", out)
	}
	if !strings.Contains(out, "{unknown} stays") {
		t.Errorf("unknown placeholder must pass through: %q", out)
	}
}

func TestBuildFormatsDocumentation(t *testing.T) {
	out, _ := Build(sampleCandidate(), "{documentation}")
	want := "https://tool.example/manual (User manual)\nhttps://tool.example/install"
	if out != want {
		t.Errorf("documentation block = %q, want %q", out, want)
	}
}

func TestBuildStatusLabel(t *testing.T) {
	cand := sampleCandidate()
	cand.HomepageStatus = core.FailureStatus(core.StatusTimeout)
	out, _ := Build(cand, "{homepage_status}")
	if out != "timeout" {
		t.Errorf("status = %q, want timeout", out)
	}
}

func TestBuildEmbedsSchema(t *testing.T) {
	out, _ := Build(sampleCandidate(), DefaultTemplate)
	if !strings.Contains(out, `"bio_subscores"`) {
		t.Error("default template must embed the response schema")
	}
	if strings.Contains(out, "{json_schema}") {
		t.Error("json_schema placeholder left unsubstituted")
	}
}

func TestOriginTypesOrderAndPresence(t *testing.T) {
	cand := sampleCandidate()
	cand.PublicationAbstract = "An abstract."
	_, origins := Build(cand, DefaultTemplate)
	want := []string{
		"title", "description", "homepage", "documentation", "repository",
		"tags", "publication", "publication_abstract", "publication_ids",
	}
	if len(origins) != len(want) {
		t.Fatalf("origins = %v, want %v", origins, want)
	}
	for i := range want {
		if origins[i] != want[i] {
			t.Errorf("origins[%d] = %q, want %q", i, origins[i], want[i])
		}
	}
}

func TestOriginTypesMinimalCandidate(t *testing.T) {
	_, origins := Build(&core.Candidate{Title: "Bare"}, DefaultTemplate)
	if len(origins) != 1 || origins[0] != "title" {
		t.Errorf("origins = %v, want [title]", origins)
	}
}

func TestLoadTemplate(t *testing.T) {
	if tmpl, err := LoadTemplate(""); err != nil || tmpl != DefaultTemplate {
		t.Errorf("empty path must return the embedded default (err=%v)", err)
	}

	path := filepath.Join(t.TempDir(), "custom.txt")
	if err := os.WriteFile(path, []byte("custom {title}"), 0644); err != nil {
		t.Fatal(err)
	}
	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	if tmpl != "custom {title}" {
		t.Errorf("template = %q", tmpl)
	}

	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing template file")
	}
}
