package prompt

import (
	"os"
	"strings"

	"toolvet/internal/core"
)

// originOrder fixes the order in which provenance labels are reported.
var originOrder = []string{
	"title",
	"description",
	"homepage",
	"documentation",
	"repository",
	"tags",
	"publication",
	"publication_abstract",
	"publication_full_text",
	"publication_full_text_url",
	"publication_ids",
}

// LoadTemplate reads a prompt template override from path, or returns the
// embedded default when path is empty.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Build renders the scoring prompt for one candidate and reports which
// candidate fields contributed evidence. Substitution is substring-only:
// exactly the named {placeholder} tokens are replaced, all other braces
// pass through untouched.
func Build(cand *core.Candidate, template string) (string, []string) {
	replacer := strings.NewReplacer(
		"{title}", cand.Title,
		"{description}", cand.Description,
		"{homepage}", cand.Homepage,
		"{homepage_status}", cand.HomepageStatus.String(),
		"{homepage_error}", cand.HomepageError,
		"{documentation}", formatDocumentation(cand.Documentation),
		"{documentation_keywords}", strings.Join(cand.DocKeywords, ", "),
		"{repository}", cand.Repository,
		"{tags}", strings.Join(cand.Tags, ", "),
		"{published_at}", cand.PublishedAt,
		"{publication_abstract}", cand.PublicationAbstract,
		"{publication_full_text}", cand.PublicationFullText,
		"{publication_ids}", strings.Join(cand.PublicationIDs, ", "),
		"{json_schema}", ResponseSchema,
	)
	return replacer.Replace(template), originTypes(cand)
}

// formatDocumentation renders documentation links one per line as
// "url (type)".
func formatDocumentation(links []core.DocLink) string {
	var lines []string
	for _, link := range links {
		if link.Type != "" {
			lines = append(lines, link.URL+" ("+link.Type+")")
			continue
		}
		lines = append(lines, link.URL)
	}
	return strings.Join(lines, "\n")
}

// originTypes returns the provenance labels for every non-empty prompt
// input, in fixed order.
func originTypes(cand *core.Candidate) []string {
	present := map[string]bool{
		"title":                     cand.Title != "",
		"description":               cand.Description != "",
		"homepage":                  cand.Homepage != "",
		"documentation":             len(cand.Documentation) > 0,
		"repository":                cand.Repository != "",
		"tags":                      len(cand.Tags) > 0,
		"publication":               len(cand.Publication) > 0,
		"publication_abstract":      cand.PublicationAbstract != "",
		"publication_full_text":     cand.PublicationFullText != "",
		"publication_full_text_url": cand.PublicationFullTextURL != "",
		"publication_ids":           len(cand.PublicationIDs) > 0,
	}

	var origins []string
	for _, label := range originOrder {
		if present[label] {
			origins = append(origins, label)
		}
	}
	return origins
}
