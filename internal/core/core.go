package core

import "strings"

// PublicationRef is a single publication identifier record attached to a candidate.
// All fields are optional; a ref is useful as long as one identifier is present.
type PublicationRef struct {
	Pmcid   string `json:"pmcid,omitempty"`   // PubMed Central identifier (e.g., "PMC6612828")
	Pmid    string `json:"pmid,omitempty"`    // PubMed identifier
	Doi     string `json:"doi,omitempty"`     // Digital Object Identifier
	Type    string `json:"type,omitempty"`    // Publication type (e.g., "Primary")
	Note    string `json:"note,omitempty"`    // Free-text note carried from upstream
	Version string `json:"version,omitempty"` // Tool version the publication describes
}

// DocLink is a documentation or related link discovered upstream or by scraping.
type DocLink struct {
	URL  string `json:"url"`            // Absolute URL
	Type string `json:"type,omitempty"` // Link type label (e.g., "User manual")
}

// Candidate is one software tool flowing through the pipeline. It is mutable
// during enrichment and must be treated as frozen once scoring starts.
type Candidate struct {
	ID                     string           `json:"id"`                                  // Stable identifier assigned at ingestion
	Title                  string           `json:"title"`                               // Tool name
	Description            string           `json:"description,omitempty"`               // Upstream description text
	Homepage               string           `json:"homepage,omitempty"`                  // Primary homepage URL
	URLs                   []string         `json:"urls,omitempty"`                      // All candidate URLs in upstream order
	Tags                   []string         `json:"tags,omitempty"`                      // Merged ontology terms, first-seen order
	Publication            []PublicationRef `json:"publication,omitempty"`               // Ordered publication identifier records
	PublicationIDs         []string         `json:"publication_ids,omitempty"`           // "kind:value" pairs, unique
	PublishedAt            string           `json:"published_at,omitempty"`              // Upstream publication date, verbatim
	Documentation          []DocLink        `json:"documentation,omitempty"`             // Documentation links
	Repository             string           `json:"repository,omitempty"`                // Source repository URL
	DocKeywords            []string         `json:"doc_keywords,omitempty"`              // Sorted documentation keywords found on the homepage
	HomepageStatus         StatusCode       `json:"homepage_status"`                     // HTTP status or failure label, null until a scrape was attempted
	HomepageError          string           `json:"homepage_error,omitempty"`            // Short scrape error description
	HomepageScraped        bool             `json:"homepage_scraped"`                    // Whether the homepage scrape succeeded
	HomepageFilteredURL    string           `json:"homepage_filtered_url,omitempty"`     // Publication URL rejected during homepage selection
	PublicationAbstract    string           `json:"publication_abstract,omitempty"`      // Abstract text from the literature service
	PublicationFullText    string           `json:"publication_full_text,omitempty"`     // Truncated full text from the literature service
	PublicationFullTextURL string           `json:"publication_full_text_url,omitempty"` // Full-text URL when the text itself was not fetched
}

// ModelParams records how the model arrived at a score.
type ModelParams struct {
	Attempts        int        `json:"attempts"`                // Total generate calls made for this candidate
	SchemaErrors    [][]string `json:"schema_errors,omitempty"` // Validation errors per failed attempt
	PromptAugmented bool       `json:"prompt_augmented"`        // Whether a repair prompt was sent
}

// ScoreRecord is the validated, normalized output of one scoring run.
// It is never mutated after creation.
type ScoreRecord struct {
	ToolName           string             `json:"tool_name"`                 // Tool name as reported by the model
	Homepage           string             `json:"homepage,omitempty"`        // Homepage chosen for output
	PublicationIDs     []string           `json:"publication_ids,omitempty"` // "kind:value" pairs chosen for output
	BioSubscores       map[string]float64 `json:"bio_subscores"`             // Rubric items A1..A5
	DocSubscores       map[string]float64 `json:"documentation_subscores"`   // Rubric items B1..B5
	BioScore           float64            `json:"bio_score"`                 // Mean of bio subscores, clamped to [0,1]
	DocScore           float64            `json:"documentation_score"`       // Weighted mean of documentation subscores
	Confidence         float64            `json:"confidence_score"`          // Model self-reported confidence, clamped to [0,1]
	ConciseDescription string             `json:"concise_description"`       // Model-written one-paragraph description
	Rationale          string             `json:"rationale"`                 // Model-written scoring rationale
	Model              string             `json:"model"`                     // Model name, or "heuristic" for fallback scores
	ModelParams        ModelParams        `json:"model_params"`              // Retry diagnostics
	OriginTypes        []string           `json:"origin_types,omitempty"`    // Candidate fields that informed the prompt
}

// Decision pairs a candidate with its score and the inclusion verdict.
type Decision struct {
	ID             string       `json:"id"`                        // Candidate ID
	Title          string       `json:"title"`                     // Candidate title
	Homepage       string       `json:"homepage,omitempty"`        // Homepage used for the inclusion check
	PublicationIDs []string     `json:"publication_ids,omitempty"` // Identifier pairs at decision time
	Scores         *ScoreRecord `json:"scores"`                    // The score record
	Include        bool         `json:"include"`                   // Whether the tool passed the thresholds
}

// ToolEntry is one registry-ready entry in the output payload.
type ToolEntry struct {
	Name          string              `json:"name"`                    // Tool name (required)
	Description   string              `json:"description"`             // Concise description (required)
	Homepage      string              `json:"homepage"`                // Homepage URL (required)
	Publication   []map[string]string `json:"publication,omitempty"`   // Identifier records with lowercase keys
	Documentation []DocLink           `json:"documentation,omitempty"` // Documentation links
	Link          []DocLink           `json:"link,omitempty"`          // Other related links
	Tags          []string            `json:"tags,omitempty"`          // Ontology terms carried through
}

// IDs returns the identifier pairs of a publication ref in priority order
// (pmcid, pmid, doi), formatted as "kind:value".
func (p PublicationRef) IDs() []string {
	var ids []string
	if p.Pmcid != "" {
		ids = append(ids, "pmcid:"+p.Pmcid)
	}
	if p.Pmid != "" {
		ids = append(ids, "pmid:"+p.Pmid)
	}
	if p.Doi != "" {
		ids = append(ids, "doi:"+p.Doi)
	}
	return ids
}

// IsEmpty reports whether the ref carries no identifier at all.
func (p PublicationRef) IsEmpty() bool {
	return p.Pmcid == "" && p.Pmid == "" && p.Doi == ""
}

// MergeIDs appends identifier pairs to existing, keeping upstream order and
// dropping case-insensitive duplicates. The first spelling seen is preserved.
func MergeIDs(existing []string, add ...string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	for _, id := range existing {
		seen[strings.ToLower(id)] = true
	}
	for _, id := range add {
		key := strings.ToLower(id)
		if id == "" || seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, id)
	}
	return existing
}
