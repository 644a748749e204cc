package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"toolvet/internal/core"
	"toolvet/internal/logger"

	"github.com/google/uuid"
)

// RawRecord is one candidate as produced by the discovery engine. The
// upstream format is loose; every field is optional and malformed values
// are tolerated.
type RawRecord struct {
	Title       string            `json:"title"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Homepage    string            `json:"homepage"`
	URLs        []string          `json:"urls"`
	Link        []json.RawMessage `json:"link"`
	Tags        []string          `json:"tags"`
	Topic       []OntologyTerm    `json:"topic"`
	Data        []OntologyTerm    `json:"data"`
	Operation   []OntologyTerm    `json:"operation"`
	Format      []OntologyTerm    `json:"format"`
	Function    []FunctionBlock   `json:"function"`
	Publication []PublicationRaw  `json:"publication"`
	PublishedAt string            `json:"published_at"`
}

// OntologyTerm is an EDAM-style ontology reference; any of the three name
// fields may carry the human-readable label.
type OntologyTerm struct {
	Term  string `json:"term"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// FunctionBlock groups an operation with its input and output ports.
type FunctionBlock struct {
	Operation []OntologyTerm `json:"operation"`
	Input     []IOPort       `json:"input"`
	Output    []IOPort       `json:"output"`
}

// IOPort is one input or output of a function.
type IOPort struct {
	Data   OntologyTerm   `json:"data"`
	Format []OntologyTerm `json:"format"`
}

// PublicationRaw is a publication identifier record with loosely cased keys.
type PublicationRaw struct {
	Pmcid   string `json:"pmcid"`
	Pmid    string `json:"pmid"`
	Doi     string `json:"doi"`
	Type    string `json:"type"`
	Note    string `json:"note"`
	Version string `json:"version"`
}

// Stats counts what happened during one ingestion pass.
type Stats struct {
	Total   int // Raw records seen
	Dropped int // Records without a usable title
	Deduped int // Records removed as duplicates
	Kept    int // Candidates produced
}

// Load reads candidate records from a JSON file. The file may contain a
// bare array or a {"list": [...]} envelope.
func Load(path string) ([]RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates file: %w", err)
	}

	var records []RawRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var envelope struct {
		List []RawRecord `json:"list"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("candidates file %s is neither a JSON array nor a {list: [...]} object: %w", path, err)
	}
	return envelope.List, nil
}

// Normalize turns raw records into candidates: title selection, primary
// homepage selection, ontology tag merge, publication identifier
// derivation, and (title, homepage) deduplication. Malformed records are
// skipped, never fatal.
func Normalize(raws []RawRecord) ([]*core.Candidate, Stats) {
	stats := Stats{Total: len(raws)}
	seen := make(map[string]bool, len(raws))
	var out []*core.Candidate

	for _, raw := range raws {
		cand, ok := normalizeOne(raw)
		if !ok {
			stats.Dropped++
			continue
		}
		key := dedupKey(cand.Title, cand.Homepage)
		if seen[key] {
			stats.Deduped++
			logger.Debug("Dropping duplicate candidate", "title", cand.Title, "homepage", cand.Homepage)
			continue
		}
		seen[key] = true
		out = append(out, cand)
	}

	stats.Kept = len(out)
	return out, stats
}

// normalizeOne builds a single candidate, returning false when the record
// has no usable title.
func normalizeOne(raw RawRecord) (*core.Candidate, bool) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = strings.TrimSpace(raw.Name)
	}
	if title == "" {
		return nil, false
	}

	cand := &core.Candidate{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(raw.Description),
		PublishedAt: raw.PublishedAt,
	}

	// Candidate URL list: homepage first, then urls and link entries in
	// upstream order. The primary homepage is the first http(s) entry.
	urls := collectURLs(raw)
	for _, u := range urls {
		if normalized, ok := normalizeCandidateURL(u); ok && cand.Homepage == "" {
			cand.Homepage = normalized
		}
	}
	cand.URLs = urls

	cand.Tags = mergeTags(raw)
	cand.Publication = convertPublications(raw.Publication)
	for _, ref := range cand.Publication {
		cand.PublicationIDs = core.MergeIDs(cand.PublicationIDs, ref.IDs()...)
	}

	return cand, true
}

// collectURLs gathers every URL mentioned on the record, preserving order.
// link entries may be plain strings or {url: ...} objects.
func collectURLs(raw RawRecord) []string {
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}

	add(raw.Homepage)
	for _, u := range raw.URLs {
		add(u)
	}
	for _, msg := range raw.Link {
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			add(s)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(msg, &obj); err == nil {
			add(obj.URL)
		}
	}
	return urls
}

// normalizeCandidateURL accepts http(s) URLs and rewrites protocol-relative
// ones to https.
func normalizeCandidateURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, true
	}
	return "", false
}

// mergeTags folds upstream tags and every ontology term label into one
// list, lowercase-deduplicated in first-seen order.
func mergeTags(raw RawRecord) []string {
	var tags []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if seen[key] {
			return
		}
		seen[key] = true
		tags = append(tags, s)
	}
	addTerm := func(t OntologyTerm) {
		add(t.Term)
		add(t.Label)
		add(t.Name)
	}

	for _, t := range raw.Tags {
		add(t)
	}
	for _, t := range raw.Topic {
		addTerm(t)
	}
	for _, t := range raw.Data {
		addTerm(t)
	}
	for _, t := range raw.Operation {
		addTerm(t)
	}
	for _, t := range raw.Format {
		addTerm(t)
	}
	for _, fn := range raw.Function {
		for _, t := range fn.Operation {
			addTerm(t)
		}
		for _, port := range append(fn.Input, fn.Output...) {
			addTerm(port.Data)
			for _, t := range port.Format {
				addTerm(t)
			}
		}
	}
	return tags
}

// convertPublications keeps refs that carry at least one identifier.
func convertPublications(raws []PublicationRaw) []core.PublicationRef {
	var refs []core.PublicationRef
	for _, raw := range raws {
		ref := core.PublicationRef{
			Pmcid:   strings.TrimSpace(raw.Pmcid),
			Pmid:    strings.TrimSpace(raw.Pmid),
			Doi:     strings.TrimSpace(raw.Doi),
			Type:    strings.TrimSpace(raw.Type),
			Note:    strings.TrimSpace(raw.Note),
			Version: strings.TrimSpace(raw.Version),
		}
		if ref.IsEmpty() {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// dedupKey builds the (normalized title, primary URL) key: lowercase with
// runs of whitespace collapsed to single spaces.
func dedupKey(title, homepage string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ") + "\x00" + homepage
}
