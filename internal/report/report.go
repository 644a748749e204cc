package report

import (
	"fmt"
	"net/url"
	"strings"

	"toolvet/internal/core"
)

// publicationKeys are the only keys a canonical publication record may
// carry. Identifier keys come first for readability.
var publicationKeys = map[string]bool{
	"pmcid": true, "pmid": true, "doi": true,
	"type": true, "note": true, "version": true,
}

// InvalidEntry pairs a rejected payload entry with its validation error.
type InvalidEntry struct {
	Entry core.ToolEntry `json:"entry"`
	Error string         `json:"error"`
}

// BuildEntries assembles registry-ready entries from the accepted
// decisions, splitting off entries the tool-entry schema rejects.
func BuildEntries(decisions []core.Decision, cands []*core.Candidate) (accepted []core.ToolEntry, invalid []InvalidEntry) {
	byID := make(map[string]*core.Candidate, len(cands))
	for _, cand := range cands {
		byID[cand.ID] = cand
	}

	for _, d := range decisions {
		if !d.Include {
			continue
		}
		entry := buildEntry(d, byID[d.ID])
		if err := validateEntry(entry); err != nil {
			invalid = append(invalid, InvalidEntry{Entry: entry, Error: err.Error()})
			continue
		}
		accepted = append(accepted, entry)
	}
	return accepted, invalid
}

// buildEntry merges scored values over the original candidate's fields.
func buildEntry(d core.Decision, cand *core.Candidate) core.ToolEntry {
	entry := core.ToolEntry{
		Name:     d.Scores.ToolName,
		Homepage: d.Homepage,
	}
	if entry.Name == "" {
		entry.Name = d.Title
	}
	entry.Description = d.Scores.ConciseDescription

	if cand != nil {
		if entry.Description == "" {
			entry.Description = cand.Description
		}
		entry.Documentation = cand.Documentation
		entry.Tags = cand.Tags
		entry.Publication = publicationRecords(cand.Publication, d.PublicationIDs)
		entry.Link = repositoryLink(cand.Repository)
	} else {
		entry.Publication = publicationRecords(nil, d.PublicationIDs)
	}
	return entry
}

// publicationRecords converts publication refs into canonical lowercase-
// key records, then adds bare records for scored identifiers not covered
// by any ref.
func publicationRecords(refs []core.PublicationRef, ids []string) []map[string]string {
	var records []map[string]string
	covered := make(map[string]bool)

	for _, ref := range refs {
		record := make(map[string]string)
		put := func(key, value string) {
			if value != "" {
				record[key] = value
				if key == "pmcid" || key == "pmid" || key == "doi" {
					covered[strings.ToLower(key+":"+value)] = true
				}
			}
		}
		put("pmcid", ref.Pmcid)
		put("pmid", ref.Pmid)
		put("doi", ref.Doi)
		put("type", ref.Type)
		put("note", ref.Note)
		put("version", ref.Version)
		if len(record) > 0 {
			records = append(records, record)
		}
	}

	for _, id := range ids {
		kind, value, ok := strings.Cut(id, ":")
		kind = strings.ToLower(kind)
		if !ok || value == "" || !publicationKeys[kind] {
			continue
		}
		if covered[strings.ToLower(kind+":"+value)] {
			continue
		}
		covered[strings.ToLower(kind+":"+value)] = true
		records = append(records, map[string]string{kind: value})
	}
	return records
}

// repositoryLink wraps a repository URL as a typed link.
func repositoryLink(repo string) []core.DocLink {
	if repo == "" {
		return nil
	}
	return []core.DocLink{{URL: repo, Type: "Repository"}}
}

// validateEntry enforces the tool-entry schema: required fields present,
// homepage a parseable http(s) URL, publication records non-empty with
// known lowercase keys, documentation URLs non-empty.
func validateEntry(entry core.ToolEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(entry.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(entry.Homepage) == "" {
		return fmt.Errorf("homepage is required")
	}
	u, err := url.Parse(entry.Homepage)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("homepage %q is not an http(s) URL", entry.Homepage)
	}

	for i, record := range entry.Publication {
		if len(record) == 0 {
			return fmt.Errorf("publication[%d] is empty", i)
		}
		for key := range record {
			if !publicationKeys[key] {
				return fmt.Errorf("publication[%d] has unknown key %q", i, key)
			}
			if key != strings.ToLower(key) {
				return fmt.Errorf("publication[%d] key %q is not lowercase", i, key)
			}
		}
	}

	for i, link := range entry.Documentation {
		if strings.TrimSpace(link.URL) == "" {
			return fmt.Errorf("documentation[%d] has an empty URL", i)
		}
	}
	return nil
}
