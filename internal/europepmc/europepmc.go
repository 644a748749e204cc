package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"toolvet/internal/core"
	"toolvet/internal/logger"
)

// DefaultBaseURL is the public Europe PMC REST endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

// searchFields maps identifier kinds to the Europe PMC query field, in
// lookup priority order.
var searchFields = []struct {
	kind  string
	field string
}{
	{"pmcid", "PMCID"},
	{"pmid", "EXT_ID"},
	{"doi", "DOI"},
}

// Config controls literature enrichment behavior.
type Config struct {
	BaseURL          string        // Endpoint root; DefaultBaseURL when empty
	Timeout          time.Duration // Per-request timeout
	IncludeFullText  bool          // Whether to fetch and attach full text
	MaxPublications  int           // Publication refs consulted per candidate
	MaxFullTextChars int           // Truncation point for attached full text
}

// article is the slice of a Europe PMC search result the pipeline uses.
type article struct {
	Title           string `json:"title"`
	AbstractText    string `json:"abstractText"`
	Pmcid           string `json:"pmcid"`
	Pmid            string `json:"pmid"`
	FullTextURLList struct {
		FullTextURL []struct {
			URL string `json:"url"`
		} `json:"fullTextUrl"`
	} `json:"fullTextUrlList"`
}

// Enricher looks up candidate publications on Europe PMC and attaches
// abstracts, identifiers, and optionally full text. One Enricher serves
// the whole run; its caches guarantee at most one HTTP call per
// identifier and make repeated enrichment idempotent.
type Enricher struct {
	cfg    Config
	client *http.Client

	mu            sync.Mutex
	searchCache   map[string]*article // key "kind:value", case-folded; nil entry = known miss
	fullTextCache map[string]string   // key pmcid, case-folded
}

// New builds an Enricher, filling unset config fields with defaults.
func New(cfg Config) *Enricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxPublications <= 0 {
		cfg.MaxPublications = 1
	}
	if cfg.MaxFullTextChars <= 0 {
		cfg.MaxFullTextChars = 20000
	}
	return &Enricher{
		cfg:           cfg,
		client:        &http.Client{Timeout: cfg.Timeout},
		searchCache:   make(map[string]*article),
		fullTextCache: make(map[string]string),
	}
}

// EnrichInto attaches literature artifacts to the candidate in place.
// Lookup failures are per-identifier no-ops; the method never fails the
// pipeline.
func (e *Enricher) EnrichInto(ctx context.Context, cand *core.Candidate) {
	refs := cand.Publication
	if len(refs) > e.cfg.MaxPublications {
		refs = refs[:e.cfg.MaxPublications]
	}

	var abstracts, fullTexts []string
	fullTextURL := ""

	for _, ref := range refs {
		art := e.resolve(ctx, ref)
		if art == nil {
			continue
		}

		if abs := strings.TrimSpace(art.AbstractText); abs != "" {
			abstracts = appendUnique(abstracts, abs)
		}
		if art.Pmcid != "" {
			cand.PublicationIDs = core.MergeIDs(cand.PublicationIDs, "pmcid:"+art.Pmcid)
		}
		if art.Pmid != "" {
			cand.PublicationIDs = core.MergeIDs(cand.PublicationIDs, "pmid:"+art.Pmid)
		}

		if e.cfg.IncludeFullText && art.Pmcid != "" {
			if text := e.fullText(ctx, art.Pmcid); text != "" {
				fullTexts = appendUnique(fullTexts, text)
				continue
			}
		}
		if fullTextURL == "" && len(art.FullTextURLList.FullTextURL) > 0 {
			fullTextURL = art.FullTextURLList.FullTextURL[0].URL
		}
	}

	if len(abstracts) > 0 {
		cand.PublicationAbstract = strings.Join(abstracts, "\n\n")
	}
	if len(fullTexts) > 0 {
		cand.PublicationFullText = strings.Join(fullTexts, "\n\n")
	} else if fullTextURL != "" {
		cand.PublicationFullTextURL = fullTextURL
	}
}

// resolve tries a ref's identifiers in priority order and returns the
// first article any of them finds, or nil.
func (e *Enricher) resolve(ctx context.Context, ref core.PublicationRef) *article {
	values := map[string]string{"pmcid": ref.Pmcid, "pmid": ref.Pmid, "doi": ref.Doi}
	for _, sf := range searchFields {
		value := values[sf.kind]
		if value == "" {
			continue
		}
		if art := e.search(ctx, sf.kind, sf.field, value); art != nil {
			return art
		}
	}
	return nil
}

// search performs one cached literature lookup. Errors and empty result
// sets are cached as misses so a rerun issues no further calls.
func (e *Enricher) search(ctx context.Context, kind, field, value string) *article {
	key := strings.ToLower(kind + ":" + value)

	e.mu.Lock()
	if art, ok := e.searchCache[key]; ok {
		e.mu.Unlock()
		return art
	}
	e.mu.Unlock()

	art := e.fetchSearch(ctx, field, value)
	if art == nil {
		logger.Debug("Literature lookup found nothing", "id", key)
	}

	e.mu.Lock()
	e.searchCache[key] = art
	e.mu.Unlock()
	return art
}

// fetchSearch issues the uncached search call. Any failure returns nil.
func (e *Enricher) fetchSearch(ctx context.Context, field, value string) *article {
	query := url.Values{
		"query":      {fmt.Sprintf("%s:%q", field, value)},
		"format":     {"json"},
		"resulttype": {"core"},
		"pageSize":   {"1"},
	}
	endpoint := e.cfg.BaseURL + "/search?" + query.Encode()

	body, err := e.get(ctx, endpoint)
	if err != nil {
		logger.Debug("Literature search failed", "field", field, "error", err.Error())
		return nil
	}

	var result struct {
		ResultList struct {
			Result []article `json:"result"`
		} `json:"resultList"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil
	}
	if len(result.ResultList.Result) == 0 {
		return nil
	}
	return &result.ResultList.Result[0]
}

// fullText fetches (and caches) the extracted full text of a PMC article,
// truncated to the configured character cap. Failures cache as "".
func (e *Enricher) fullText(ctx context.Context, pmcid string) string {
	key := strings.ToLower(pmcid)

	e.mu.Lock()
	if text, ok := e.fullTextCache[key]; ok {
		e.mu.Unlock()
		return text
	}
	e.mu.Unlock()

	text := ""
	body, err := e.get(ctx, e.cfg.BaseURL+"/"+url.PathEscape(pmcid)+"/fullTextXML")
	if err == nil {
		text = extractXMLText(body)
		if len(text) > e.cfg.MaxFullTextChars {
			text = text[:e.cfg.MaxFullTextChars]
		}
	}

	e.mu.Lock()
	e.fullTextCache[key] = text
	e.mu.Unlock()
	return text
}

// get issues one GET and returns the body, treating non-2xx as an error.
func (e *Enricher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}
	return io.ReadAll(resp.Body)
}

// ResetCaches clears both lookup caches. Test helper.
func (e *Enricher) ResetCaches() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searchCache = make(map[string]*article)
	e.fullTextCache = make(map[string]string)
}

// appendUnique appends s when not already present.
func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
