package scrape

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"toolvet/internal/core"
	"toolvet/internal/logger"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	maxRedirects = 10
	maxErrorLen  = 140
)

// Config controls fetch limits for homepage scraping.
type Config struct {
	Timeout       time.Duration // Per-request timeout
	UserAgent     string        // User-Agent header sent with every request
	MaxBytes      int64         // Byte cap for any fetched document
	MaxFrames     int           // Total frame fetches allowed per candidate
	MaxFrameDepth int           // Frame nesting depth allowed (root page is depth 0)
}

// Scraper fetches candidate homepages and mines them for documentation
// links, keywords, and a repository URL. One Scraper serves the whole run
// so HTTP connections are reused across candidates.
type Scraper struct {
	cfg    Config
	client *http.Client
}

// New builds a Scraper, filling unset config fields with defaults.
func New(cfg Config) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "toolvet/0.1"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 * 1024 * 1024
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Scraper{cfg: cfg, client: client}
}

// ScrapeInto enriches the candidate in place with homepage artifacts and
// telemetry. It never returns an error; every failure is recorded on the
// candidate and leaves homepage_scraped false.
func (s *Scraper) ScrapeInto(ctx context.Context, cand *core.Candidate) {
	target, ok := s.selectHomepage(cand)
	if !ok {
		return
	}
	cand.Homepage = target

	base, err := url.Parse(target)
	if err != nil || base.Host == "" {
		cand.HomepageStatus = core.FailureStatus(core.StatusInvalidURL)
		cand.HomepageError = truncateError(fmt.Sprintf("invalid homepage URL %q", target))
		cand.HomepageScraped = false
		return
	}

	doc, status, ferr := s.fetchDocument(ctx, target)
	if ferr != nil {
		cand.HomepageStatus = ferr.status
		cand.HomepageError = truncateError(ferr.msg)
		cand.HomepageScraped = false
		return
	}

	merged := parsePage(doc, base)

	// Bounded BFS over nested frames; frame failures are skipped silently.
	budget := newFrameBudget(s.cfg.MaxFrames, s.cfg.MaxFrameDepth)
	type frameItem struct {
		url   string
		depth int
	}
	queue := make([]frameItem, 0, len(merged.frames))
	for _, f := range merged.frames {
		queue = append(queue, frameItem{f, 1})
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if !budget.depthAllowed(item.depth) {
			continue
		}
		if !budget.canFetchMore() {
			break
		}
		if !budget.recordFetch(item.url) {
			continue
		}
		frameBase, err := url.Parse(item.url)
		if err != nil {
			continue
		}
		frameDoc, _, ferr := s.fetchDocument(ctx, item.url)
		if ferr != nil {
			logger.Debug("Frame fetch skipped", "url", item.url, "reason", ferr.msg)
			continue
		}
		framePage := parsePage(frameDoc, frameBase)
		merged.merge(framePage)
		for _, f := range framePage.frames {
			queue = append(queue, frameItem{f, item.depth + 1})
		}
	}

	applyPage(cand, merged)
	cand.HomepageStatus = core.HTTPStatus(status)
	cand.HomepageError = ""
	cand.HomepageScraped = true
}

// selectHomepage normalizes the primary homepage and applies the
// publication-URL filter, falling back through the candidate's alternate
// URLs. Returns false when no scrapeable homepage exists.
func (s *Scraper) selectHomepage(cand *core.Candidate) (string, bool) {
	if strings.TrimSpace(cand.Homepage) == "" {
		cand.HomepageScraped = false
		return "", false
	}
	primary, ok := normalizeURL(cand.Homepage)
	if !ok {
		cand.HomepageStatus = core.FailureStatus(core.StatusInvalidURL)
		cand.HomepageError = truncateError(fmt.Sprintf("cannot parse homepage %q", cand.Homepage))
		cand.HomepageScraped = false
		return "", false
	}
	if !IsProbablePublicationURL(primary) {
		return primary, true
	}

	cand.HomepageFilteredURL = primary
	for _, alt := range cand.URLs {
		normalized, ok := normalizeURL(alt)
		if !ok || normalized == primary {
			continue
		}
		if IsProbablePublicationURL(normalized) {
			continue
		}
		return normalized, true
	}

	cand.HomepageStatus = core.FailureStatus(core.StatusFilteredPubURL)
	cand.HomepageError = core.StatusFilteredPubURL
	cand.HomepageScraped = false
	cand.Homepage = ""
	return "", false
}

// fetchError carries the classified status and a short message for a
// failed document fetch.
type fetchError struct {
	status core.StatusCode
	msg    string
}

func (e *fetchError) Error() string { return e.msg }

// fetchDocument GETs one page and returns the parsed document together
// with the HTTP status. Rejections and failures come back as a fetchError
// holding the classified status label.
func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, int, *fetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, &fetchError{core.FailureStatus(core.StatusInvalidURL), err.Error()}
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		label, msg := classifyFetchError(err)
		return nil, 0, &fetchError{core.FailureStatus(label), msg}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, &fetchError{core.HTTPStatus(resp.StatusCode), fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "html") && !strings.Contains(ct, "text") {
		return nil, resp.StatusCode, &fetchError{core.FailureStatus(core.StatusNonHTMLContent), fmt.Sprintf("content type %q is not HTML", ct)}
	}

	if resp.ContentLength > s.cfg.MaxBytes {
		return nil, resp.StatusCode, &fetchError{core.FailureStatus(core.StatusContentTooLarge), fmt.Sprintf("content length %d exceeds %d byte cap", resp.ContentLength, s.cfg.MaxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		label, msg := classifyFetchError(err)
		return nil, resp.StatusCode, &fetchError{core.FailureStatus(label), msg}
	}
	if int64(len(body)) > s.cfg.MaxBytes {
		return nil, resp.StatusCode, &fetchError{core.FailureStatus(core.StatusContentTooLarge), fmt.Sprintf("body exceeds %d byte cap", s.cfg.MaxBytes)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, resp.StatusCode, &fetchError{core.FailureStatus(core.StatusRequestError), err.Error()}
	}
	return doc, resp.StatusCode, nil
}

// pageData accumulates the artifacts mined from one or more pages.
type pageData struct {
	docURLs    []string
	keywords   []string
	repository string
	frames     []string
}

// merge folds another page's artifacts in, keeping first-seen order for
// URLs and keywords and the first non-empty repository.
func (p *pageData) merge(other pageData) {
	p.docURLs = appendUnique(p.docURLs, other.docURLs)
	p.keywords = appendUnique(p.keywords, other.keywords)
	if p.repository == "" {
		p.repository = other.repository
	}
}

// parsePage walks the document's anchors and frame sources. Anchor
// handling: resolve, drop repository chrome, drop keyword-less anchors
// inside layout chrome, then record repository and documentation hits.
func parsePage(doc *goquery.Document, base *url.URL) pageData {
	var page pageData

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		text := sel.Text()
		keywords := matchKeywords(text, resolved.String())

		if isRepoNavLink(resolved, text) {
			return
		}
		if len(keywords) == 0 && inLayoutChrome(sel) {
			return
		}

		if page.repository == "" && isRepositoryHost(resolved.Hostname()) {
			page.repository = resolved.String()
		}
		if len(keywords) > 0 {
			page.docURLs = appendUnique(page.docURLs, []string{resolved.String()})
			page.keywords = appendUnique(page.keywords, keywords)
		}
	})

	doc.Find("frame[src], iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme == "http" || resolved.Scheme == "https" {
			page.frames = append(page.frames, resolved.String())
		}
	})

	return page
}

// inLayoutChrome walks up to four ancestor levels looking for layout
// containers: nav/header/footer/aside tags, or attribute tokens carrying a
// layout keyword.
func inLayoutChrome(sel *goquery.Selection) bool {
	if len(sel.Nodes) == 0 {
		return false
	}
	node := sel.Nodes[0].Parent
	for level := 0; node != nil && level < 4; level++ {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "nav", "header", "footer", "aside":
				return true
			}
			for _, attr := range node.Attr {
				if attr.Key != "class" && attr.Key != "id" && attr.Key != "role" {
					continue
				}
				for _, token := range strings.Fields(strings.ToLower(attr.Val)) {
					for _, kw := range layoutKeywords {
						if strings.Contains(token, kw) {
							return true
						}
					}
				}
			}
		}
		node = node.Parent
	}
	return false
}

// applyPage merges mined artifacts into the candidate. Documentation URLs
// keep first-seen order; keywords are replaced with the sorted set; the
// repository is only set when absent.
func applyPage(cand *core.Candidate, page pageData) {
	seen := make(map[string]bool, len(cand.Documentation))
	for _, d := range cand.Documentation {
		seen[d.URL] = true
	}
	for _, u := range page.docURLs {
		if !seen[u] {
			seen[u] = true
			cand.Documentation = append(cand.Documentation, core.DocLink{URL: u})
		}
	}

	if len(page.keywords) > 0 {
		kws := append([]string(nil), page.keywords...)
		sort.Strings(kws)
		cand.DocKeywords = kws
	} else {
		cand.DocKeywords = nil
	}

	if cand.Repository == "" && page.repository != "" {
		cand.Repository = page.repository
	}
}

// frameBudget bounds frame recursion by total fetches and nesting depth
// and tracks visited frame URLs.
type frameBudget struct {
	maxFetches int
	maxDepth   int
	fetched    int
	visited    map[string]bool
}

func newFrameBudget(maxFetches, maxDepth int) *frameBudget {
	return &frameBudget{maxFetches: maxFetches, maxDepth: maxDepth, visited: make(map[string]bool)}
}

func (b *frameBudget) canFetchMore() bool      { return b.fetched < b.maxFetches }
func (b *frameBudget) depthAllowed(d int) bool { return d <= b.maxDepth }

// recordFetch marks a frame URL as fetched, returning false for repeats.
func (b *frameBudget) recordFetch(u string) bool {
	if b.visited[u] {
		return false
	}
	b.visited[u] = true
	b.fetched++
	return true
}

// classifyFetchError maps a transport error onto the closed failure-label
// set.
func classifyFetchError(err error) (label, msg string) {
	msg = err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		msg = urlErr.Err.Error()
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return core.StatusTimeout, msg
	case strings.Contains(strings.ToLower(msg), "redirect"):
		return core.StatusRedirectError, msg
	case isCertError(err):
		return core.StatusSSLError, msg
	case isConnError(err):
		return core.StatusConnectionError, msg
	default:
		return core.StatusRequestError, msg
	}
}

func isCertError(err error) bool {
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var authority x509.UnknownAuthorityError
	if errors.As(err, &invalid) || errors.As(err, &hostname) || errors.As(err, &authority) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "tls") || strings.Contains(lower, "x509") || strings.Contains(lower, "certificate")
}

func isConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// normalizeURL trims a raw URL, supplies a missing scheme, and accepts
// only http(s) URLs with a host.
func normalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// appendUnique appends items not yet present, preserving order.
func appendUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// truncateError caps a scrape error message at a report-friendly length.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
