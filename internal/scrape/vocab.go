package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

// publicationHosts is the closed list of publishing hosts whose URLs are
// never acceptable as a tool homepage. Subdomains match by suffix.
var publicationHosts = []string{
	"doi.org",
	"ncbi.nlm.nih.gov",
	"europepmc.org",
	"nature.com",
	"springer.com",
	"springerlink.com",
	"sciencedirect.com",
	"elsevier.com",
	"wiley.com",
	"oup.com",
	"oxfordjournals.org",
	"tandfonline.com",
	"frontiersin.org",
	"plos.org",
	"biorxiv.org",
	"medrxiv.org",
	"arxiv.org",
	"mdpi.com",
	"cell.com",
	"science.org",
	"sciencemag.org",
	"pnas.org",
	"biomedcentral.com",
	"hindawi.com",
	"karger.com",
	"jstor.org",
	"liebertpub.com",
	"sagepub.com",
	"cambridge.org",
	"semanticscholar.org",
	"researchgate.net",
}

// doiPathPattern matches a DOI directory segment anywhere in a URL path.
var doiPathPattern = regexp.MustCompile(`/10\.\d{4,9}/`)

// repositoryHosts are source-forge hosts; the first anchor resolving to one
// of these becomes the candidate's repository URL.
var repositoryHosts = []string{
	"github.com",
	"gitlab.com",
	"bitbucket.org",
	"sourceforge.net",
	"codeberg.org",
}

// repoNavPrefixes are site-level navigation paths on repository hosts.
// Anchors whose path starts with one of these are chrome, not content.
var repoNavPrefixes = []string{
	"/issues",
	"/pulls",
	"/pull",
	"/actions",
	"/projects",
	"/discussions",
	"/security",
	"/pulse",
	"/network",
	"/graphs",
	"/stargazers",
	"/watchers",
	"/forks",
	"/commits",
	"/branches",
	"/tags",
	"/labels",
	"/milestones",
	"/settings",
	"/notifications",
	"/login",
	"/signup",
	"/join",
	"/about",
	"/pricing",
	"/features",
	"/marketplace",
	"/sponsors",
	"/topics",
	"/explore",
	"/merge_requests",
}

// repoNavLabels are visible anchor texts that mark repository chrome.
// Compared after trimming and lowercasing.
var repoNavLabels = []string{
	"code",
	"issues",
	"pull requests",
	"merge requests",
	"actions",
	"projects",
	"discussions",
	"security",
	"insights",
	"pulse",
	"watch",
	"star",
	"fork",
	"forks",
	"packages",
	"notifications",
	"settings",
	"sign in",
	"sign up",
	"log in",
	"login",
	"register",
	"explore",
	"marketplace",
	"sponsor",
	"sponsors",
	"pricing",
}

// layoutKeywords mark page chrome containers. An anchor with no keyword
// match sitting inside an ancestor whose tag or attribute tokens carry one
// of these is skipped.
var layoutKeywords = []string{
	"header",
	"footer",
	"nav",
	"menu",
	"breadcrumb",
	"sidebar",
	"toolbar",
	"subnav",
	"pagehead",
	"gh-header",
	"site-footer",
	"site-header",
}

// documentationKeywords is the fixed vocabulary mined from anchor text and
// hrefs, grouped by the five documentation rubric areas. Matching is
// case-insensitive substring matching.
var documentationKeywords = []string{
	// completeness
	"documentation", "docs", "manual", "user manual", "reference manual",
	"user guide", "guide", "handbook", "reference", "api reference",
	"api documentation", "readme", "wiki", "help", "help pages",
	"usage", "how to", "howto", "vignette", "man page",
	"readthedocs", "specification", "user documentation", "online help", "knowledge base",
	"cookbook", "glossary", "function reference", "command reference", "documentation portal",
	// install
	"install", "installation", "setup", "set up", "download",
	"downloads", "requirements", "prerequisites", "dependencies", "conda",
	"bioconda", "pip", "pypi", "cran", "bioconductor",
	"docker", "container", "singularity", "homebrew", "apt-get",
	"binaries", "compile", "build from source", "package", "release",
	"releases", "wheel", "virtualenv", "environment", "mamba",
	// reproducibility
	"example", "examples", "example data", "sample data", "test data",
	"demo", "demos", "demo data", "notebook", "notebooks",
	"jupyter", "workflow", "workflows", "pipeline", "pipelines",
	"use case", "use cases", "case study", "benchmark", "benchmarks",
	"validation", "reproducib", "snakemake", "nextflow", "galaxy",
	"test suite", "unit tests", "sample input", "example output", "tutorial notebook",
	// maintenance
	"changelog", "change log", "release notes", "news", "updates",
	"update history", "roadmap", "contributing", "contribution", "code of conduct",
	"support", "faq", "frequently asked", "troubleshooting", "known issues",
	"bug report", "bug tracker", "issue tracker", "mailing list", "forum",
	"community", "contact", "feedback", "citation", "cite",
	"license", "version history", "archive", "deprecat", "maintenance",
	// onboarding
	"getting started", "get started", "quick start", "quickstart", "introduction",
	"intro", "overview", "first steps", "beginner", "basics",
	"learn", "training", "course", "workshop", "webinar",
	"screencast", "video tutorial", "tutorial", "tutorials", "walkthrough",
	"primer", "start here", "hello world", "crash course", "step by step",
	"gallery", "orientation", "how it works", "lessons", "examples gallery",
}

// IsProbablePublicationURL reports whether a URL points at a publication
// rather than a tool homepage: a known publishing host, a DOI path, or a
// national health domain serving a life-science archive.
func IsProbablePublicationURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if hostMatches(host, publicationHosts) {
		return true
	}
	if doiPathPattern.MatchString(u.Path) {
		return true
	}
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(host, ".nih.gov") && (strings.Contains(path, "pmc") || strings.Contains(path, "pubmed")) {
		return true
	}
	return false
}

// isRepositoryHost reports whether a hostname belongs to a source-forge.
func isRepositoryHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return hostMatches(host, repositoryHosts)
}

// hostMatches matches a host against a list, treating entries as suffixes
// so subdomains qualify.
func hostMatches(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// matchKeywords returns the vocabulary tokens appearing in the anchor's
// visible text or href, case-insensitively.
func matchKeywords(text, href string) []string {
	text = strings.ToLower(text)
	href = strings.ToLower(href)
	var matched []string
	for _, kw := range documentationKeywords {
		if strings.Contains(text, kw) || strings.Contains(href, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// isRepoNavLink reports whether an anchor on a repository host is site or
// repository chrome rather than content.
func isRepoNavLink(u *url.URL, text string) bool {
	if !isRepositoryHost(u.Hostname()) {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, prefix := range repoNavPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	label := strings.ToLower(strings.TrimSpace(text))
	for _, l := range repoNavLabels {
		if label == l {
			return true
		}
	}
	return false
}
