package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"toolvet/internal/core"
	"toolvet/internal/ingest"
	"toolvet/internal/logger"
	"toolvet/internal/prompt"
	"toolvet/internal/score"

	"golang.org/x/sync/errgroup"
)

// EnrichedFileName is the file-based cache of enriched candidates written
// into the output directory after the enrichment phase.
const EnrichedFileName = "enriched.json"

// Scraper enriches a candidate from its homepage.
type Scraper interface {
	ScrapeInto(ctx context.Context, cand *core.Candidate)
}

// Enricher attaches literature artifacts to a candidate.
type Enricher interface {
	EnrichInto(ctx context.Context, cand *core.Candidate)
}

// ModelClient is the scoring capability: a health probe plus the
// generator the retry loop drives.
type ModelClient interface {
	score.Generator
	Healthy(ctx context.Context) error
	Model() string
}

// Options bundle the per-run knobs.
type Options struct {
	InputFile          string  // Candidates JSON path
	OutputDir          string  // Directory for enriched.json and reports
	Limit              int     // Cap on candidates processed; 0 = all
	Concurrency        int     // Worker pool size K
	SchemaRetries      int     // Schema-repair retries per candidate
	MinBioScore        float64 // Inclusion threshold, bio axis
	MinDocScore        float64 // Inclusion threshold, documentation axis
	DryRun             bool    // Stop after ingestion and print counts
	ResumeFromEnriched bool    // Load enriched.json instead of scraping
	PromptTemplate     string  // Rubric template; prompt.DefaultTemplate when empty
}

// Stats counts what one run did.
type Stats struct {
	Total     int           // Raw records read
	Dropped   int           // Records without a title
	Deduped   int           // Duplicate records removed
	Scraped   int           // Homepages fetched successfully
	Scored    int           // Candidates scored by the model
	Fallbacks int           // Candidates scored heuristically
	Included  int           // Candidates passing the inclusion predicate
	Elapsed   time.Duration // Wall-clock run time
}

// Result is what a run hands to the report emitter.
type Result struct {
	Candidates []*core.Candidate
	Decisions  []core.Decision
	Stats      Stats
}

// Pipeline wires the enrichment and scoring stages over one candidate
// stream.
type Pipeline struct {
	scraper  Scraper
	enricher Enricher
	model    ModelClient
}

// New builds a Pipeline. enricher may be nil when literature enrichment
// is disabled.
func New(scraper Scraper, enricher Enricher, model ModelClient) *Pipeline {
	return &Pipeline{scraper: scraper, enricher: enricher, model: model}
}

// Run executes the full pipeline: ingest, enrich, score, decide. It only
// fails on unusable input or an unwritable output directory; every
// per-candidate problem degrades into telemetry or a heuristic score.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = prompt.DefaultTemplate
	}

	result := &Result{}

	cands, stats, err := p.loadCandidates(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Stats = stats
	result.Candidates = cands

	if opts.DryRun {
		logger.Info("Dry run complete", "candidates", len(cands), "dropped", stats.Dropped, "deduped", stats.Deduped)
		result.Stats.Elapsed = time.Since(start)
		return result, nil
	}

	if !opts.ResumeFromEnriched {
		p.enrich(ctx, cands, opts.Concurrency)
		if err := writeEnriched(opts.OutputDir, cands); err != nil {
			return nil, err
		}
	}
	for _, cand := range cands {
		if cand.HomepageScraped {
			result.Stats.Scraped++
		}
	}

	// One failed probe downgrades the whole run to heuristic scoring.
	heuristicOnly := false
	if err := p.model.Healthy(ctx); err != nil {
		logger.Warn("Model endpoint unhealthy, scoring heuristically", "error", err.Error())
		heuristicOnly = true
	}

	decisions := p.scoreAll(ctx, cands, opts, heuristicOnly, &result.Stats)
	result.Decisions = decisions

	for _, d := range decisions {
		if d.Include {
			result.Stats.Included++
		}
	}
	result.Stats.Elapsed = time.Since(start)
	return result, nil
}

// loadCandidates reads either the raw input file or the enriched cache.
func (p *Pipeline) loadCandidates(ctx context.Context, opts Options) ([]*core.Candidate, Stats, error) {
	var stats Stats

	if opts.ResumeFromEnriched {
		cands, err := readEnriched(opts.OutputDir)
		if err != nil {
			return nil, stats, err
		}
		if opts.Limit > 0 && len(cands) > opts.Limit {
			cands = cands[:opts.Limit]
		}
		stats.Total = len(cands)
		return cands, stats, nil
	}

	raws, err := ingest.Load(opts.InputFile)
	if err != nil {
		return nil, stats, err
	}
	cands, istats := ingest.Normalize(raws)
	stats.Total = istats.Total
	stats.Dropped = istats.Dropped
	stats.Deduped = istats.Deduped
	if opts.Limit > 0 && len(cands) > opts.Limit {
		cands = cands[:opts.Limit]
	}
	logger.Info("Candidates ingested", "total", istats.Total, "kept", len(cands), "dropped", istats.Dropped, "deduped", istats.Deduped)
	return cands, stats, nil
}

// enrich runs homepage scraping and literature lookup across a bounded
// fan-out. Each goroutine owns exactly one candidate.
func (p *Pipeline) enrich(ctx context.Context, cands []*core.Candidate, concurrency int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, cand := range cands {
		cand := cand
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			p.scraper.ScrapeInto(gctx, cand)
			if p.enricher != nil {
				p.enricher.EnrichInto(gctx, cand)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; cancellation drains here
}

// scoreAll fans candidates out to a worker pool and collects decisions
// through a single collector. Partial results survive cancellation.
func (p *Pipeline) scoreAll(ctx context.Context, cands []*core.Candidate, opts Options, heuristicOnly bool, stats *Stats) []core.Decision {
	jobs := make(chan *core.Candidate)
	results := make(chan core.Decision)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				results <- p.scoreOne(ctx, cand, opts, heuristicOnly)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, cand := range cands {
			select {
			case jobs <- cand:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// The collector owns the decision slice and the counters; no mutex
	// needed.
	var decisions []core.Decision
	for d := range results {
		decisions = append(decisions, d)
		if d.Scores.Model == score.HeuristicModel {
			stats.Fallbacks++
		} else {
			stats.Scored++
		}
	}
	return decisions
}

// scoreOne scores a single candidate, substituting a heuristic record
// when the model path fails.
func (p *Pipeline) scoreOne(ctx context.Context, cand *core.Candidate, opts Options, heuristicOnly bool) core.Decision {
	basePrompt, origins := prompt.Build(cand, opts.PromptTemplate)

	var rec *core.ScoreRecord
	if heuristicOnly {
		rec = score.HeuristicScore(cand, origins)
	} else {
		resp, diag, err := score.RunWithRetries(ctx, p.model, basePrompt, opts.SchemaRetries)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn("Scoring failed, using heuristic", "candidate", cand.Title, "error", err.Error())
			}
			rec = score.HeuristicScore(cand, origins)
			rec.ModelParams.Attempts = diag.Attempts
			rec.ModelParams.SchemaErrors = diag.SchemaErrors
		} else {
			rec = score.Normalize(resp, cand, p.model.Model(), diag, origins)
		}
	}

	include := rec.BioScore >= opts.MinBioScore &&
		rec.DocScore >= opts.MinDocScore &&
		rec.Homepage != ""

	return core.Decision{
		ID:             cand.ID,
		Title:          cand.Title,
		Homepage:       rec.Homepage,
		PublicationIDs: rec.PublicationIDs,
		Scores:         rec,
		Include:        include,
	}
}

// writeEnriched persists the enriched candidate set as the resumable
// file-based cache.
func writeEnriched(outputDir string, cands []*core.Candidate) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(cands, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outputDir, EnrichedFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// readEnriched loads a previous run's enrichment cache.
func readEnriched(outputDir string) ([]*core.Candidate, error) {
	path := filepath.Join(outputDir, EnrichedFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resume requested but %s is unreadable: %w", path, err)
	}
	var cands []*core.Candidate
	if err := json.Unmarshal(data, &cands); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cands, nil
}
