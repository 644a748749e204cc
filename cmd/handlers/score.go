package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"toolvet/internal/config"
	"toolvet/internal/core"
	"toolvet/internal/europepmc"
	"toolvet/internal/logger"
	"toolvet/internal/ollama"
	"toolvet/internal/pipeline"
	"toolvet/internal/prompt"
	"toolvet/internal/report"
	"toolvet/internal/scrape"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var summaryStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 2)

// NewScoreCmd creates the score command
func NewScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [candidates.json]",
		Short: "Enrich and score tool candidates, then emit payload and reports",
		Long: `Run the full vetting pipeline over a candidates file.

The pipeline deduplicates candidates, scrapes each homepage, looks the
publications up on Europe PMC, scores every candidate against the rubric
with the configured Ollama model, and writes four artifacts into the
output directory: payload.json, decisions.jsonl, report.csv, and (only
when entries fail the tool-entry schema) payload.invalid.json.

Exit codes: 0 success, 2 schema-invalid payload entries, 3 pipeline error.

Examples:
  toolvet score candidates.json
  toolvet score --output out --limit 20 candidates.json
  toolvet score --dry-run candidates.json
  toolvet score --resume candidates.json`,
		Args: cobra.ExactArgs(1),
		Run:  scoreRun,
	}

	cmd.Flags().StringP("output", "o", "", "Output directory (default from config)")
	cmd.Flags().Int("limit", 0, "Process at most N candidates (0 = all)")
	cmd.Flags().Int("concurrency", 0, "Worker pool size (default from config)")
	cmd.Flags().Bool("dry-run", false, "Ingest and dedupe only, write nothing")
	cmd.Flags().Bool("resume", false, "Resume from the enriched.json cache instead of scraping")
	cmd.Flags().Float64("min-bio-score", -1, "Override the bio inclusion threshold")
	cmd.Flags().Float64("min-doc-score", -1, "Override the documentation inclusion threshold")

	return cmd
}

func scoreRun(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	cfg := config.Get()

	opts, err := buildOptions(cmd, args[0], cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(3)
	}

	if !opts.ResumeFromEnriched {
		if _, err := os.Stat(opts.InputFile); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "❌ Input file not found: %s\n", opts.InputFile)
			os.Exit(3)
		}
	}

	logger.Info("Starting scoring run",
		"input", opts.InputFile,
		"output", opts.OutputDir,
		"model", cfg.Ollama.Model,
		"concurrency", opts.Concurrency,
		"dry_run", opts.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("🔧 Building pipeline...")
	pipe := buildPipeline(cfg)

	fmt.Printf("\n📋 Vetting candidates from: %s\n\n", opts.InputFile)

	result, err := pipe.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Pipeline failed: %v\n", err)
		os.Exit(3)
	}

	if opts.DryRun {
		fmt.Printf("💡 Dry run: %d candidates would be processed (%d dropped, %d duplicates)\n",
			len(result.Candidates), result.Stats.Dropped, result.Stats.Deduped)
		return
	}

	accepted, invalid := report.BuildEntries(result.Decisions, result.Candidates)
	if err := writeReports(opts.OutputDir, cfg.Output.PayloadVersion, accepted, invalid, result); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Writing reports failed: %v\n", err)
		os.Exit(3)
	}

	printSummary(opts.OutputDir, accepted, invalid, result, time.Since(startTime))

	logger.Info("Scoring run completed",
		"accepted", len(accepted),
		"invalid", len(invalid),
		"fallbacks", result.Stats.Fallbacks,
		"duration", time.Since(startTime))

	if len(invalid) > 0 {
		os.Exit(2)
	}
}

// buildOptions folds config defaults and flag overrides into pipeline
// options.
func buildOptions(cmd *cobra.Command, inputFile string, cfg *config.Config) (pipeline.Options, error) {
	outputDir, _ := cmd.Flags().GetString("output")
	if outputDir == "" {
		outputDir = cfg.Output.Directory
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit == 0 {
		limit = cfg.Pipeline.Limit
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency == 0 {
		concurrency = cfg.Ollama.Concurrency
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	resume, _ := cmd.Flags().GetBool("resume")

	minBio, minDoc := cfg.Pipeline.Thresholds()
	if v, _ := cmd.Flags().GetFloat64("min-bio-score"); v >= 0 {
		minBio = v
	}
	if v, _ := cmd.Flags().GetFloat64("min-doc-score"); v >= 0 {
		minDoc = v
	}

	template, err := prompt.LoadTemplate(cfg.ScoringPromptTemplate)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("loading prompt template: %w", err)
	}

	return pipeline.Options{
		InputFile:          inputFile,
		OutputDir:          outputDir,
		Limit:              limit,
		Concurrency:        concurrency,
		SchemaRetries:      cfg.Ollama.SchemaRetries,
		MinBioScore:        minBio,
		MinDocScore:        minDoc,
		DryRun:             dryRun || cfg.Pipeline.DryRun,
		ResumeFromEnriched: resume || cfg.Pipeline.ResumeFromEnriched,
		PromptTemplate:     template,
	}, nil
}

// buildPipeline wires the scraper, enricher, and model client from
// configuration.
func buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	scraper := scrape.New(scrape.Config{
		Timeout:       cfg.Enrichment.Homepage.TimeoutDuration(),
		UserAgent:     cfg.Enrichment.Homepage.UserAgent,
		MaxBytes:      cfg.Enrichment.Homepage.MaxBytes,
		MaxFrames:     cfg.Enrichment.Homepage.MaxFrames,
		MaxFrameDepth: cfg.Enrichment.Homepage.MaxFrameDepth,
	})

	var enricher pipeline.Enricher
	if cfg.Enrichment.EuropePMC.Enabled {
		enricher = europepmc.New(europepmc.Config{
			BaseURL:          cfg.Enrichment.EuropePMC.BaseURL,
			Timeout:          cfg.Enrichment.EuropePMC.TimeoutDuration(),
			IncludeFullText:  cfg.Enrichment.EuropePMC.IncludeFullText,
			MaxPublications:  cfg.Enrichment.EuropePMC.MaxPublications,
			MaxFullTextChars: cfg.Enrichment.EuropePMC.MaxFullTextChars,
		})
	}

	model := ollama.New(ollama.Config{
		Host:             cfg.Ollama.Host,
		Model:            cfg.Ollama.Model,
		Timeout:          cfg.Ollama.TimeoutDuration(),
		Temperature:      cfg.Ollama.Temperature,
		TopP:             cfg.Ollama.TopP,
		Seed:             cfg.Ollama.Seed,
		TransportRetries: cfg.Ollama.TransportRetries,
		AuditLog:         cfg.Ollama.AuditLog,
	})

	return pipeline.New(scraper, enricher, model)
}

// writeReports emits every output artifact into the output directory.
func writeReports(dir, version string, accepted []core.ToolEntry, invalid []report.InvalidEntry, result *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := report.WritePayload(filepath.Join(dir, report.PayloadFileName), version, accepted); err != nil {
		return err
	}
	if err := report.WriteDecisions(filepath.Join(dir, report.DecisionsFileName), result.Decisions); err != nil {
		return err
	}
	if err := report.WriteCSV(filepath.Join(dir, report.CSVFileName), result.Decisions); err != nil {
		return err
	}
	if len(invalid) > 0 {
		if err := report.WriteInvalid(filepath.Join(dir, report.InvalidFileName), invalid); err != nil {
			return err
		}
	}
	return nil
}

// printSummary renders the end-of-run statistics block.
func printSummary(dir string, accepted []core.ToolEntry, invalid []report.InvalidEntry, result *pipeline.Result, elapsed time.Duration) {
	stats := result.Stats
	lines := fmt.Sprintf(`✅ Vetting Complete

📊 Statistics:
   • Candidates: %d (dropped %d, duplicates %d)
   • Homepages scraped: %d
   • Model scored: %d
   • Heuristic fallbacks: %d
   • Included: %d
   • Accepted entries: %d
   • Invalid entries: %d
   • Processing time: %v

📄 Reports: %s`,
		len(result.Candidates), stats.Dropped, stats.Deduped,
		stats.Scraped, stats.Scored, stats.Fallbacks,
		stats.Included, len(accepted), len(invalid),
		elapsed.Round(time.Second), dir)

	fmt.Println("\n" + summaryStyle.Render(lines))

	if len(invalid) > 0 {
		fmt.Printf("\n⚠️  %d entries failed the tool-entry schema; see %s\n",
			len(invalid), filepath.Join(dir, report.InvalidFileName))
	}
}
