package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Ollama                Ollama     `mapstructure:"ollama"`
	Enrichment            Enrichment `mapstructure:"enrichment"`
	Pipeline              Pipeline   `mapstructure:"pipeline"`
	Output                Output     `mapstructure:"output"`
	Logging               Logging    `mapstructure:"logging"`
	ScoringPromptTemplate string     `mapstructure:"scoring_prompt_template"`
}

// Ollama holds model endpoint configuration
type Ollama struct {
	Host             string  `mapstructure:"host"`
	Model            string  `mapstructure:"model"`
	SchemaRetries    int     `mapstructure:"schema_retries"`
	Concurrency      int     `mapstructure:"concurrency"`
	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	Seed             int     `mapstructure:"seed"`
	Timeout          string  `mapstructure:"timeout"`
	TransportRetries int     `mapstructure:"transport_retries"`
	AuditLog         string  `mapstructure:"audit_log"`
}

// Enrichment holds homepage scraping and literature lookup configuration
type Enrichment struct {
	Homepage  Homepage  `mapstructure:"homepage"`
	EuropePMC EuropePMC `mapstructure:"europe_pmc"`
}

// Homepage holds homepage scraper configuration
type Homepage struct {
	Timeout       string `mapstructure:"timeout"`
	UserAgent     string `mapstructure:"user_agent"`
	MaxBytes      int64  `mapstructure:"max_bytes"`
	MaxFrames     int    `mapstructure:"max_frames"`
	MaxFrameDepth int    `mapstructure:"max_frame_depth"`
}

// EuropePMC holds literature service configuration
type EuropePMC struct {
	Enabled          bool   `mapstructure:"enabled"`
	BaseURL          string `mapstructure:"base_url"`
	IncludeFullText  bool   `mapstructure:"include_full_text"`
	MaxPublications  int    `mapstructure:"max_publications"`
	MaxFullTextChars int    `mapstructure:"max_full_text_chars"`
	Timeout          string `mapstructure:"timeout"`
}

// Pipeline holds orchestration and inclusion threshold configuration
type Pipeline struct {
	MinBioScore           float64 `mapstructure:"min_bio_score"`
	MinDocumentationScore float64 `mapstructure:"min_documentation_score"`
	MinScore              float64 `mapstructure:"min_score"` // legacy combined threshold
	Limit                 int     `mapstructure:"limit"`
	DryRun                bool    `mapstructure:"dry_run"`
	ResumeFromEnriched    bool    `mapstructure:"resume_from_enriched"`
}

// Output holds report and payload output configuration
type Output struct {
	Directory      string `mapstructure:"directory"`
	PayloadVersion string `mapstructure:"payload_version"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".toolvet")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// Ollama defaults
	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("ollama.model", "llama3.1:8b")
	viper.SetDefault("ollama.schema_retries", 2)
	viper.SetDefault("ollama.concurrency", 8)
	viper.SetDefault("ollama.temperature", 0.1)
	viper.SetDefault("ollama.top_p", 0.9)
	viper.SetDefault("ollama.seed", 0)
	viper.SetDefault("ollama.timeout", "120s")
	viper.SetDefault("ollama.transport_retries", 3)
	viper.SetDefault("ollama.audit_log", "")

	// Homepage scraper defaults
	viper.SetDefault("enrichment.homepage.timeout", "15s")
	viper.SetDefault("enrichment.homepage.user_agent", "toolvet/0.1")
	viper.SetDefault("enrichment.homepage.max_bytes", 2*1024*1024)
	viper.SetDefault("enrichment.homepage.max_frames", 5)
	viper.SetDefault("enrichment.homepage.max_frame_depth", 2)

	// Europe PMC defaults
	viper.SetDefault("enrichment.europe_pmc.enabled", true)
	viper.SetDefault("enrichment.europe_pmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	viper.SetDefault("enrichment.europe_pmc.include_full_text", false)
	viper.SetDefault("enrichment.europe_pmc.max_publications", 1)
	viper.SetDefault("enrichment.europe_pmc.max_full_text_chars", 20000)
	viper.SetDefault("enrichment.europe_pmc.timeout", "20s")

	// Pipeline defaults
	viper.SetDefault("pipeline.min_bio_score", 0.5)
	viper.SetDefault("pipeline.min_documentation_score", 0.4)
	viper.SetDefault("pipeline.min_score", 0.0)
	viper.SetDefault("pipeline.limit", 0)
	viper.SetDefault("pipeline.dry_run", false)
	viper.SetDefault("pipeline.resume_from_enriched", false)

	// Output defaults
	viper.SetDefault("output.directory", "out")
	viper.SetDefault("output.payload_version", "1")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Ollama endpoint - OLLAMA_HOST is the conventional variable
	bindEnvKeys("ollama.host", []string{
		"OLLAMA_HOST",
		"TOOLVET_OLLAMA_HOST",
	})

	bindEnvKeys("ollama.model", []string{
		"OLLAMA_MODEL",
		"TOOLVET_OLLAMA_MODEL",
	})

	bindEnvKeys("enrichment.europe_pmc.base_url", []string{
		"EUROPE_PMC_BASE_URL",
	})

	bindEnvKeys("enrichment.homepage.user_agent", []string{
		"TOOLVET_USER_AGENT",
	})

	bindEnvKeys("output.directory", []string{
		"TOOLVET_OUTPUT_DIR",
	})

	bindEnvKeys("logging.level", []string{
		"TOOLVET_LOG_LEVEL",
	})

	bindEnvKeys("scoring_prompt_template", []string{
		"TOOLVET_PROMPT_TEMPLATE",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}
	if config.Ollama.AuditLog != "" {
		config.Ollama.AuditLog = expandPath(config.Ollama.AuditLog)
	}
	if config.ScoringPromptTemplate != "" {
		config.ScoringPromptTemplate = expandPath(config.ScoringPromptTemplate)
	}

	// Clamp counters to sane ranges
	if config.Ollama.SchemaRetries < 0 {
		config.Ollama.SchemaRetries = 0
	}
	if config.Ollama.Concurrency < 1 {
		config.Ollama.Concurrency = 1
	}
	if config.Ollama.TransportRetries < 0 {
		config.Ollama.TransportRetries = 0
	}
	if config.Enrichment.EuropePMC.MaxPublications < 0 {
		config.Enrichment.EuropePMC.MaxPublications = 0
	}
	if config.Pipeline.Limit < 0 {
		config.Pipeline.Limit = 0
	}

	// Validate durations
	durations := map[string]string{
		"ollama.timeout":                config.Ollama.Timeout,
		"enrichment.homepage.timeout":   config.Enrichment.Homepage.Timeout,
		"enrichment.europe_pmc.timeout": config.Enrichment.EuropePMC.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	if config.Ollama.Model == "" {
		errors = append(errors, "Ollama model is required. Set OLLAMA_MODEL or ollama.model in the config file")
	}

	if u, err := url.Parse(config.Ollama.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("ollama.host must be an http(s) URL, got %q", config.Ollama.Host))
	}

	for key, score := range map[string]float64{
		"pipeline.min_bio_score":           config.Pipeline.MinBioScore,
		"pipeline.min_documentation_score": config.Pipeline.MinDocumentationScore,
		"pipeline.min_score":               config.Pipeline.MinScore,
	} {
		if score < 0 || score > 1 {
			errors = append(errors, fmt.Sprintf("%s must be within [0,1], got %g", key, score))
		}
	}

	if config.Enrichment.Homepage.MaxBytes <= 0 {
		errors = append(errors, "enrichment.homepage.max_bytes must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetOllama() Ollama         { return Get().Ollama }
func GetEnrichment() Enrichment { return Get().Enrichment }
func GetPipeline() Pipeline     { return Get().Pipeline }
func GetOutput() Output         { return Get().Output }
func GetLogging() Logging       { return Get().Logging }

// Specific convenience getters for frequently accessed values
func GetOllamaHost() string      { return Get().Ollama.Host }
func GetOllamaModel() string     { return Get().Ollama.Model }
func GetOutputDirectory() string { return Get().Output.Directory }

// Thresholds returns the effective inclusion thresholds. The legacy combined
// pipeline.min_score, when set, overrides both per-axis values.
func (p Pipeline) Thresholds() (minBio, minDoc float64) {
	if p.MinScore > 0 {
		return p.MinScore, p.MinScore
	}
	return p.MinBioScore, p.MinDocumentationScore
}

// TimeoutDuration returns the configured model call timeout.
func (o Ollama) TimeoutDuration() time.Duration {
	return durationOrDefault(o.Timeout, 120*time.Second)
}

// TimeoutDuration returns the configured homepage fetch timeout.
func (h Homepage) TimeoutDuration() time.Duration {
	return durationOrDefault(h.Timeout, 15*time.Second)
}

// TimeoutDuration returns the configured literature lookup timeout.
func (e EuropePMC) TimeoutDuration() time.Duration {
	return durationOrDefault(e.Timeout, 20*time.Second)
}

// durationOrDefault parses a duration string validated at load time,
// falling back to def when the value is empty.
func durationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
