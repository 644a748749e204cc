package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"toolvet/internal/logger"
)

// retryStatuses are the HTTP codes retried at the transport layer.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

const (
	backoffBase = 250 * time.Millisecond
	backoffCap  = 4 * time.Second
)

// Config configures the model client.
type Config struct {
	Host             string        // Endpoint root, e.g. http://localhost:11434
	Model            string        // Model name passed on every request
	Timeout          time.Duration // Per-call timeout
	Temperature      float64       // Sampling temperature
	TopP             float64       // Nucleus sampling cutoff
	Seed             int           // Sampling seed; 0 leaves it unset
	TransportRetries int           // Extra attempts on retryable HTTP statuses
	AuditLog         string        // Append-only request/response log path; "" disables
}

// Client submits scoring prompts to a locally hosted Ollama-format
// endpoint and assembles the streamed reply.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(time.Duration) // Swapped out by tests
}

// New builds a Client, filling unset config fields with defaults.
func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      time.Sleep,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Healthy probes the endpoint; any 2xx on /api/tags counts as healthy.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/api/tags", nil)
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: "probe", Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return nil
}

// Generate submits one prompt and returns the JSON object extracted from
// the model's reply. Failures surface as *TransportError (unreachable),
// ErrModelNotFound, or *ParseError (no JSON found).
func (c *Client) Generate(ctx context.Context, prompt string) (map[string]any, error) {
	body, err := c.post(ctx, prompt)
	if err != nil {
		return nil, err
	}

	assembled := assembleStream(body)
	parsed, perr := extractJSON(assembled)
	if perr != nil {
		// The body may itself be a single JSON object rather than a
		// line-delimited stream.
		parsed, perr = extractJSON(string(body))
	}

	c.audit(prompt, assembled)
	if perr != nil {
		return nil, perr
	}
	return parsed, nil
}

// post performs the generate call with transport-level retries on
// retryable statuses and exponential backoff.
func (c *Client) post(ctx context.Context, prompt string) ([]byte, error) {
	options := map[string]any{
		"temperature": c.cfg.Temperature,
		"top_p":       c.cfg.TopP,
	}
	if c.cfg.Seed != 0 {
		options["seed"] = c.cfg.Seed
	}
	payload, err := json.Marshal(map[string]any{
		"model":   c.cfg.Model,
		"prompt":  prompt,
		"stream":  true,
		"options": options,
	})
	if err != nil {
		return nil, &TransportError{Op: "generate", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.TransportRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			if backoff > backoffCap {
				backoff = backoffCap
			}
			logger.Debug("Retrying model call", "attempt", attempt, "backoff", backoff.String())
			c.sleep(backoff)
		}
		if ctx.Err() != nil {
			return nil, &TransportError{Op: "generate", Err: ctx.Err()}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/api/generate", bytes.NewReader(payload))
		if err != nil {
			return nil, &TransportError{Op: "generate", Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Op: "generate", Err: err}
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(string(body)), "not found"):
			return nil, fmt.Errorf("model %q: %w", c.cfg.Model, ErrModelNotFound)
		case retryStatuses[resp.StatusCode]:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &TransportError{Op: "generate", Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
		case readErr != nil:
			return nil, &TransportError{Op: "generate", Err: readErr}
		}
		return body, nil
	}
	return nil, &TransportError{Op: "generate", Err: fmt.Errorf("retries exhausted: %v", lastErr)}
}

// assembleStream concatenates the "response" field of every JSON fragment
// in a line-delimited stream body.
func assembleStream(body []byte) string {
	var sb strings.Builder
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var fragment struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal([]byte(line), &fragment); err != nil {
			continue
		}
		sb.WriteString(fragment.Response)
	}
	return sb.String()
}

// extractJSON parses the outermost {...} span of text as a JSON object.
func extractJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, &ParseError{Raw: text}
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, &ParseError{Raw: text}
	}
	return parsed, nil
}

// audit appends a timestamped request/response record to the audit log.
// Audit failures are swallowed; the log is diagnostics, not output.
func (c *Client) audit(prompt, reply string) {
	if c.cfg.AuditLog == "" {
		return
	}
	f, err := os.OpenFile(c.cfg.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	record := fmt.Sprintf("=== %s\n>>> %s\n<<< %s\n", time.Now().Format(time.RFC3339), prompt, reply)
	_, _ = f.WriteString(record)
}
