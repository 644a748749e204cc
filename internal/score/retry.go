package score

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"toolvet/internal/logger"
	"toolvet/internal/ollama"
)

// ErrRetriesExhausted marks a candidate whose model output never
// validated within the retry budget.
var ErrRetriesExhausted = errors.New("schema repair retries exhausted")

// RetryError carries the full failure history of one scoring attempt
// sequence.
type RetryError struct {
	Attempts   int
	LastErrors []string
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("no valid response after %d attempts: %s", e.Attempts, strings.Join(e.LastErrors, "; "))
}

func (e *RetryError) Unwrap() error { return ErrRetriesExhausted }

// Generator is the model capability the retry loop drives.
type Generator interface {
	Generate(ctx context.Context, prompt string) (map[string]any, error)
}

// Diagnostics records how a response was obtained.
type Diagnostics struct {
	Attempts        int        // Generate calls made
	SchemaErrors    [][]string // Validation errors per failed attempt
	PromptAugmented bool       // Whether a repair prompt was sent
}

const repairPreface = "The previous response did not validate against the JSON schema because:"

const repairInstruction = "Answer again with a single JSON object that fixes every problem listed above. " +
	"Do not change keys that were already valid."

// RunWithRetries drives the attempt loop: generate, validate, and on
// parse or schema failure retry with the prior errors appended to the
// prompt. Transport failures fail fast. Total attempts = 1 + schemaRetries.
func RunWithRetries(ctx context.Context, gen Generator, basePrompt string, schemaRetries int) (map[string]any, Diagnostics, error) {
	if schemaRetries < 0 {
		schemaRetries = 0
	}

	var diag Diagnostics
	prompt := basePrompt
	var lastErrors []string

	for attempt := 1; attempt <= 1+schemaRetries; attempt++ {
		diag.Attempts = attempt

		resp, err := gen.Generate(ctx, prompt)
		switch {
		case err == nil:
			if errs := ValidateResponse(resp); len(errs) > 0 {
				lastErrors = errs
				diag.SchemaErrors = append(diag.SchemaErrors, errs)
				logger.Debug("Model response failed validation", "attempt", attempt, "errors", len(errs))
			} else {
				return resp, diag, nil
			}
		case errors.Is(err, ollama.ErrModelUnreachable), errors.Is(err, ollama.ErrModelNotFound):
			return nil, diag, err
		default:
			// Parse failure: retry with the message as the repair hint.
			lastErrors = []string{err.Error()}
			diag.SchemaErrors = append(diag.SchemaErrors, lastErrors)
			logger.Debug("Model response unparseable", "attempt", attempt, "error", err.Error())
		}

		if ctx.Err() != nil {
			return nil, diag, ctx.Err()
		}
		if attempt <= schemaRetries {
			prompt = augmentPrompt(basePrompt, lastErrors)
			diag.PromptAugmented = true
		}
	}

	return nil, diag, &RetryError{Attempts: diag.Attempts, LastErrors: lastErrors}
}

// augmentPrompt appends the prior attempt's errors to the base prompt as
// a bullet list with a repair instruction.
func augmentPrompt(basePrompt string, errs []string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(repairPreface)
	sb.WriteString("\n")
	for _, e := range errs {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	sb.WriteString(repairInstruction)
	return sb.String()
}
