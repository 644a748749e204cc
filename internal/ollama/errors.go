package ollama

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the model boundary. Callers branch on these
// with errors.Is; the wrapping structs carry the detail.
var (
	// ErrModelUnreachable covers connection, timeout, TLS, and terminal
	// HTTP failures of the generate endpoint or the health probe.
	ErrModelUnreachable = errors.New("model endpoint unreachable")

	// ErrModelNotFound marks a 404 whose body says the model is unknown
	// to the server.
	ErrModelNotFound = errors.New("model not found")
)

// TransportError wraps a failed call against the model endpoint.
type TransportError struct {
	Op  string // "generate" or "probe"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrModelUnreachable }

// ParseError reports that no JSON object could be extracted from the
// model's reply. Raw holds a shortened copy of what was received.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no JSON object in model response: %.120s", e.Raw)
}
