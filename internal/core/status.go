package core

import (
	"encoding/json"
	"fmt"
)

// Failure labels recorded in homepage_status when a scrape never produced an
// HTTP status code, or when the document was rejected after one.
const (
	StatusConnectionError = "connection_error"
	StatusTimeout         = "timeout"
	StatusRedirectError   = "redirect_error"
	StatusInvalidURL      = "invalid_url"
	StatusSSLError        = "ssl_error"
	StatusRequestError    = "request_error"
	StatusNonHTMLContent  = "non_html_content"
	StatusContentTooLarge = "content_too_large"
	StatusFilteredPubURL  = "filtered_publication_url"
)

// StatusCode holds either a numeric HTTP status or one of the failure labels
// above. It serializes as a JSON number or string accordingly.
type StatusCode struct {
	Code  int    // HTTP status code, when one was received
	Label string // Failure label, when no usable status exists
}

// HTTPStatus builds a numeric status.
func HTTPStatus(code int) StatusCode { return StatusCode{Code: code} }

// FailureStatus builds a labeled status.
func FailureStatus(label string) StatusCode { return StatusCode{Label: label} }

// IsZero reports whether no status has been recorded yet.
func (s StatusCode) IsZero() bool { return s.Code == 0 && s.Label == "" }

// String renders the status the way it appears in reports.
func (s StatusCode) String() string {
	if s.Code != 0 {
		return fmt.Sprintf("%d", s.Code)
	}
	return s.Label
}

func (s StatusCode) MarshalJSON() ([]byte, error) {
	if s.Code != 0 {
		return json.Marshal(s.Code)
	}
	if s.Label == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s.Label)
}

func (s *StatusCode) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*s = StatusCode{Code: code}
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*s = StatusCode{Label: label}
		return nil
	}
	if string(data) == "null" {
		*s = StatusCode{}
		return nil
	}
	return fmt.Errorf("homepage status must be a number or string, got %s", data)
}
