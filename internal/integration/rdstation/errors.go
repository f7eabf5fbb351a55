package rdstation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// APIError is an error response from the RD Station API.
type APIError struct {
	StatusCode int

	// ErrorType is the API error_type of the first reported error
	// (e.g., "UNAUTHORIZED", "CANNOT_BE_NULL").
	ErrorType string

	Message string

	// Fields holds validation errors keyed by payload field.
	Fields map[string][]FieldError

	// Body is the raw response body.
	Body string

	cause *transport.TransportError
}

// FieldError is one validation failure on a payload field.
type FieldError struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "RD Station API error (HTTP %d)", e.StatusCode)
	if e.ErrorType != "" {
		fmt.Fprintf(&b, " %s", e.ErrorType)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			for _, fe := range e.Fields[name] {
				parts = append(parts, fmt.Sprintf("%s: %s", name, fe.ErrorMessage))
			}
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	return b.String()
}

// Unwrap returns the transport error that carried the response.
func (e *APIError) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause
}

// IsNotFound returns true if the error is a 404 not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsRateLimited returns true if the error is a rate limit error.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsAuthError returns true if the error is an authentication/authorization error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ParseError decodes the RD Station error body carried by an HTTP
// TransportError. Other errors are returned unchanged.
//
// The API reports errors in three shapes:
//
//	{"errors": {"error_type": "...", "error_message": "..."}}
//	{"errors": [{"error_type": "...", "error_message": "..."}]}
//	{"errors": {"<field>": [{"error_type": "...", "error_message": "..."}]}}
func ParseError(err error) error {
	var te *transport.TransportError
	if !errors.As(err, &te) || te.StatusCode == 0 {
		return err
	}

	body := te.ResponseBody()
	apiErr := &APIError{
		StatusCode: te.StatusCode,
		Body:       string(body),
		cause:      te,
	}

	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil || len(envelope.Errors) == 0 {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = te.Message
		}
		return apiErr
	}

	var single FieldError
	if json.Unmarshal(envelope.Errors, &single) == nil && single.ErrorType != "" {
		apiErr.ErrorType = single.ErrorType
		apiErr.Message = single.ErrorMessage
		return apiErr
	}

	var list []FieldError
	if json.Unmarshal(envelope.Errors, &list) == nil && len(list) > 0 {
		apiErr.ErrorType = list[0].ErrorType
		apiErr.Message = list[0].ErrorMessage
		return apiErr
	}

	var fields map[string][]FieldError
	if json.Unmarshal(envelope.Errors, &fields) == nil && len(fields) > 0 {
		apiErr.Fields = fields
		apiErr.Message = "invalid event payload"
		for _, name := range sortedKeys(fields) {
			if len(fields[name]) > 0 {
				apiErr.ErrorType = fields[name][0].ErrorType
				break
			}
		}
		return apiErr
	}

	apiErr.Message = string(envelope.Errors)
	return apiErr
}

func sortedKeys(m map[string][]FieldError) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
