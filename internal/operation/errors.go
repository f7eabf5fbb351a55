package operation

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// ErrorType classifies operation errors for appropriate handling.
type ErrorType string

const (
	// ErrorTypeAuth indicates authentication or authorization failure (401, 403)
	ErrorTypeAuth ErrorType = "auth_error"

	// ErrorTypeNotFound indicates resource not found (404)
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation indicates invalid request data (400, 422) or
	// invalid node parameters caught before dispatch
	ErrorTypeValidation ErrorType = "validation_error"

	// ErrorTypeConfiguration indicates the node itself is misconfigured
	// (unknown operation, unmapped category)
	ErrorTypeConfiguration ErrorType = "configuration_error"

	// ErrorTypeRateLimit indicates rate limit exceeded (429)
	ErrorTypeRateLimit ErrorType = "rate_limited"

	// ErrorTypeServer indicates server-side error (500, 502, 503, 504)
	ErrorTypeServer ErrorType = "server_error"

	// ErrorTypeTimeout indicates operation timeout
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeConnection indicates network/DNS error
	ErrorTypeConnection ErrorType = "connection_error"

	// ErrorTypeExecution is used for item failures with no finer classification
	ErrorTypeExecution ErrorType = "execution_error"
)

// ExecutionContext locates an error within a node execution.
type ExecutionContext struct {
	// Node is the name of the node that produced the error.
	Node string

	// ItemIndex is the index of the input item being processed,
	// or -1 when the error is not tied to an item yet.
	ItemIndex int
}

// Error represents an operation execution error with classification.
type Error struct {
	// Type classifies the error
	Type ErrorType

	// Message is the human-readable error description
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// SuggestText provides guidance on how to resolve the error.
	SuggestText string

	// RequestID from the external service
	RequestID string

	// Context associates the error with the node and item that produced it.
	// Nil until the error has been attributed.
	Context *ExecutionContext

	// Cause is the underlying error, kept intact for errors.As
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("OperationError: %s", e.Message)

	if e.Type != "" {
		msg = fmt.Sprintf("%s (type: %s)", msg, e.Type)
	}

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}

	if e.Context != nil && e.Context.ItemIndex >= 0 {
		msg = fmt.Sprintf("%s (item %d)", msg, e.Context.ItemIndex)
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if this error type could succeed on a later attempt.
// The connector itself never retries; this is reported for callers.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// UserMessage returns a user-friendly message without technical details.
func (e *Error) UserMessage() string {
	return e.Message
}

// Suggestion returns actionable guidance for resolving the error.
func (e *Error) Suggestion() string {
	return e.SuggestText
}

// ItemIndex returns the index of the failing item and whether one is set.
func (e *Error) ItemIndex() (int, bool) {
	if e.Context == nil || e.Context.ItemIndex < 0 {
		return 0, false
	}
	return e.Context.ItemIndex, true
}

// ClassifyHTTPError classifies an HTTP status code into an error type.
func ClassifyHTTPError(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeValidation
	}
}

// suggestionFor returns the default suggestion for an error type.
func suggestionFor(errType ErrorType) string {
	switch errType {
	case ErrorTypeAuth:
		return "Check the OAuth2 credential; re-run the authorization flow if the refresh token was revoked"
	case ErrorTypeNotFound:
		return "Verify the resource path is correct"
	case ErrorTypeValidation:
		return "Check the event parameters against the operation schema"
	case ErrorTypeRateLimit:
		return "Wait for the rate limit window or lower rate_limit.requests_per_second"
	case ErrorTypeServer:
		return "Retry later or contact the service provider"
	case ErrorTypeConnection:
		return "Check network connectivity and DNS resolution"
	}
	return ""
}

// ErrorFromHTTPStatus creates an Error from an HTTP response status.
// The response body is not included in the message; it stays on the cause.
func ErrorFromHTTPStatus(statusCode int, requestID string) *Error {
	errType := ClassifyHTTPError(statusCode)
	return &Error{
		Type:        errType,
		StatusCode:  statusCode,
		Message:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		RequestID:   requestID,
		SuggestText: suggestionFor(errType),
	}
}

// NewValidationError creates an error for invalid node parameters.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{
		Type:        ErrorTypeValidation,
		Message:     fmt.Sprintf(format, args...),
		SuggestText: suggestionFor(ErrorTypeValidation),
	}
}

// NewConfigurationError creates an error for a misconfigured node.
func NewConfigurationError(format string, args ...interface{}) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewAPIError wraps a failure surfaced while calling an external API and
// attributes it to the given node. The original error is kept as Cause so
// the upstream payload stays reachable through errors.As.
func NewAPIError(node string, cause error) *Error {
	e := &Error{
		Type:    ErrorTypeExecution,
		Message: "request to external API failed",
		Context: &ExecutionContext{Node: node, ItemIndex: -1},
		Cause:   cause,
	}

	var terr *transport.TransportError
	if errors.As(cause, &terr) {
		e.StatusCode = terr.StatusCode
		e.RequestID = terr.RequestID
		e.Message = terr.Message
		switch {
		case terr.StatusCode > 0:
			e.Type = ClassifyHTTPError(terr.StatusCode)
		case terr.IsType(transport.ErrorTypeAuth):
			e.Type = ErrorTypeAuth
		case terr.IsType(transport.ErrorTypeTimeout), terr.IsType(transport.ErrorTypeCancelled):
			e.Type = ErrorTypeTimeout
		case terr.IsType(transport.ErrorTypeConnection):
			e.Type = ErrorTypeConnection
		case terr.IsType(transport.ErrorTypeInvalidReq):
			e.Type = ErrorTypeValidation
		}
	}
	e.SuggestText = suggestionFor(e.Type)

	return e
}

// WithItemIndex attributes err to the input item at index. When err already
// carries an ExecutionContext only the item index is set on it; everything
// else about the error is preserved. Otherwise err is wrapped in a new
// Error attributed to node.
func WithItemIndex(err error, node string, index int) error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		Type:    ErrorTypeExecution,
		Message: err.Error(),
		Context: &ExecutionContext{Node: node, ItemIndex: index},
		Cause:   err,
	}

	var opErr *Error
	if errors.As(err, &opErr) {
		if opErr.Context != nil {
			opErr.Context.ItemIndex = index
			return err
		}
		wrapped.Type = opErr.Type
		wrapped.Message = opErr.Message
		wrapped.StatusCode = opErr.StatusCode
		wrapped.SuggestText = opErr.SuggestText
	}

	return wrapped
}
