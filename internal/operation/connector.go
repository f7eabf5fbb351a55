package operation

import (
	"context"
)

// Connector represents a configured external integration.
// Each connector can execute multiple named operations.
type Connector interface {
	// Name returns the connector identifier
	Name() string

	// Execute runs a named operation with the given inputs
	Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*Result, error)
}

// Result represents the output of a connector operation.
type Result struct {
	// Response is the decoded response data
	Response interface{}

	// RawResponse is the original response body (for debugging)
	RawResponse []byte

	// StatusCode is the HTTP status code
	StatusCode int

	// Headers contains response headers
	Headers map[string][]string

	// Metadata contains execution metadata (request ID, timing, etc.)
	Metadata map[string]interface{}
}

// GetResponse returns the decoded response data.
func (r *Result) GetResponse() interface{} {
	return r.Response
}

// GetStatusCode returns the HTTP status code.
func (r *Result) GetStatusCode() int {
	return r.StatusCode
}

// GetMetadata returns execution metadata.
func (r *Result) GetMetadata() map[string]interface{} {
	return r.Metadata
}
