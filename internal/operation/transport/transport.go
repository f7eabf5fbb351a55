// Package transport provides protocol-level abstractions for connector execution.
//
// The transport layer separates protocol concerns (HTTP encoding, OAuth2
// bearer tokens, token refresh) from connector-level concerns (payload
// shaping, parameter validation). Connectors build a Request descriptor and
// hand it to a Transport or, for credential-backed calls, to an
// AuthenticatedExecutor.
package transport

import (
	"context"
)

// Transport executes requests with protocol-specific handling.
type Transport interface {
	// Execute sends a request and returns a response.
	// The context controls cancellation and deadlines.
	// Returns TransportError on failure.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Name returns the transport identifier (e.g., "http", "oauth2").
	Name() string

	// SetRateLimiter configures rate limiting for this transport.
	SetRateLimiter(limiter RateLimiter)
}

// AuthenticatedExecutor executes a request using a stored credential set.
// It resolves the credential by name, attaches the access token and
// refreshes it when needed.
type AuthenticatedExecutor interface {
	ExecuteAuthenticated(ctx context.Context, credentialName string, req *Request, opts *OAuth2Options) (*Response, error)
}

// OAuth2Options controls how an AuthenticatedExecutor applies OAuth2.
type OAuth2Options struct {
	// TokenType is the Authorization scheme (e.g., "Bearer").
	// Empty uses the type reported by the token endpoint.
	TokenType string

	// IncludeCredentialsOnRefreshOnBody sends the client credentials in the
	// token refresh request body instead of a Basic Authorization header.
	IncludeCredentialsOnRefreshOnBody bool
}

// Request describes a single outbound call before encoding.
type Request struct {
	// Method is the HTTP method. Required.
	Method string

	// URL is the absolute request URL. Required.
	URL string

	// Headers are request headers.
	Headers map[string]string

	// Body is the request body. With JSON set it is JSON-encoded;
	// otherwise it must be a []byte or string. Nil sends no body.
	Body interface{}

	// Query holds query parameters merged into URL. Slice values
	// produce repeated keys.
	Query map[string]interface{}

	// JSON enables JSON encoding of Body and JSON decoding of the response.
	JSON bool

	// Metadata contains transport-specific data.
	Metadata map[string]interface{}
}

// Clone returns a copy of the request with its own header, query and
// metadata maps. Body is shared.
func (r *Request) Clone() *Request {
	c := *r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	if r.Query != nil {
		c.Query = make(map[string]interface{}, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = v
		}
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Response represents a transport-agnostic response.
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Headers contains response headers
	Headers map[string][]string

	// Body is the raw response body
	Body []byte

	// Metadata contains transport-specific data (e.g., request ID)
	Metadata map[string]interface{}
}

// Standard metadata keys used across transports
const (
	// MetadataRequestID is the service request ID
	MetadataRequestID = "request_id"

	// MetadataDuration is the round-trip time of the request
	MetadataDuration = "duration"

	// MetadataResponseBody holds the raw body of a failed response
	MetadataResponseBody = "response_body"
)

// RateLimiter provides rate limiting for transport requests.
// golang.org/x/time/rate.Limiter satisfies this interface.
type RateLimiter interface {
	// Wait blocks until a request is allowed under the rate limit.
	// Returns an error if the context is cancelled before the request can proceed.
	Wait(ctx context.Context) error
}
