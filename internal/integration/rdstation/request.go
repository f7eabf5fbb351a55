package rdstation

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// RequestOption overrides part of a request before it is sent. Options run
// in order after the defaults are set, so later options win.
type RequestOption func(req *transport.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(req *transport.Request) {
		if req.Headers == nil {
			req.Headers = make(map[string]string)
		}
		req.Headers[key] = value
	}
}

// WithHeaders replaces the whole header set, including the default
// Content-Type. A nil map clears all headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(req *transport.Request) {
		if headers == nil {
			req.Headers = nil
			return
		}
		req.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			req.Headers[k] = v
		}
	}
}

// WithMethod replaces the HTTP method.
func WithMethod(method string) RequestOption {
	return func(req *transport.Request) {
		req.Method = method
	}
}

// WithURL replaces the resolved URL.
func WithURL(url string) RequestOption {
	return func(req *transport.Request) {
		req.URL = url
	}
}

// WithBody replaces the body.
func WithBody(body map[string]interface{}) RequestOption {
	return func(req *transport.Request) {
		if body == nil {
			req.Body = nil
			return
		}
		req.Body = body
	}
}

// WithQuery replaces the query parameters.
func WithQuery(query map[string]interface{}) RequestOption {
	return func(req *transport.Request) {
		req.Query = query
	}
}

// WithJSON toggles JSON encoding.
func WithJSON(enabled bool) RequestOption {
	return func(req *transport.Request) {
		req.JSON = enabled
	}
}

// oauth2Options are applied to every RD Station request. RD Station expects
// the client credentials in the body of token refresh requests.
var oauth2Options = transport.OAuth2Options{
	TokenType:                         "Bearer",
	IncludeCredentialsOnRefreshOnBody: true,
}

// buildRequest assembles the request descriptor for Request.
func (c *Integration) buildRequest(method, resource string, body, query map[string]interface{}, overrideURL string, opts []RequestOption) *transport.Request {
	if query == nil {
		query = map[string]interface{}{}
	}
	req := &transport.Request{
		Method:  method,
		URL:     c.BuildURL(resource, overrideURL),
		Headers: map[string]string{"Content-Type": "application/json"},
		Query:   query,
		JSON:    true,
	}
	if body != nil {
		req.Body = body
	}

	for _, opt := range opts {
		opt(req)
	}

	if m, ok := req.Body.(map[string]interface{}); ok && len(m) == 0 {
		req.Body = nil
	}
	return req
}

// Request sends one authenticated request to the RD Station API. resource
// is appended to the base URL unless overrideURL is set. Failures are
// returned as *operation.Error attributed to this node; HTTP failures carry
// an *APIError with the decoded response.
func (c *Integration) Request(ctx context.Context, method, resource string, body, query map[string]interface{}, overrideURL string, opts ...RequestOption) (*transport.Response, error) {
	req := c.buildRequest(method, resource, body, query, overrideURL, opts)

	ctx, span := c.tracer.Start(ctx, "rdstation.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("rdstation.resource", resource),
			attribute.String("rdstation.node", c.NodeName()),
		),
	)
	defer span.End()

	oauth := oauth2Options
	resp, err := c.ExecuteRequest(ctx, req, &oauth)
	if err != nil {
		apiErr := c.wrapError(err)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Message)
		if apiErr.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
		c.Logger().Debug("request failed",
			slog.String("method", req.Method),
			slog.String("resource", resource),
			slog.Int(log.StatusCodeKey, apiErr.StatusCode),
			log.Error(apiErr))
		return nil, apiErr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// wrapError converts an executor failure into a node API error.
func (c *Integration) wrapError(err error) *operation.Error {
	var existing *operation.Error
	if errors.As(err, &existing) && existing.Context != nil {
		return existing
	}

	parsed := ParseError(err)
	opErr := operation.NewAPIError(c.NodeName(), parsed)

	// The decoded response is printed through the cause; the message only
	// summarizes so the RD Station text appears once.
	var apiErr *APIError
	if errors.As(parsed, &apiErr) {
		opErr.Message = "RD Station rejected the request"
		if apiErr.ErrorType != "" {
			opErr.Message += " (" + apiErr.ErrorType + ")"
		}
	}
	return opErr
}
