package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/tombee/rdstation-connector/internal/log"
)

// HTTPTransportConfig configures the plain HTTP transport.
type HTTPTransportConfig struct {
	// Timeout for requests (default: 30s)
	Timeout time.Duration

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client

	// Logger receives request logs. Defaults to a discarding logger.
	Logger *slog.Logger
}

// HTTPTransport sends Request descriptors over net/http.
// Each Execute performs exactly one round trip.
type HTTPTransport struct {
	client      *http.Client
	rateLimiter RateLimiter
	logger      *slog.Logger
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg *HTTPTransportConfig) (*HTTPTransport, error) {
	if cfg == nil {
		cfg = &HTTPTransportConfig{}
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	return &HTTPTransport{
		client: client,
		logger: logger,
	}, nil
}

// Name returns the transport identifier.
func (t *HTTPTransport) Name() string {
	return "http"
}

// SetRateLimiter configures rate limiting for this transport.
func (t *HTTPTransport) SetRateLimiter(limiter RateLimiter) {
	t.rateLimiter = limiter
}

// Client returns the underlying HTTP client.
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Execute sends the request once and returns the response.
// Non-2xx responses are returned as a TransportError carrying the body.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, &TransportError{
			Type:    ErrorTypeInvalidReq,
			Message: fmt.Sprintf("invalid request: %s", err.Error()),
			Cause:   err,
		}
	}

	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, &TransportError{
				Type:    ErrorTypeCancelled,
				Message: "rate limiter cancelled",
				Cause:   err,
			}
		}
	}

	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, &TransportError{
			Type:    ErrorTypeInvalidReq,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Cause:   err,
		}
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Type:      ErrorTypeConnection,
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     err,
		}
	}
	duration := time.Since(start)

	requestID := resp.Header.Get("X-Request-ID")
	t.logger.Debug("http request completed",
		slog.String("method", req.Method),
		slog.String("url", httpReq.URL.Redacted()),
		slog.Int(log.StatusCodeKey, resp.StatusCode),
		slog.Int64(log.DurationKey, duration.Milliseconds()))
	log.Trace(ctx, t.logger, "http response body", slog.String("body", string(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, respBody, requestID)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		Metadata: map[string]interface{}{
			MetadataRequestID: requestID,
			MetadataDuration:  duration,
		},
	}, nil
}

// validateRequest checks if the request is valid.
func validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	// Any verb is allowed as long as it is a valid token.
	if !httpguts.ValidHeaderFieldName(req.Method) {
		return fmt.Errorf("invalid HTTP method: %q", req.Method)
	}

	if req.URL == "" {
		return fmt.Errorf("URL is required")
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return fmt.Errorf("URL must be absolute: %q", req.URL)
	}

	return nil
}

// buildHTTPRequest encodes the descriptor into an *http.Request.
func buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for key, value := range req.Query {
			addQueryValue(q, key, value)
		}
		u.RawQuery = q.Encode()
	}

	body, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), reader)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.JSON {
		if body != nil && httpReq.Header.Get("Content-Type") == "" {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if httpReq.Header.Get("Accept") == "" {
			httpReq.Header.Set("Accept", "application/json")
		}
	}

	return httpReq, nil
}

// encodeBody serializes the request body. Nil bodies encode to nil.
func encodeBody(req *Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}

	switch b := req.Body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}

	if !req.JSON {
		return nil, fmt.Errorf("body of type %T requires JSON encoding", req.Body)
	}

	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// addQueryValue adds one query parameter, expanding slices.
func addQueryValue(q url.Values, key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case []string:
		for _, s := range v {
			q.Add(key, s)
		}
	case []interface{}:
		for _, s := range v {
			q.Add(key, fmt.Sprint(s))
		}
	default:
		q.Set(key, fmt.Sprint(v))
	}
}

// statusError builds a TransportError for a non-2xx response.
func statusError(statusCode int, body []byte, requestID string) *TransportError {
	errorType := ErrorTypeServer
	retryable := true
	if statusCode < 500 {
		errorType = ErrorTypeClient
		retryable = false
		switch statusCode {
		case http.StatusTooManyRequests:
			errorType = ErrorTypeRateLimit
			retryable = true
		case http.StatusUnauthorized, http.StatusForbidden:
			errorType = ErrorTypeAuth
		}
	}

	return &TransportError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("request failed with status %d", statusCode),
		RequestID:  requestID,
		Retryable:  retryable,
		Metadata: map[string]interface{}{
			MetadataResponseBody: string(body),
		},
	}
}

// classifyHTTPError classifies HTTP client errors into TransportError types.
func classifyHTTPError(err error) *TransportError {
	if errors.Is(err, context.Canceled) {
		return &TransportError{
			Type:    ErrorTypeCancelled,
			Message: "request cancelled",
			Cause:   err,
		}
	}

	if isTimeoutError(err) {
		return &TransportError{
			Type:      ErrorTypeTimeout,
			Message:   "request timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	return &TransportError{
		Type:      ErrorTypeConnection,
		Message:   "connection error",
		Retryable: true,
		Cause:     err,
	}
}

// isTimeoutError reports whether err is a deadline or network timeout.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
