package rdstation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/api"
	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// fakeExecutor records requests and answers them with respond.
type fakeExecutor struct {
	credentials []string
	requests    []*transport.Request
	options     []*transport.OAuth2Options
	respond     func(call int, req *transport.Request) (*transport.Response, error)
}

func (f *fakeExecutor) ExecuteAuthenticated(ctx context.Context, credentialName string, req *transport.Request, opts *transport.OAuth2Options) (*transport.Response, error) {
	f.credentials = append(f.credentials, credentialName)
	f.requests = append(f.requests, req)
	f.options = append(f.options, opts)
	if f.respond != nil {
		return f.respond(len(f.requests)-1, req)
	}
	return &transport.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
}

func newTestIntegration(t *testing.T, exec *fakeExecutor) *Integration {
	t.Helper()
	integration, err := NewIntegration(&api.ProviderConfig{Executor: exec})
	require.NoError(t, err)
	return integration
}

func TestRequest_Descriptor(t *testing.T) {
	exec := &fakeExecutor{}
	c := newTestIntegration(t, exec)

	body := map[string]interface{}{"event_type": "SALE"}
	_, err := c.Request(context.Background(), "POST", "/events", body, map[string]interface{}{"a": "1"}, "")
	require.NoError(t, err)
	require.Len(t, exec.requests, 1, "exactly one outbound call")

	req := exec.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://api.rd.services/platform/events", req.URL)
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.Equal(t, body, req.Body)
	assert.Equal(t, map[string]interface{}{"a": "1"}, req.Query)
	assert.True(t, req.JSON)

	assert.Equal(t, "rdStationOAuth2Api", exec.credentials[0])
	assert.Equal(t, &transport.OAuth2Options{TokenType: "Bearer", IncludeCredentialsOnRefreshOnBody: true}, exec.options[0])
}

func TestRequest_EmptyBodyRemoved(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
		opts []RequestOption
	}{
		{name: "empty map", body: map[string]interface{}{}},
		{name: "nil map", body: nil},
		{name: "emptied by option", body: map[string]interface{}{"a": 1}, opts: []RequestOption{WithBody(map[string]interface{}{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			c := newTestIntegration(t, exec)

			_, err := c.Request(context.Background(), "GET", "/events", tt.body, nil, "", tt.opts...)
			require.NoError(t, err)
			assert.Nil(t, exec.requests[0].Body)
		})
	}
}

func TestRequest_OverrideURLAndOptions(t *testing.T) {
	exec := &fakeExecutor{}
	c := newTestIntegration(t, exec)

	_, err := c.Request(context.Background(), "POST", "/events", map[string]interface{}{"a": 1}, nil,
		"https://example.com/custom",
		WithMethod("PATCH"),
		WithHeader("X-Trace", "1"),
		WithHeader("Content-Type", "application/vnd.rd+json"),
		WithQuery(map[string]interface{}{"q": "x"}),
		WithMethod("PUT"),
	)
	require.NoError(t, err)

	req := exec.requests[0]
	assert.Equal(t, "https://example.com/custom", req.URL)
	assert.Equal(t, "PUT", req.Method, "last option wins")
	assert.Equal(t, "1", req.Headers["X-Trace"])
	assert.Equal(t, "application/vnd.rd+json", req.Headers["Content-Type"])
	assert.Equal(t, map[string]interface{}{"q": "x"}, req.Query)

	_, err = c.Request(context.Background(), "POST", "/events", nil, nil, "", WithURL("https://other.example.com"), WithJSON(false))
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", exec.requests[1].URL)
	assert.False(t, exec.requests[1].JSON)
}

func TestRequest_CustomBaseURL(t *testing.T) {
	exec := &fakeExecutor{}
	c, err := NewIntegration(&api.ProviderConfig{
		Executor:       exec,
		BaseURL:        "https://sandbox.rd.services/platform/",
		CredentialName: "marketing",
		NodeName:       "Send lead",
	})
	require.NoError(t, err)

	_, err = c.Request(context.Background(), "POST", "/events", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.rd.services/platform/events", exec.requests[0].URL)
	assert.Equal(t, "marketing", exec.credentials[0])
}

func TestRequest_ErrorWrapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   operation.ErrorType
		wantStatus int
		wantAPI    bool
		wantMsg    string
	}{
		{
			name: "validation error body",
			err: &transport.TransportError{
				Type:       transport.ErrorTypeClient,
				StatusCode: 400,
				Message:    "request failed with status 400",
				Metadata: map[string]interface{}{
					transport.MetadataResponseBody: `{"errors":{"email":[{"error_type":"CANNOT_BE_NULL","error_message":"Cannot be null"}]}}`,
				},
			},
			wantType:   operation.ErrorTypeValidation,
			wantStatus: 400,
			wantAPI:    true,
			wantMsg:    "email: Cannot be null",
		},
		{
			name: "unauthorized",
			err: &transport.TransportError{
				Type:       transport.ErrorTypeAuth,
				StatusCode: 401,
				Metadata: map[string]interface{}{
					transport.MetadataResponseBody: `{"errors":{"error_type":"UNAUTHORIZED","error_message":"Invalid token"}}`,
				},
			},
			wantType:   operation.ErrorTypeAuth,
			wantStatus: 401,
			wantAPI:    true,
			wantMsg:    "UNAUTHORIZED",
		},
		{
			name:     "connection failure",
			err:      &transport.TransportError{Type: transport.ErrorTypeConnection, Message: "connection error", Cause: errors.New("refused")},
			wantType: operation.ErrorTypeConnection,
			wantMsg:  "connection error",
		},
		{
			name:     "missing token",
			err:      &transport.TransportError{Type: transport.ErrorTypeAuth, Message: "credential has no token"},
			wantType: operation.ErrorTypeAuth,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantType: operation.ErrorTypeExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{respond: func(int, *transport.Request) (*transport.Response, error) {
				return nil, tt.err
			}}
			c := newTestIntegration(t, exec)

			_, err := c.Request(context.Background(), "POST", "/events", map[string]interface{}{"a": 1}, nil, "")
			require.Error(t, err)

			var opErr *operation.Error
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, tt.wantType, opErr.Type)
			assert.Equal(t, tt.wantStatus, opErr.StatusCode)
			require.NotNil(t, opErr.Context)
			assert.Equal(t, "RD Station", opErr.Context.Node)
			assert.True(t, errors.Is(err, tt.err), "original error must stay reachable")
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			var apiErr *APIError
			assert.Equal(t, tt.wantAPI, errors.As(err, &apiErr))
		})
	}
}

func TestRequest_PreservesContextualError(t *testing.T) {
	existing := operation.NewAPIError("Upstream", errors.New("x"))
	exec := &fakeExecutor{respond: func(int, *transport.Request) (*transport.Response, error) {
		return nil, existing
	}}
	c := newTestIntegration(t, exec)

	_, err := c.Request(context.Background(), "POST", "/events", nil, nil, "")
	assert.Same(t, existing, err)
}

func TestRequest_ErrorTextNotRepeated(t *testing.T) {
	exec := &fakeExecutor{respond: func(int, *transport.Request) (*transport.Response, error) {
		return nil, &transport.TransportError{
			Type:       transport.ErrorTypeClient,
			StatusCode: 422,
			Message:    "request failed with status 422",
			Metadata: map[string]interface{}{
				transport.MetadataResponseBody: `{"errors":{"error_type":"INVALID","error_message":"bad"}}`,
			},
		}
	}}
	c := newTestIntegration(t, exec)

	_, err := c.Request(context.Background(), "POST", "/events", map[string]interface{}{"a": 1}, nil, "")
	require.Error(t, err)

	msg := err.Error()
	assert.Equal(t, 1, strings.Count(msg, "bad"), "RD Station message repeated: %s", msg)
	assert.Equal(t, 1, strings.Count(msg, "RD Station API error"), "RD Station error repeated: %s", msg)

	var opErr *operation.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "RD Station rejected the request (INVALID)", opErr.UserMessage())
}

func TestRequest_WithHeadersReplacesDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts []RequestOption
		want map[string]string
	}{
		{
			name: "replace",
			opts: []RequestOption{WithHeaders(map[string]string{"Accept": "text/csv"})},
			want: map[string]string{"Accept": "text/csv"},
		},
		{
			name: "header added after replace",
			opts: []RequestOption{WithHeaders(map[string]string{"Accept": "text/csv"}), WithHeader("X-Trace", "1")},
			want: map[string]string{"Accept": "text/csv", "X-Trace": "1"},
		},
		{
			name: "replace after header",
			opts: []RequestOption{WithHeader("X-Trace", "1"), WithHeaders(map[string]string{"Accept": "text/csv"})},
			want: map[string]string{"Accept": "text/csv"},
		},
		{
			name: "clear",
			opts: []RequestOption{WithHeaders(nil)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			c := newTestIntegration(t, exec)

			_, err := c.Request(context.Background(), "POST", "/events", map[string]interface{}{"a": 1}, nil, "", tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exec.requests[0].Headers)
		})
	}
}
