package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// BaseProvider provides common functionality for API integrations.
type BaseProvider struct {
	name       string
	executor   transport.AuthenticatedExecutor
	baseURL    string
	credential string
	node       string
	logger     *slog.Logger
}

// NewBaseProvider creates a new base provider.
func NewBaseProvider(name string, config *ProviderConfig) *BaseProvider {
	logger := config.Logger
	if logger == nil {
		logger = log.Discard()
	}
	node := config.NodeName
	if node == "" {
		node = name
	}
	return &BaseProvider{
		name:       name,
		executor:   config.Executor,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		credential: config.CredentialName,
		node:       node,
		logger:     log.WithComponent(logger, name),
	}
}

// Name returns the integration identifier.
func (c *BaseProvider) Name() string {
	return c.name
}

// NodeName returns the node name used to attribute errors.
func (c *BaseProvider) NodeName() string {
	return c.node
}

// CredentialName returns the stored credential the provider authenticates with.
func (c *BaseProvider) CredentialName() string {
	return c.credential
}

// BaseURL returns the API base URL.
func (c *BaseProvider) BaseURL() string {
	return c.baseURL
}

// Logger returns the provider's logger.
func (c *BaseProvider) Logger() *slog.Logger {
	return c.logger
}

// BuildURL joins the base URL and resource. A non-empty override replaces
// the result entirely.
func (c *BaseProvider) BuildURL(resource, override string) string {
	if override != "" {
		return override
	}
	return c.baseURL + resource
}

// ExecuteRequest sends req under the provider's credential.
func (c *BaseProvider) ExecuteRequest(ctx context.Context, req *transport.Request, opts *transport.OAuth2Options) (*transport.Response, error) {
	if c.executor == nil {
		return nil, operation.NewConfigurationError("%s: no request executor configured", c.name)
	}
	return c.executor.ExecuteAuthenticated(ctx, c.credential, req, opts)
}

// ParseJSONResponse parses a JSON response into a target.
// An empty body leaves target untouched.
func (c *BaseProvider) ParseJSONResponse(resp *transport.Response, target interface{}) error {
	if len(resp.Body) == 0 {
		return nil
	}

	return json.Unmarshal(resp.Body, target)
}

// ToResult converts a transport response to an operation result.
func (c *BaseProvider) ToResult(resp *transport.Response, response interface{}) *operation.Result {
	return &operation.Result{
		Response:    response,
		RawResponse: resp.Body,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		Metadata:    resp.Metadata,
	}
}

// StringInput returns inputs[key] rendered as a string. Missing and nil
// values yield "".
func StringInput(inputs map[string]interface{}, key string) string {
	switch v := inputs[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
