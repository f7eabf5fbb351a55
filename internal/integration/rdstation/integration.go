// Package rdstation sends marketing events to the RD Station Marketing API.
package rdstation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/rdstation-connector/internal/credentials"
	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/api"
)

const (
	// DefaultBaseURL is the RD Station platform API.
	DefaultBaseURL = "https://api.rd.services/platform"

	// DefaultNodeName names the node in errors.
	DefaultNodeName = "RD Station"

	eventsResource = "/events"
	tracerName     = "github.com/tombee/rdstation-connector/internal/integration/rdstation"
)

// Integration implements the Connector interface for RD Station events.
type Integration struct {
	*api.BaseProvider
	tracer trace.Tracer
}

// NewIntegration creates a new RD Station integration.
func NewIntegration(config *api.ProviderConfig) (*Integration, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config is required")
	}
	if config.Executor == nil {
		return nil, operation.NewConfigurationError("rdstation: request executor is required")
	}

	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CredentialName == "" {
		cfg.CredentialName = credentials.RDStationOAuth2.Name
	}
	if cfg.NodeName == "" {
		cfg.NodeName = DefaultNodeName
	}

	return &Integration{
		BaseProvider: api.NewBaseProvider("rdstation", &cfg),
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// NewConnector creates the integration as an operation.Connector.
func NewConnector(config *api.ProviderConfig) (operation.Connector, error) {
	integration, err := NewIntegration(config)
	if err != nil {
		return nil, err
	}
	return integration, nil
}

// Execute runs a named operation with the given inputs. Operation names are
// event categories.
func (c *Integration) Execute(ctx context.Context, opName string, inputs map[string]interface{}) (*operation.Result, error) {
	category, err := ParseCategory(opName)
	if err != nil {
		return nil, operation.NewConfigurationError("unknown operation: %s", opName)
	}
	return c.SendEvent(ctx, category, inputs)
}

// SendEvent validates inputs, builds the event and sends it.
func (c *Integration) SendEvent(ctx context.Context, category Category, inputs map[string]interface{}) (*operation.Result, error) {
	ev, err := EventFromInputs(category, inputs)
	if err != nil {
		recordFailed(category, errorType(err))
		return nil, err
	}
	return c.Send(ctx, ev)
}

// Send posts ev to the events endpoint.
func (c *Integration) Send(ctx context.Context, ev Event) (*operation.Result, error) {
	category := ev.Category()
	envelope := BuildEnvelope(ev)

	c.Logger().Debug("sending event",
		slog.String(log.CategoryKey, string(category)),
		slog.String("event_type", envelope.EventType))

	start := time.Now()
	resp, err := c.Request(ctx, "POST", eventsResource, envelope.Body(), nil, "")
	if err != nil {
		recordFailed(category, errorType(err))
		return nil, err
	}
	duration := time.Since(start)
	recordSent(category, duration)

	c.Logger().Info("event sent",
		slog.String(log.CategoryKey, string(category)),
		slog.Int(log.StatusCodeKey, resp.StatusCode),
		slog.Int64(log.DurationKey, duration.Milliseconds()))

	var decoded interface{}
	if err := c.ParseJSONResponse(resp, &decoded); err != nil {
		decoded = string(resp.Body)
	}
	return c.ToResult(resp, decoded), nil
}

// Operations returns the list of available operations.
func (c *Integration) Operations() []api.OperationInfo {
	return []api.OperationInfo{
		{Name: string(CategoryConversion), Description: "Register a new conversion for a lead", Category: "events", Tags: []string{"write"}},
		{Name: string(CategoryOpportunity), Description: "Mark a contact as an opportunity in a funnel", Category: "events", Tags: []string{"write"}},
		{Name: string(CategorySale), Description: "Mark an opportunity as won", Category: "events", Tags: []string{"write"}},
		{Name: string(CategoryLost), Description: "Mark an opportunity as lost", Category: "events", Tags: []string{"write"}},
		{Name: string(CategoryCallFinished), Description: "Record a finished call from call tracking", Category: "events", Tags: []string{"write"}},
	}
}

// OperationSchema returns the schema for an operation.
func (c *Integration) OperationSchema(opName string) *api.OperationSchema {
	category, err := ParseCategory(opName)
	if err != nil {
		return nil
	}
	return Schema(category)
}

// errorType returns the metric label for err.
func errorType(err error) string {
	var opErr *operation.Error
	if errors.As(err, &opErr) {
		return string(opErr.Type)
	}
	return "unknown"
}
