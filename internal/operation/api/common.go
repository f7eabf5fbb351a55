// Package api provides common types and utilities for API integrations.
package api

import (
	"log/slog"

	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

// ProviderConfig holds configuration for API integrations.
type ProviderConfig struct {
	// Executor sends requests under a stored OAuth2 credential
	Executor transport.AuthenticatedExecutor

	// BaseURL is the API base URL. Empty uses the integration default.
	BaseURL string

	// CredentialName selects the stored credential set. Empty uses the
	// integration's credential type name.
	CredentialName string

	// NodeName identifies the node in errors and logs
	NodeName string

	// Logger receives integration logs. Nil discards them.
	Logger *slog.Logger
}

// OperationInfo provides metadata about an integration operation.
type OperationInfo struct {
	// Name is the operation identifier (e.g., "conversion")
	Name string `json:"name"`

	// Description is a human-readable description
	Description string `json:"description"`

	// Category groups related operations (e.g., "events")
	Category string `json:"category,omitempty"`

	// Tags classify operations (e.g., "write")
	Tags []string `json:"tags,omitempty"`
}

// OperationSchema describes an operation's inputs and outputs.
type OperationSchema struct {
	// Description is a human-readable description
	Description string `json:"description"`

	// Parameters describes the operation inputs
	Parameters []ParameterInfo `json:"parameters"`

	// ResponseFields describes the response structure
	ResponseFields []ResponseFieldInfo `json:"response_fields,omitempty"`
}

// Parameter returns the named parameter, or nil.
func (s *OperationSchema) Parameter(name string) *ParameterInfo {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i]
		}
	}
	return nil
}

// ParameterInfo describes an operation parameter.
type ParameterInfo struct {
	// Name is the parameter identifier
	Name string `json:"name"`

	// DisplayName is the label shown to users
	DisplayName string `json:"display_name"`

	// Type is the parameter type (string, number, options, collection)
	Type string `json:"type"`

	// Description is a human-readable description
	Description string `json:"description,omitempty"`

	// Required indicates if the parameter is required
	Required bool `json:"required"`

	// Default is the default value (nil if no default)
	Default interface{} `json:"default,omitempty"`

	// Options lists the allowed values for "options" parameters
	Options []string `json:"options,omitempty"`

	// Hidden parameters are fixed and not user editable
	Hidden bool `json:"hidden,omitempty"`
}

// ResponseFieldInfo describes a response field.
type ResponseFieldInfo struct {
	// Name is the field identifier
	Name string `json:"name"`

	// Type is the field type (string, integer, boolean, array, object)
	Type string `json:"type"`

	// Description is a human-readable description
	Description string `json:"description,omitempty"`
}

// TypedProvider extends the base Connector interface with discoverable operations.
type TypedProvider interface {
	// Operations returns the list of available operations with metadata.
	Operations() []OperationInfo

	// OperationSchema returns the operation description and parameter information.
	// Returns nil if the operation doesn't exist.
	OperationSchema(operation string) *OperationSchema
}
