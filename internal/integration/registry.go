package integration

import (
	"fmt"
	"sort"

	"github.com/tombee/rdstation-connector/internal/integration/rdstation"
	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/api"
)

// Factory creates a configured connector.
type Factory func(config *api.ProviderConfig) (operation.Connector, error)

// BuiltinRegistry holds all built-in API integration factories.
var BuiltinRegistry = map[string]Factory{
	"rdstation": rdstation.NewConnector,
}

// New creates the named integration.
func New(name string, config *api.ProviderConfig) (operation.Connector, error) {
	factory, ok := BuiltinRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integration %q (available: %v)", name, Names())
	}
	return factory(config)
}

// Names returns the registered integration names in sorted order.
func Names() []string {
	names := make([]string, 0, len(BuiltinRegistry))
	for name := range BuiltinRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
