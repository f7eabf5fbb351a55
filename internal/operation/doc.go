// Package operation provides the shared framework for integration operations.
//
// The framework handles:
//   - Connectors and their results
//   - Classified errors with node and item attribution
//   - Batch execution over input items with stop or continue error modes
//
// HTTP and OAuth2 transports live in the transport subpackage. Typed provider
// helpers live in api.
package operation
