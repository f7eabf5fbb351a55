package rdstation

import (
	"context"

	"github.com/tombee/rdstation-connector/internal/operation"
)

// ParameterResolver resolves node parameters against one input item.
type ParameterResolver interface {
	Resolve(params map[string]interface{}, item map[string]interface{}) (map[string]interface{}, error)
}

// RunOptions configures a batch of events.
type RunOptions struct {
	// Category of every event in the batch.
	Category Category

	// Params are the node parameters. Values may be expressions resolved
	// per item by Resolver.
	Params map[string]interface{}

	// Resolver evaluates Params per item. Nil uses Params as given.
	Resolver ParameterResolver

	// ErrorMode selects stop or continue on a failing item.
	ErrorMode operation.ErrorMode
}

// Run sends one event per item, strictly in order. Inputs for an item are
// the item's fields overlaid with the resolved parameters. Each response is
// split into output records paired with the item index.
func (c *Integration) Run(ctx context.Context, items []operation.Item, opts RunOptions) ([]operation.OutputItem, error) {
	if _, ok := EventType(opts.Category); !ok {
		return nil, operation.NewConfigurationError("unknown event category %q", opts.Category)
	}

	runner := operation.NewBatchRunner(c.NodeName(), opts.ErrorMode, c.Logger())
	return runner.Run(ctx, items, func(ctx context.Context, index int, item operation.Item) ([]map[string]interface{}, error) {
		params := opts.Params
		if opts.Resolver != nil {
			resolved, err := opts.Resolver.Resolve(opts.Params, item.JSON)
			if err != nil {
				return nil, operation.NewValidationError("resolve parameters: %v", err)
			}
			params = resolved
		}

		inputs := make(map[string]interface{}, len(item.JSON)+len(params))
		for k, v := range item.JSON {
			inputs[k] = v
		}
		for k, v := range params {
			inputs[k] = v
		}

		result, err := c.SendEvent(ctx, opts.Category, inputs)
		if err != nil {
			return nil, err
		}
		return operation.JSONRecords(result.Response), nil
	})
}
