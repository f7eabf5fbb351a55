package operation

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tombee/rdstation-connector/internal/log"
)

// ErrorMode selects what a batch run does when an item fails.
type ErrorMode int

const (
	// StopOnError aborts the batch on the first failing item and returns
	// the error annotated with that item's index.
	StopOnError ErrorMode = iota

	// ContinueOnError records the failure in the item's output slot and
	// proceeds with the next item.
	ContinueOnError
)

// String returns the mode name used in logs.
func (m ErrorMode) String() string {
	if m == ContinueOnError {
		return "continue_on_error"
	}
	return "stop_on_error"
}

// ErrorModeFor maps a continue-on-fail flag to an ErrorMode.
func ErrorModeFor(continueOnFail bool) ErrorMode {
	if continueOnFail {
		return ContinueOnError
	}
	return StopOnError
}

// Item is one unit of work handed to a node.
type Item struct {
	JSON map[string]interface{}
}

// OutputItem is one record produced by a node. Every record is paired with
// the index of the input item that produced it.
type OutputItem struct {
	JSON       map[string]interface{}
	Error      error
	PairedItem int
}

// MarshalJSON renders the record with the error as a message string.
func (o OutputItem) MarshalJSON() ([]byte, error) {
	out := struct {
		JSON       map[string]interface{} `json:"json"`
		Error      string                 `json:"error,omitempty"`
		PairedItem int                    `json:"paired_item"`
	}{
		JSON:       o.JSON,
		PairedItem: o.PairedItem,
	}
	if out.JSON == nil {
		out.JSON = map[string]interface{}{}
	}
	if o.Error != nil {
		out.Error = o.Error.Error()
	}
	return json.Marshal(out)
}

// ItemFunc processes a single item and returns the records it produced.
type ItemFunc func(ctx context.Context, index int, item Item) ([]map[string]interface{}, error)

// BatchRunner processes items strictly in order, one at a time.
type BatchRunner struct {
	node   string
	mode   ErrorMode
	logger *slog.Logger
}

// NewBatchRunner creates a runner attributing failures to node.
func NewBatchRunner(node string, mode ErrorMode, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = log.Discard()
	}
	return &BatchRunner{
		node:   node,
		mode:   mode,
		logger: logger,
	}
}

// Run calls fn for each item in order. On failure with StopOnError the
// records produced so far are returned together with the annotated error.
func (b *BatchRunner) Run(ctx context.Context, items []Item, fn ItemFunc) ([]OutputItem, error) {
	runID := uuid.NewString()
	logger := log.WithRunContext(b.logger, runID, b.node)
	logger.Debug("batch started", slog.Int("items", len(items)), slog.String("error_mode", b.mode.String()))

	out := make([]OutputItem, 0, len(items))
	failed := 0

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, WithItemIndex(err, b.node, i)
		}

		records, err := fn(ctx, i, item)
		if err != nil {
			if b.mode == ContinueOnError {
				failed++
				logger.Warn("item failed, continuing",
					slog.Int(log.ItemIndexKey, i),
					log.Error(err))
				out = append(out, OutputItem{JSON: item.JSON, Error: err, PairedItem: i})
				continue
			}

			logger.Error("item failed, aborting batch",
				slog.Int(log.ItemIndexKey, i),
				log.Error(err))
			return out, WithItemIndex(err, b.node, i)
		}

		for _, rec := range records {
			out = append(out, OutputItem{JSON: rec, PairedItem: i})
		}
	}

	logger.Debug("batch finished", slog.Int("outputs", len(out)), slog.Int("failed", failed))
	return out, nil
}

// JSONRecords splits a decoded JSON response into output records.
// An array yields one record per element; an object yields itself.
// Non-object values are wrapped under "value".
func JSONRecords(response interface{}) []map[string]interface{} {
	switch v := response.(type) {
	case nil:
		return []map[string]interface{}{{}}
	case map[string]interface{}:
		return []map[string]interface{}{v}
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(v))
		for _, elem := range v {
			if m, ok := elem.(map[string]interface{}); ok {
				records = append(records, m)
				continue
			}
			records = append(records, map[string]interface{}{"value": elem})
		}
		return records
	default:
		return []map[string]interface{}{{"value": v}}
	}
}
