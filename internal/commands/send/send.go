// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package send implements the send command, which dispatches one RD Station
// event per input item.
package send

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/rdstation-connector/internal/binding"
	"github.com/tombee/rdstation-connector/internal/commands/completion"
	"github.com/tombee/rdstation-connector/internal/commands/shared"
	"github.com/tombee/rdstation-connector/internal/integration/rdstation"
	"github.com/tombee/rdstation-connector/internal/jq"
	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/operation"
)

const telemetryShutdownTimeout = 5 * time.Second

type options struct {
	itemsPath      string
	params         []string
	continueOnFail bool
	transform      string
}

// Response is the --json envelope for send.
type Response struct {
	shared.JSONResponse
	Category string                 `json:"category"`
	Items    []operation.OutputItem `json:"items,omitempty"`
	Output   interface{}            `json:"output,omitempty"`
	Error    *shared.JSONError      `json:"error,omitempty"`
}

// NewCommand creates the send command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "send <category>",
		Short: "Send one event per input item",
		Long: `Send builds one RD Station event per input item and posts it to the
events endpoint, strictly in order.

Categories: conversion, opportunity, sale, lost, call_finished.

Items are read from a JSON or YAML file (a list of objects or a single
object; "-" reads stdin). Without --items a single empty item is used, so
parameters alone describe the event. Parameters override item fields and
may be expressions evaluated per item, e.g. --param email='={{ json.email }}'.`,
		Example: `  rdstation send conversion --items leads.json --param identifier=newsletter
  rdstation send sale --param email=lead@example.com --param funnel_name=default --param value=1500
  rdstation send opportunity --items leads.yaml --param funnel_name=default --continue-on-fail
  rdstation send conversion --items leads.json --param identifier=x --transform 'map(.json.event_uuid)'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteCategories,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.itemsPath, "items", "i", "", "JSON or YAML file of input items (\"-\" for stdin)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "Event parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.continueOnFail, "continue-on-fail", false, "Record failed items and keep going (overrides config)")
	cmd.Flags().StringVar(&opts.transform, "transform", "", "jq expression applied to the output records")

	return cmd
}

func run(cmd *cobra.Command, rawCategory string, opts options) error {
	category, err := rdstation.ParseCategory(rawCategory)
	if err != nil {
		return shared.NewInvalidInputError("invalid category", err)
	}

	executor := jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize)
	if err := executor.Validate(opts.transform); err != nil {
		return shared.NewInvalidInputError("invalid --transform", err)
	}

	params, err := parseParams(opts.params)
	if err != nil {
		return shared.NewInvalidInputError("invalid --param", err)
	}

	items, err := readItems(opts.itemsPath, cmd.InOrStdin())
	if err != nil {
		return shared.NewInvalidInputError("failed to read items", err)
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("continue-on-fail") {
		cfg.ContinueOnFail = opts.continueOnFail
	}

	logger := shared.NewLogger(cfg, cmd.ErrOrStderr())
	store, err := shared.NewStore(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tel, err := shared.StartTelemetry(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		// Flush even when the send was interrupted.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", log.Error(err))
		}
	}()

	integration, err := shared.NewIntegration(cfg, store, logger)
	if err != nil {
		return err
	}

	out, runErr := integration.Run(ctx, items, rdstation.RunOptions{
		Category:  category,
		Params:    params,
		Resolver:  binding.New(),
		ErrorMode: operation.ErrorModeFor(cfg.ContinueOnFail),
	})

	if err := writeOutput(ctx, cmd.OutOrStdout(), executor, opts.transform, category, out, runErr); err != nil {
		return err
	}
	return runErr
}

func writeOutput(ctx context.Context, w io.Writer, executor *jq.Executor, transform string, category rdstation.Category, out []operation.OutputItem, runErr error) error {
	if out == nil {
		out = []operation.OutputItem{}
	}

	var transformed interface{}
	if transform != "" {
		var err error
		transformed, err = executor.Execute(ctx, transform, out)
		if err != nil {
			return shared.NewExecutionError("transform failed", err)
		}
	}

	if !shared.GetJSON() {
		if transform != "" {
			return shared.EmitJSON(w, transformed)
		}
		return shared.EmitJSON(w, out)
	}

	resp := Response{
		JSONResponse: shared.NewResponse("send"),
		Category:     string(category),
		Items:        out,
		Output:       transformed,
	}
	if runErr != nil {
		resp.Success = false
		resp.Error = jsonError(runErr)
	}
	return shared.EmitJSON(w, resp)
}

func jsonError(err error) *shared.JSONError {
	jerr := &shared.JSONError{
		Type:    string(operation.ErrorTypeExecution),
		Message: err.Error(),
	}
	var opErr *operation.Error
	if errors.As(err, &opErr) {
		jerr.Type = string(opErr.Type)
		jerr.StatusCode = opErr.StatusCode
		jerr.Suggestion = opErr.Suggestion()
		if idx, ok := opErr.ItemIndex(); ok {
			jerr.ItemIndex = &idx
		}
	}
	return jerr
}

// parseParams turns key=value pairs into parameters. Values starting with
// "[" or "{" are decoded as JSON/YAML so custom_fields can be given inline;
// everything else stays a string.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}

		if strings.HasPrefix(value, "[") || strings.HasPrefix(value, "{") {
			var decoded interface{}
			if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}
			params[key] = decoded
			continue
		}
		params[key] = value
	}
	return params, nil
}

// decodeItems parses JSON documents with encoding/json so numbers keep JSON
// semantics, and anything else as YAML.
func decodeItems(data []byte) (interface{}, error) {
	var decoded interface{}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &decoded); err == nil {
			return decoded, nil
		}
	}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// readItems loads input items from path. An empty path yields one empty item.
func readItems(path string, stdin io.Reader) ([]operation.Item, error) {
	if path == "" {
		return []operation.Item{{JSON: map[string]interface{}{}}}, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	decoded, err := decodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	switch v := decoded.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return []operation.Item{{JSON: v}}, nil
	case []interface{}:
		items := make([]operation.Item, 0, len(v))
		for i, elem := range v {
			m, ok := elem.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("item %d: expected an object, got %T", i, elem)
			}
			items = append(items, operation.Item{JSON: m})
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected a list of objects or an object, got %T", decoded)
	}
}
