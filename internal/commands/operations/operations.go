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

// Package operations implements the operations command, which describes the
// event categories an integration can send.
package operations

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/rdstation-connector/internal/commands/completion"
	"github.com/tombee/rdstation-connector/internal/commands/shared"
	"github.com/tombee/rdstation-connector/internal/integration"
	"github.com/tombee/rdstation-connector/internal/operation/api"
)

// NewCommand creates the operations command.
func NewCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "operations [operation]",
		Short: "List event categories and their parameters",
		Long: `List the operations the integration supports. With an operation name,
show its parameters and response fields.

Examples:
  rdstation operations
  rdstation operations call_finished
  rdstation operations sale --json`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompleteCategories,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := openProvider(cmd, name)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return writeList(cmd.OutOrStdout(), name, provider.Operations())
			}

			schema := provider.OperationSchema(args[0])
			if schema == nil {
				return shared.NewInvalidInputError(
					fmt.Sprintf("unknown operation %q", args[0]),
					fmt.Errorf("available: %s", strings.Join(operationNames(provider.Operations()), ", ")),
				)
			}
			return writeSchema(cmd.OutOrStdout(), name, args[0], schema)
		},
	}

	cmd.Flags().StringVar(&name, "integration", "rdstation", fmt.Sprintf("Integration to describe (%s)", strings.Join(integration.Names(), ", ")))
	_ = cmd.RegisterFlagCompletionFunc("integration", completion.CompleteIntegrationNames)
	return cmd
}

func openProvider(cmd *cobra.Command, name string) (api.TypedProvider, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}
	store, err := shared.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	providerConfig, err := shared.NewProviderConfig(cfg, store, shared.NewLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}

	conn, err := integration.New(name, providerConfig)
	if err != nil {
		return nil, shared.NewInvalidInputError("failed to create integration", err)
	}
	provider, ok := conn.(api.TypedProvider)
	if !ok {
		return nil, shared.NewInvalidInputError(fmt.Sprintf("integration %q does not describe its operations", name), nil)
	}
	return provider, nil
}

// ListResponse is the JSON form of the operation list.
type ListResponse struct {
	shared.JSONResponse
	Integration string              `json:"integration"`
	Operations  []api.OperationInfo `json:"operations"`
}

// SchemaResponse is the JSON form of a single operation.
type SchemaResponse struct {
	shared.JSONResponse
	Integration string               `json:"integration"`
	Operation   string               `json:"operation"`
	Schema      *api.OperationSchema `json:"schema"`
}

func writeList(w io.Writer, name string, ops []api.OperationInfo) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, ListResponse{
			JSONResponse: shared.NewResponse("operations"),
			Integration:  name,
			Operations:   ops,
		})
	}

	fmt.Fprintf(w, "Operations for %s:\n\n", name)
	for _, op := range ops {
		fmt.Fprintf(w, "  %-15s %s\n", op.Name, op.Description)
	}
	fmt.Fprintln(w, "\nRun 'rdstation operations <operation>' for parameters.")
	return nil
}

func writeSchema(w io.Writer, name, op string, schema *api.OperationSchema) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, SchemaResponse{
			JSONResponse: shared.NewResponse("operations"),
			Integration:  name,
			Operation:    op,
			Schema:       schema,
		})
	}

	fmt.Fprintf(w, "%s: %s\n\nParameters:\n", op, schema.Description)
	for _, p := range schema.Parameters {
		if p.Hidden {
			continue
		}
		var notes []string
		if p.Required {
			notes = append(notes, "required")
		}
		if p.Default != nil {
			notes = append(notes, fmt.Sprintf("default %v", p.Default))
		}
		if len(p.Options) > 0 {
			notes = append(notes, "one of "+strings.Join(p.Options, ", "))
		}
		line := fmt.Sprintf("  %-15s %-10s %s", p.Name, p.Type, p.Description)
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, "; ") + ")"
		}
		fmt.Fprintln(w, line)
	}

	if len(schema.ResponseFields) > 0 {
		fmt.Fprintln(w, "\nResponse:")
		for _, f := range schema.ResponseFields {
			fmt.Fprintf(w, "  %-15s %-10s %s\n", f.Name, f.Type, f.Description)
		}
	}
	return nil
}

func operationNames(ops []api.OperationInfo) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}
