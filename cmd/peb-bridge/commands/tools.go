package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/peb-bridge/internal/printer"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/dyluth/peb-bridge/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the peb tools and their arguments",
	Long: `List the tools served by 'peb-bridge serve', with descriptions rendered for
the current project's ID prefix and length.

Required arguments are marked with *. Use --json for the MCP tool
definitions.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Print the MCP tool definitions as JSON")
	rootCmd.AddCommand(toolsCmd)
}

// projectTools resolves the project configuration and builds the tool set.
// Listing still works outside a project, with peb's default ID format.
func (rt *runtime) projectTools(ctx context.Context) []tools.Tool {
	client := rt.client(rt.dir)

	cfg, err := project.Resolve(ctx, client, rt.dir)
	if err != nil {
		rt.logger.Debug().Err(err).Msg("Using default project config")
		cfg = project.Default()
	}
	return tools.All(client, cfg, rt.logger)
}

func runTools(cmd *cobra.Command, args []string) error {
	rt, err := mustRuntime()
	if err != nil {
		return err
	}

	list := rt.projectTools(cmd.Context())
	if toolsJSON {
		return writeToolsJSON(cmd.OutOrStdout(), list)
	}
	return writeToolsTable(cmd.OutOrStdout(), list)
}

func writeToolsJSON(w io.Writer, list []tools.Tool) error {
	defs := make([]mcp.Tool, 0, len(list))
	for _, t := range list {
		defs = append(defs, t.Definition)
	}

	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return printer.Error("Failed to encode tools", err.Error(), nil)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeToolsTable(w io.Writer, list []tools.Tool) error {
	table := tablewriter.NewWriter(w)
	table.Header("Tool", "Arguments", "Description")

	for _, t := range list {
		if err := table.Append([]string{
			t.Definition.Name,
			formatArguments(t),
			t.Definition.Description,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// formatArguments renders "id*, status, title" with required names starred.
func formatArguments(t tools.Tool) string {
	required := map[string]bool{}
	for _, name := range t.Definition.InputSchema.Required {
		required[name] = true
	}

	names := tools.Arguments(t)
	for i, name := range names {
		if required[name] {
			names[i] = name + "*"
		}
	}
	return strings.Join(names, ", ")
}
