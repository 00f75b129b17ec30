package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/peb-bridge/internal/printer"
	"github.com/dyluth/peb-bridge/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call TOOL [JSON_ARGS]",
	Short: "Invoke one peb tool locally",
	Long: `Invoke a tool the way an MCP client would and print its result.

JSON_ARGS is a JSON object with the tool arguments (default: {}).

Examples:
  peb-bridge call peb_query '{"filters": ["status:open"], "fields": ["id", "title"]}'
  peb-bridge call peb_new '{"title": "Fix login", "content": "Steps...", "type": "bug"}'
  peb-bridge call peb_read '{"id": ["peb-a1b2"]}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]

	arguments := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return printer.ErrorWithContext(
				"Invalid tool arguments",
				"JSON_ARGS must be a JSON object.",
				map[string]string{"Error": err.Error()},
				[]string{`Example: peb-bridge call peb_read '{"id": ["peb-a1b2"]}'`},
			)
		}
	}

	rt, err := mustRuntime()
	if err != nil {
		return err
	}

	list := rt.projectTools(cmd.Context())
	tool, ok := tools.Find(list, name)
	if !ok {
		return printer.Error(
			fmt.Sprintf("Unknown tool: %s", name),
			fmt.Sprintf("Available tools: %s", strings.Join(toolNames(list), ", ")),
			[]string{"Run 'peb-bridge tools' to see the arguments of each tool"},
		)
	}

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = arguments

	res, err := tool.Handler(cmd.Context(), req)
	if err != nil {
		return printer.Error(fmt.Sprintf("%s failed", name), err.Error(), nil)
	}

	text := resultText(res)
	if res.IsError {
		return printer.ErrorWithContext(fmt.Sprintf("%s failed", name), text, map[string]string{"Directory": rt.dir}, nil)
	}

	if text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolNames(list []tools.Tool) []string {
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Definition.Name)
	}
	sort.Strings(names)
	return names
}
