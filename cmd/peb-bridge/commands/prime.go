package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	primeMCP     bool
	primeCompact bool
)

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Print the context the session hooks inject",
	Long: `Print the text that the session hooks add to a chat session, exactly as
the host would receive it.

Use --mcp for the tool-oriented prompt and --compact to render the
compaction hook instead of the system prompt hook.`,
	Args: cobra.NoArgs,
	RunE: runPrime,
}

func init() {
	primeCmd.Flags().BoolVar(&primeMCP, "mcp", false, "Use the prompt for the MCP tools")
	primeCmd.Flags().BoolVar(&primeCompact, "compact", false, "Render the compaction hook")
	rootCmd.AddCommand(primeCmd)
}

func runPrime(cmd *cobra.Command, args []string) error {
	rt, err := mustRuntime()
	if err != nil {
		return err
	}

	variant := plugin.VariantPrime
	variant.MCPPrime = primeMCP

	p, err := rt.loadPlugin(cmd.Context(), variant, rt.dir)
	if err != nil {
		return rt.pluginError(err)
	}

	var parts []string
	if primeCompact {
		out := &plugin.CompactionOutput{}
		if err := p.SessionCompacting(cmd.Context(), out); err != nil {
			return err
		}
		parts = out.Context
	} else {
		out := &plugin.SystemOutput{}
		if err := p.SystemTransform(cmd.Context(), out); err != nil {
			return err
		}
		parts = out.System
	}

	fmt.Fprint(cmd.OutOrStdout(), strings.Join(parts, "\n"))
	return nil
}
