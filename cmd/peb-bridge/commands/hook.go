package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/peb-bridge/internal/hook"
	"github.com/dyluth/peb-bridge/internal/logging"
	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/spf13/cobra"
)

var hookMCP bool

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Hook handlers run by the chat host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var hookSessionStartCmd = &cobra.Command{
	Use:   "session-start",
	Short: "Answer a SessionStart hook with the prime text",
	Long: `Read a SessionStart hook payload from stdin and answer with the output of
'peb prime' as additional context.

Sessions restarted after compaction (source "compact") receive the prime
text as compaction context, every other source as a system prompt addition.
With --mcp the tool-oriented prompt ('peb prime --mcp') is used.

This command never fails the session: errors are logged to stderr and an
empty answer ({}) is written.`,
	Args: cobra.NoArgs,
	RunE: runHookSessionStart,
}

func init() {
	hookSessionStartCmd.Flags().BoolVar(&hookMCP, "mcp", false, "Inject the prompt for the MCP tools instead of the CLI")
	hookCmd.AddCommand(hookSessionStartCmd)
	rootCmd.AddCommand(hookCmd)
}

func runHookSessionStart(cmd *cobra.Command, args []string) error {
	// Until the payload names the session directory, log with the config of
	// the directory the host started us in, if it is usable.
	logger := logging.Configure("error", logging.FormatConsole)
	if rt, err := newRuntime(); err == nil {
		logger = rt.logger
	}

	variant := plugin.VariantPrime
	variant.MCPPrime = hookMCP

	load := func(ctx context.Context, dir string) (*plugin.Plugin, error) {
		rt, err := loadRuntime(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return rt.loadPlugin(ctx, variant, dir)
	}
	return hook.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), load, logger)
}
