package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/peb-bridge/internal/install"
	"github.com/dyluth/peb-bridge/internal/mcpserver"
	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/spf13/cobra"
)

var servePrimeOnly bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the peb tools over MCP on stdio",
	Long: `Run an MCP server on stdin/stdout.

The server is named "pebbles". Its instructions carry the output of
'peb prime --mcp' and it exposes the peb_new, peb_read, peb_update,
peb_query and peb_delete tools. Tool descriptions use the project's ID
prefix and length and are refreshed when .pebbles/config.toml changes.

With --prime-only the server publishes 'peb prime' as instructions and
registers no tools.

Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&servePrimeOnly, "prime-only", false, "Only publish the prime text, without tools")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := mustRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maybeUpdateInstall(rt)

	variant := plugin.VariantFull
	if servePrimeOnly {
		variant = plugin.VariantPrime
	}
	p, err := rt.loadPlugin(ctx, variant, rt.dir)
	if err != nil {
		return rt.pluginError(err)
	}

	srv := mcpserver.New(p, version, rt.logger)
	if err := srv.Serve(ctx, rt.dir, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		rt.logger.Error().Err(err).Msg("MCP server failed")
		return err
	}
	return nil
}

// maybeUpdateInstall refreshes an outdated install of the enclosing project.
// Failures are logged only; serving must not depend on them.
func maybeUpdateInstall(rt *runtime) {
	root, err := project.FindRoot(rt.dir)
	if err != nil {
		return
	}
	updated, err := install.MaybeUpdate(root, install.Options{})
	if err != nil {
		rt.logger.Warn().Err(err).Str("root", root).Msg("Failed to update bridge install")
		return
	}
	if updated {
		rt.logger.Info().Str("root", root).Str("version", install.Version()).Msg("Updated bridge install")
	}
}
