package commands

import (
	"errors"

	"github.com/dyluth/peb-bridge/internal/install"
	"github.com/dyluth/peb-bridge/internal/printer"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/spf13/cobra"
)

var (
	forceInstall  bool
	installBinary string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register peb-bridge with the chat host for this project",
	Long: `Register the bridge in the enclosing pebbles project.

Writes or merges:
  • .mcp.json - the "pebbles" MCP server ('peb-bridge serve')
  • .claude/settings.json - a SessionStart hook ('peb-bridge hook session-start --mcp')
  • .pebbles/bridge.yml - the installed integration version

Other MCP servers and hooks are kept. Installs older than this binary are
updated automatically when 'peb-bridge serve' starts.

Use --force to reinstall the current version.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&forceInstall, "force", false, "Reinstall even if this version is already installed")
	installCmd.Flags().StringVar(&installBinary, "binary", install.DefaultBinary, "Command the host should run (name on PATH or absolute path)")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return printer.Error("Failed to determine working directory", err.Error(), nil)
	}

	root, err := project.FindRoot(dir)
	if err != nil {
		if errors.Is(err, project.ErrNoPebblesDir) {
			return printer.ErrorWithContext(
				"Not a pebbles project",
				"No .pebbles directory was found here or in any parent directory.",
				map[string]string{"Directory": dir},
				[]string{"Run 'peb init' first"},
			)
		}
		return printer.Error("Failed to locate project", err.Error(), nil)
	}

	if !forceInstall {
		if err := install.CheckExisting(root); err != nil {
			return printer.Error("Already installed", err.Error(), nil)
		}
	}

	printer.Step("Installing peb-bridge %s into %s\n", install.Version(), root)

	state, err := install.Install(root, install.Options{Binary: installBinary, Force: forceInstall})
	if err != nil {
		return printer.Error("Installation failed", err.Error(), nil)
	}

	printer.Success("Installed peb-bridge integration (version %s)\n", state.Version)
	printer.Println("\nUpdated:")
	for _, f := range state.Files {
		printer.Printf("  ✓ %s\n", f)
	}
	printer.Printf("  ✓ .pebbles/%s\n", install.StateFilename)
	printer.Println("\nNext steps:")
	printer.Println("  1. Restart the chat host so it picks up the MCP server and hook")
	printer.Println("  2. Run 'peb-bridge tools' to check the tools peb-bridge serves")

	return nil
}
