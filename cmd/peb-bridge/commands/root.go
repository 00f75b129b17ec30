package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  string
	date    string
)

// Global flags
var (
	configPath string
	logLevel   string
	projectDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peb-bridge",
	Short: "peb-bridge - pebbles integration for chat assistants",
	Long: `peb-bridge connects chat assistants to the peb task tracker.

It serves the peb_* tools over MCP, injects the "peb prime" instructions into
sessions through a session-start hook, and installs both into a project.

All task handling is done by the peb binary; peb-bridge only forwards calls
and passes peb's output through.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Unknown flags are errors, not silently ignored
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Cobra's own error and usage printing is
// silenced; commands report errors through the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to peb-bridge.yml (default: <dir>/peb-bridge.yml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error or off (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Directory to run peb in (default: current directory)")
}
