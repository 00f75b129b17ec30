package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/peb-bridge/internal/config"
	"github.com/dyluth/peb-bridge/internal/logging"
	"github.com/dyluth/peb-bridge/internal/pebcli"
	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/dyluth/peb-bridge/internal/printer"
	"github.com/rs/zerolog"
)

// runtime is the state shared by the commands that talk to peb.
type runtime struct {
	cfg    *config.BridgeConfig
	logger zerolog.Logger
	dir    string
}

// resolveDir returns the absolute --dir value, or the working directory.
func resolveDir() (string, error) {
	if projectDir == "" {
		return os.Getwd()
	}
	return filepath.Abs(projectDir)
}

// newRuntime loads the bridge config for --dir (or the working directory)
// and configures logging. Errors come back unformatted so the hook command
// can stay silent.
func newRuntime() (*runtime, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return loadRuntime(dir)
}

// loadRuntime is newRuntime for an explicit directory: peb-bridge.yml is
// looked up there unless --config is given.
func loadRuntime(dir string) (*runtime, error) {
	cfg, err := config.Load(configPath, dir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return nil, fmt.Errorf("invalid --log-level: %s", logLevel)
		}
		cfg.LogLevel = logLevel
	}

	logger := logging.Configure(cfg.LogLevel, logging.Format(cfg.LogFormat))
	return &runtime{cfg: cfg, logger: logger, dir: dir}, nil
}

// mustRuntime is newRuntime with the error printed for humans.
func mustRuntime() (*runtime, error) {
	rt, err := newRuntime()
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Invalid configuration",
			err.Error(),
			map[string]string{"Config": configDescription()},
			[]string{"Fix peb-bridge.yml or the PEB_BRIDGE_* environment variables"},
		)
	}
	return rt, nil
}

func configDescription() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultFilename + " (optional)"
}

// client returns a peb client running in dir.
func (rt *runtime) client(dir string) *pebcli.Client {
	logger := rt.logger
	return pebcli.NewClient(&pebcli.Runner{
		Command:        rt.cfg.Command,
		Dir:            dir,
		Timeout:        rt.cfg.TimeoutDuration(),
		MaxOutputBytes: rt.cfg.MaxOutputBytes,
		Logger:         &logger,
	})
}

// loadPlugin builds a plugin backed by peb running in dir.
func (rt *runtime) loadPlugin(ctx context.Context, variant plugin.Variant, dir string) (*plugin.Plugin, error) {
	return plugin.New(ctx, rt.client(dir), variant, plugin.Options{Dir: dir, Logger: &rt.logger})
}

// pluginError explains a plugin load failure, which is almost always peb
// missing or the directory not being a pebbles project.
func (rt *runtime) pluginError(err error) error {
	return printer.ErrorWithContext(
		"Failed to load pebbles plugin",
		err.Error(),
		map[string]string{
			"Command":   fmt.Sprint(rt.cfg.Command),
			"Directory": rt.dir,
		},
		[]string{
			"Check that peb is installed and on PATH (or set 'command' in peb-bridge.yml)",
			"Run 'peb init' in the project directory",
		},
	)
}
