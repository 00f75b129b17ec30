// Package install wires the bridge into a project: it registers the MCP
// server and the session hook with the host and records what was installed
// so later runs can update it.
package install

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/peb-bridge/internal/mcpserver"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

//go:generate sh -c "printf '%s' $(git log -1 --format='%ct-%h' -- ../plugin ../tools) > data/integration.version"
//go:embed data/integration.version
var integrationVersionRaw string

const (
	// MCPFilename is the project-level MCP server registry.
	MCPFilename = ".mcp.json"

	// StateFilename records the install inside the .pebbles directory.
	StateFilename = "bridge.yml"

	// DefaultBinary is used when no binary path is given.
	DefaultBinary = "peb-bridge"

	hookCommandSuffix = " hook session-start --mcp"
)

// SettingsPath is the host settings file holding the hooks, relative to the
// project root.
var SettingsPath = filepath.Join(".claude", "settings.json")

// ErrNotInstalled is returned by Installed when the project has no install state.
var ErrNotInstalled = errors.New("bridge is not installed in this project")

// Version returns the integration version as YYYYMMDDTHHMMSSZ-<hash>.
func Version() string {
	return formatVersion(integrationVersionRaw)
}

// formatVersion turns "<unix-seconds>-<hash>" into a sortable timestamp form.
func formatVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return raw + "(unknown)"
	}
	epoch, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return raw + "(unknown)"
	}
	return time.Unix(epoch, 0).UTC().Format("20060102T150405Z") + "-" + parts[1]
}

// State is the content of .pebbles/bridge.yml.
type State struct {
	Version     string    `yaml:"version"`
	InstalledAt time.Time `yaml:"installed_at"`
	Binary      string    `yaml:"binary"`
	Files       []string  `yaml:"files"`
}

// Options control an install.
type Options struct {
	// Binary is the command the host runs, a name on PATH or an absolute path.
	Binary string

	// Force reinstalls even when the current version is already installed.
	Force bool

	// Now stamps the install; time.Now when nil.
	Now func() time.Time
}

func statePath(root string) string {
	return filepath.Join(root, project.DirName, StateFilename)
}

// Installed reads the install state of the project rooted at root.
func Installed(root string) (*State, error) {
	data, err := os.ReadFile(statePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInstalled
		}
		return nil, fmt.Errorf("failed to read install state: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", StateFilename, err)
	}
	return &state, nil
}

// CheckExisting returns an error when the current version is already
// installed.
func CheckExisting(root string) error {
	state, err := Installed(root)
	if errors.Is(err, ErrNotInstalled) {
		return nil
	}
	if err != nil {
		return err
	}
	if state.Version < Version() {
		return nil
	}
	return fmt.Errorf("bridge already installed (version %s)\n\nUse 'peb-bridge install --force' to reinstall", state.Version)
}

// Install registers the bridge in the project rooted at root. Existing host
// files are merged, never replaced: other MCP servers and hooks are kept.
func Install(root string, opts Options) (*State, error) {
	if !opts.Force {
		if err := CheckExisting(root); err != nil {
			return nil, err
		}
	}

	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	if err := os.MkdirAll(filepath.Join(root, project.DirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", project.DirName, err)
	}

	if err := updateJSONFile(filepath.Join(root, MCPFilename), func(doc map[string]any) {
		addMCPServer(doc, binary)
	}); err != nil {
		return nil, err
	}

	if err := updateJSONFile(filepath.Join(root, SettingsPath), func(doc map[string]any) {
		addSessionHook(doc, hookCommand(binary))
	}); err != nil {
		return nil, err
	}

	state := &State{
		Version:     Version(),
		InstalledAt: now().UTC(),
		Binary:      binary,
		Files:       []string{MCPFilename, SettingsPath},
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode install state: %w", err)
	}
	if err := os.WriteFile(statePath(root), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write install state: %w", err)
	}

	return state, nil
}

// MaybeUpdate reinstalls when the project has an older install. Projects
// without an install are left alone. It reports whether an update happened.
func MaybeUpdate(root string, opts Options) (bool, error) {
	state, err := Installed(root)
	if err != nil {
		// Nothing to update, or state we cannot read: leave it to an explicit install.
		return false, nil
	}
	if Version() <= state.Version {
		return false, nil
	}

	if opts.Binary == "" {
		opts.Binary = state.Binary
	}
	opts.Force = true
	if _, err := Install(root, opts); err != nil {
		return false, err
	}
	return true, nil
}

// updateJSONFile loads path (JSON with comments and trailing commas allowed),
// applies edit and writes it back as plain indented JSON.
func updateJSONFile(path string, edit func(doc map[string]any)) error {
	doc := map[string]any{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	edit(doc)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// childObject returns doc[key] as an object, replacing anything else.
func childObject(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[key] = m
	return m
}

func addMCPServer(doc map[string]any, binary string) {
	servers := childObject(doc, "mcpServers")
	servers[mcpserver.ServerName] = map[string]any{
		"command": binary,
		"args":    []any{"serve"},
	}
}

// addSessionHook registers command on SessionStart, first dropping any
// bridge hook left by a previous install (possibly with another binary path).
func addSessionHook(doc map[string]any, command string) {
	hooks := childObject(doc, "hooks")
	groups, _ := hooks["SessionStart"].([]any)

	kept := make([]any, 0, len(groups)+1)
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			kept = append(kept, g)
			continue
		}
		entries, ok := group["hooks"].([]any)
		if !ok {
			kept = append(kept, g)
			continue
		}

		var remaining []any
		for _, e := range entries {
			if isBridgeHook(e) {
				continue
			}
			remaining = append(remaining, e)
		}
		if len(remaining) == 0 {
			continue
		}
		group["hooks"] = remaining
		kept = append(kept, group)
	}

	kept = append(kept, map[string]any{
		"matcher": "",
		"hooks": []any{
			map[string]any{"type": "command", "command": command},
		},
	})
	hooks["SessionStart"] = kept
}

func isBridgeHook(entry any) bool {
	e, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	cmd, _ := e["command"].(string)
	return strings.HasSuffix(cmd, hookCommandSuffix)
}

// hookCommand is the shell command line the host runs for the session hook.
// Binaries with whitespace or quotes are single-quoted for the shell.
func hookCommand(binary string) string {
	if strings.ContainsAny(binary, " \t\n'\"") {
		binary = "'" + strings.ReplaceAll(binary, "'", `'\''`) + "'"
	}
	return binary + hookCommandSuffix
}
