// Package project locates a pebbles project and reads its configuration.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DirName is the directory peb keeps its records and config in
	DirName = ".pebbles"

	// ConfigFilename lives inside DirName
	ConfigFilename = "config.toml"

	DefaultPrefix   = "peb"
	DefaultIDLength = 4
)

// ErrNoPebblesDir is returned when no ancestor directory holds a .pebbles/ directory.
var ErrNoPebblesDir = errors.New("no .pebbles directory found (did you run 'peb init'?)")

// Config is the subset of the peb configuration the bridge needs to describe IDs.
type Config struct {
	Prefix   string `toml:"prefix" json:"prefix"`
	IDLength int    `toml:"id_length" json:"id_length"`
}

// Default returns peb's built-in configuration.
func Default() *Config {
	return &Config{Prefix: DefaultPrefix, IDLength: DefaultIDLength}
}

// IDPattern renders an example ID such as "peb-xxxx" using fill as the
// placeholder character.
func (c *Config) IDPattern(fill rune) string {
	n := c.IDLength
	if n < 0 {
		n = 0
	}
	return c.Prefix + "-" + strings.Repeat(string(fill), n)
}

// FindRoot walks up from start to the directory containing .pebbles/.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoPebblesDir
		}
		dir = parent
	}
}

// ConfigPath returns the config.toml location for a project root.
func ConfigPath(root string) string {
	return filepath.Join(root, DirName, ConfigFilename)
}

// LoadFile parses .pebbles/config.toml under root on top of the defaults.
func LoadFile(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Source yields the configuration as reported by peb itself.
type Source interface {
	Config(ctx context.Context) (*Config, error)
}

// Resolve prefers what peb reports and falls back to reading config.toml from
// the project containing dir. The peb error is returned when both fail.
func Resolve(ctx context.Context, src Source, dir string) (*Config, error) {
	cfg, err := src.Config(ctx)
	if err == nil {
		return cfg, nil
	}

	root, findErr := FindRoot(dir)
	if findErr != nil {
		return nil, err
	}
	fileCfg, fileErr := LoadFile(root)
	if fileErr != nil {
		return nil, err
	}
	return fileCfg, nil
}
