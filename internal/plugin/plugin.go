// Package plugin is the host-agnostic definition of the pebbles integration:
// the prime text injected by the session hooks and the peb_* tools.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/dyluth/peb-bridge/internal/tools"
	"github.com/rs/zerolog"
)

// SystemOutput collects the system prompt fragments of one chat turn.
type SystemOutput struct {
	System []string
}

// CompactionOutput collects the context that survives a session compaction.
type CompactionOutput struct {
	Context []string
}

// Hooks are the lifecycle callbacks a host invokes.
type Hooks struct {
	SystemTransform   func(ctx context.Context, out *SystemOutput) error
	SessionCompacting func(ctx context.Context, out *CompactionOutput) error
}

// Variant selects what a plugin instance provides.
type Variant struct {
	// Name is reported to the host.
	Name string

	// MCPPrime asks peb for the prompt that refers to the peb_* tools
	// instead of shell commands.
	MCPPrime bool

	// Tools registers the peb_* tools.
	Tools bool
}

var (
	// VariantPrime only injects the prime text.
	VariantPrime = Variant{Name: "pebbles-prime"}

	// VariantFull injects the tool-oriented prime text and registers the tools.
	VariantFull = Variant{Name: "pebbles", MCPPrime: true, Tools: true}
)

// Backend is everything the plugin needs from peb.
type Backend interface {
	tools.Client
	project.Source
	Prime(ctx context.Context, mcp bool) (string, error)
}

// Options tune plugin construction.
type Options struct {
	// Dir is the directory used to locate .pebbles/config.toml when peb
	// cannot report its configuration.
	Dir string

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Plugin is one loaded instance. The prime text never changes after New;
// the tool set can be rebuilt with Reload.
type Plugin struct {
	Name    string
	Variant Variant
	Prime   string

	backend Backend
	opts    Options

	mu      sync.RWMutex
	project *project.Config
	tools   []tools.Tool
}

// New loads a plugin: it asks peb for the prime text once and, when the
// variant carries tools, resolves the project configuration to render the
// tool descriptions. A prime failure aborts loading.
func New(ctx context.Context, backend Backend, variant Variant, opts Options) (*Plugin, error) {
	prime, err := backend.Prime(ctx, variant.MCPPrime)
	if err != nil {
		return nil, fmt.Errorf("failed to load prime text: %w", err)
	}

	p := &Plugin{
		Name:    variant.Name,
		Variant: variant,
		Prime:   prime,
		backend: backend,
		opts:    opts,
	}

	if variant.Tools {
		if err := p.Reload(ctx); err != nil {
			return nil, err
		}
	}

	logger := opts.logger()
	logger.Debug().Str("plugin", p.Name).Int("prime_bytes", len(prime)).
		Int("tools", len(p.Tools())).Msg("Plugin loaded")

	return p, nil
}

// Reload re-resolves the project configuration and rebuilds the tools.
// It is a no-op for variants without tools.
func (p *Plugin) Reload(ctx context.Context) error {
	if !p.Variant.Tools {
		return nil
	}

	cfg, err := project.Resolve(ctx, p.backend, p.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}

	list := tools.All(p.backend, cfg, p.opts.logger())

	p.mu.Lock()
	p.project = cfg
	p.tools = list
	p.mu.Unlock()

	return nil
}

// Project returns the configuration the tools were rendered with, or nil for
// variants without tools.
func (p *Plugin) Project() *project.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.project
}

// Tools returns the current tool set.
func (p *Plugin) Tools() []tools.Tool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]tools.Tool(nil), p.tools...)
}

// SystemTransform appends the prime text to the system prompt.
func (p *Plugin) SystemTransform(_ context.Context, out *SystemOutput) error {
	out.System = append(out.System, p.Prime)
	return nil
}

// SessionCompacting appends the prime text to the compaction context.
func (p *Plugin) SessionCompacting(_ context.Context, out *CompactionOutput) error {
	out.Context = append(out.Context, p.Prime)
	return nil
}

// Hooks returns the lifecycle callbacks bound to p.
func (p *Plugin) Hooks() Hooks {
	return Hooks{
		SystemTransform:   p.SystemTransform,
		SessionCompacting: p.SessionCompacting,
	}
}
