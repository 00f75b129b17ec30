// Package hook answers command hooks: the host runs the bridge on session
// start with a JSON payload on stdin and reads the context to inject from
// stdout.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/rs/zerolog"
)

const (
	// MaxInputBytes caps the payload read from stdin.
	MaxInputBytes = 1 << 20

	// EventSessionStart is the only event the bridge registers for.
	EventSessionStart = "SessionStart"

	// SourceCompact marks a session restarted after compaction.
	SourceCompact = "compact"
)

// Input is the payload the host writes to stdin.
type Input struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	Source        string `json:"source"`
}

// Output is the document written to stdout. An empty Output ("{}") tells the
// host there is nothing to add.
type Output struct {
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries the injected context.
type SpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Loader builds the plugin for the session's working directory.
type Loader func(ctx context.Context, dir string) (*plugin.Plugin, error)

// ReadInput decodes the hook payload. Empty input yields a zero Input.
func ReadInput(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read hook input: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("hook input exceeds %d bytes", MaxInputBytes)
	}

	in := &Input{}
	if strings.TrimSpace(string(data)) == "" {
		return in, nil
	}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("failed to parse hook input: %w", err)
	}
	return in, nil
}

// Handle loads the plugin for in.CWD and runs the hook matching the session
// source: compaction restarts get the compaction context, everything else the
// system prompt addition.
func Handle(ctx context.Context, in *Input, load Loader) (*Output, error) {
	dir := in.CWD
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = wd
	}

	p, err := load(ctx, dir)
	if err != nil {
		return nil, err
	}
	hooks := p.Hooks()

	var parts []string
	if in.Source == SourceCompact {
		out := &plugin.CompactionOutput{}
		if err := hooks.SessionCompacting(ctx, out); err != nil {
			return nil, err
		}
		parts = out.Context
	} else {
		out := &plugin.SystemOutput{}
		if err := hooks.SystemTransform(ctx, out); err != nil {
			return nil, err
		}
		parts = out.System
	}

	event := in.HookEventName
	if event == "" {
		event = EventSessionStart
	}
	return &Output{HookSpecificOutput: &SpecificOutput{
		HookEventName:     event,
		AdditionalContext: strings.Join(parts, "\n"),
	}}, nil
}

// Run is the full hook round trip. Any failure is logged and answered with
// "{}" so that a broken peb installation never blocks the session; only a
// failure to write the answer is returned.
func Run(ctx context.Context, r io.Reader, w io.Writer, load Loader, logger zerolog.Logger) error {
	out := &Output{}

	in, err := ReadInput(r)
	if err != nil {
		logger.Error().Err(err).Msg("Ignoring hook invocation")
	} else {
		logger.Debug().Str("session_id", in.SessionID).Str("source", in.Source).
			Str("cwd", in.CWD).Msg("Hook invoked")

		if res, err := Handle(ctx, in, load); err != nil {
			logger.Error().Err(err).Str("session_id", in.SessionID).Msg("Hook failed, no context injected")
		} else {
			out = res
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode hook output: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("failed to write hook output: %w", err)
	}
	return nil
}
