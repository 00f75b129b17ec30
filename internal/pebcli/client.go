// Package pebcli invokes the external peb task tracker.
//
// Every operation is a single process run. Argument marshaling follows the
// peb command line: creation reads JSON on stdin, updates take the JSON as the
// last argument, and queries take "--fields" ahead of the filter terms.
package pebcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/peb-bridge/internal/project"
)

// Executor runs one peb invocation. *Runner is the production implementation.
type Executor interface {
	Run(ctx context.Context, stdin string, args ...string) (*Result, error)
}

// Client exposes the peb subcommands used by the hooks and tools.
type Client struct {
	exec Executor
}

// NewClient wraps an executor.
func NewClient(exec Executor) *Client {
	return &Client{exec: exec}
}

// NewInput holds the fields accepted by "peb new".
// A nil BlockedBy is omitted; an empty, non-nil one is sent as [].
type NewInput struct {
	Title     string
	Content   string
	Type      string
	BlockedBy []string
}

// UpdateInput holds the fields accepted by "peb update". Empty strings are
// not sent, so a field can only be changed to a non-empty value.
type UpdateInput struct {
	Status    string
	Title     string
	Content   string
	Type      string
	BlockedBy []string
}

type newPayload struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	BlockedBy *[]string `json:"blocked-by,omitempty"`
}

type updatePayload struct {
	Status    string    `json:"status,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	Type      string    `json:"type,omitempty"`
	BlockedBy *[]string `json:"blocked-by,omitempty"`
}

// Prime returns the prime text verbatim. With mcp set the tool-oriented
// prompt is requested.
func (c *Client) Prime(ctx context.Context, mcp bool) (string, error) {
	args := []string{"prime"}
	if mcp {
		args = append(args, "--mcp")
	}

	res, err := c.exec.Run(ctx, "", args...)
	if err != nil {
		return "", fmt.Errorf("peb prime: %w", err)
	}
	if res.Failed() {
		return "", fmt.Errorf("peb prime exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// Config asks peb for the project configuration.
func (c *Client) Config(ctx context.Context) (*project.Config, error) {
	res, err := c.exec.Run(ctx, "", "config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		return nil, fmt.Errorf("failed to get config: %s", errOut)
	}
	if res.Failed() {
		return nil, fmt.Errorf("failed to get config: peb exited with code %d", res.ExitCode)
	}

	cfg := project.Default()
	if err := json.Unmarshal([]byte(res.Stdout), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peb config output: %w", err)
	}
	return cfg, nil
}

// New creates a peb; the JSON document is passed on stdin.
func (c *Client) New(ctx context.Context, in NewInput) (*Result, error) {
	payload := newPayload{
		Title:   in.Title,
		Content: in.Content,
		Type:    in.Type,
	}
	if in.BlockedBy != nil {
		payload.BlockedBy = &in.BlockedBy
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new peb: %w", err)
	}
	return c.exec.Run(ctx, string(data), "new")
}

// Read prints one or more pebs as JSON.
func (c *Client) Read(ctx context.Context, ids []string) (*Result, error) {
	return c.exec.Run(ctx, "", append([]string{"read"}, ids...)...)
}

// Update changes the given fields of one peb.
func (c *Client) Update(ctx context.Context, id string, in UpdateInput) (*Result, error) {
	payload := updatePayload{
		Status:  in.Status,
		Title:   in.Title,
		Content: in.Content,
		Type:    in.Type,
	}
	if in.BlockedBy != nil {
		payload.BlockedBy = &in.BlockedBy
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update: %w", err)
	}
	return c.exec.Run(ctx, "", "update", id, string(data))
}

// Query lists pebs matching all filters, restricted to fields when given.
func (c *Client) Query(ctx context.Context, filters, fields []string) (*Result, error) {
	args := []string{"query"}
	if len(fields) > 0 {
		args = append(args, "--fields", strings.Join(fields, ","))
	}
	args = append(args, filters...)
	return c.exec.Run(ctx, "", args...)
}

// Delete removes pebs by ID.
func (c *Client) Delete(ctx context.Context, ids []string) (*Result, error) {
	return c.exec.Run(ctx, "", append([]string{"delete"}, ids...)...)
}
