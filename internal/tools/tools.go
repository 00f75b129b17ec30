// Package tools defines the peb_* tools exposed to the chat host and the
// handlers that forward each call to the peb binary.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/peb-bridge/internal/pebcli"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Tool names as registered with the host.
const (
	NameNew    = "peb_new"
	NameRead   = "peb_read"
	NameUpdate = "peb_update"
	NameQuery  = "peb_query"
	NameDelete = "peb_delete"
)

// Client is the subset of pebcli.Client the handlers call.
type Client interface {
	New(ctx context.Context, in pebcli.NewInput) (*pebcli.Result, error)
	Read(ctx context.Context, ids []string) (*pebcli.Result, error)
	Update(ctx context.Context, id string, in pebcli.UpdateInput) (*pebcli.Result, error)
	Query(ctx context.Context, filters, fields []string) (*pebcli.Result, error)
	Delete(ctx context.Context, ids []string) (*pebcli.Result, error)
}

// Tool pairs a schema with its handler.
type Tool struct {
	Definition mcp.Tool
	Handler    server.ToolHandlerFunc
}

// ServerTools converts tools for server.MCPServer.SetTools/AddTools.
func ServerTools(list []Tool) []server.ServerTool {
	out := make([]server.ServerTool, 0, len(list))
	for _, t := range list {
		out = append(out, server.ServerTool{Tool: t.Definition, Handler: t.Handler})
	}
	return out
}

// Find returns the tool with the given name.
func Find(list []Tool, name string) (Tool, bool) {
	for _, t := range list {
		if t.Definition.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Arguments lists the argument names of a tool, required ones first.
func Arguments(t Tool) []string {
	required := map[string]bool{}
	for _, name := range t.Definition.InputSchema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(t.Definition.InputSchema.Properties))
	for name := range t.Definition.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})
	return names
}

// toolset carries the shared state of the handlers.
type toolset struct {
	client Client
	logger zerolog.Logger
}

// All builds the five peb tools. Descriptions show ID examples in the
// project's own format (prefix and length).
func All(client Client, cfg *project.Config, logger zerolog.Logger) []Tool {
	if cfg == nil {
		cfg = project.Default()
	}
	ts := &toolset{client: client, logger: logger}
	x, y := cfg.IDPattern('x'), cfg.IDPattern('y')

	return []Tool{
		{Definition: newDefinition(), Handler: ts.handleNew},
		{Definition: readDefinition(x, y), Handler: ts.handleRead},
		{Definition: updateDefinition(x), Handler: ts.handleUpdate},
		{Definition: queryDefinition(x, y), Handler: ts.handleQuery},
		{Definition: deleteDefinition(x, y), Handler: ts.handleDelete},
	}
}

func stringArray() mcp.PropertyOption {
	return mcp.Items(map[string]any{"type": "string"})
}

func newDefinition() mcp.Tool {
	return mcp.NewTool(NameNew,
		mcp.WithDescription("Create a new peb (task/bug/feature/epic). Required: title, content. Optional: type (bug|feature|epic|task, default: bug), blocked-by (array of peb IDs)"),
		mcp.WithTitleAnnotation("Create peb"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short description of the peb")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown description of the peb")),
		mcp.WithString("type", mcp.Description("Type: bug, feature, epic, or task (default: bug)")),
		mcp.WithArray("blocked_by", stringArray(), mcp.Description("Array of peb IDs that block this peb")),
	)
}

func readDefinition(x, y string) mcp.Tool {
	return mcp.NewTool(NameRead,
		mcp.WithDescription("Read one or more pebs by ID. Returns full pebs data as JSON."),
		mcp.WithTitleAnnotation("Read pebs"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithArray("id", mcp.Required(), stringArray(),
			mcp.Description(fmt.Sprintf("Array of peb IDs to read (e.g., ['%s', '%s'])", x, y))),
	)
}

func updateDefinition(x string) mcp.Tool {
	return mcp.NewTool(NameUpdate,
		mcp.WithDescription("Update a peb. Optional fields: status (new|in-progress|fixed|wont-fix), title, content, type (bug|feature|epic|task), blocked_by (array of peb IDs)"),
		mcp.WithTitleAnnotation("Update peb"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("id", mcp.Required(), mcp.Description(fmt.Sprintf("The peb ID to update (e.g., %s)", x))),
		mcp.WithString("status", mcp.Description("Status: new, in-progress, fixed, or wont-fix")),
		mcp.WithString("title", mcp.Description("Short description of the peb")),
		mcp.WithString("content", mcp.Description("Markdown description of the peb")),
		mcp.WithString("type", mcp.Description("Type: bug, feature, epic, or task")),
		mcp.WithArray("blocked_by", stringArray(), mcp.Description("Array of peb IDs that block this peb")),
	)
}

func queryDefinition(x, y string) mcp.Tool {
	return mcp.NewTool(NameQuery,
		mcp.WithDescription(fmt.Sprintf(
			"Query pebs with optional filters (id:%[1]s|id:(%[1]s|%[2]s), status:new|in-progress|fixed|wont-fix|open|closed, type:bug|feature|epic|task, blocked-by:%[1]s, --fields:id,title). Returns list of pebs.",
			x, y)),
		mcp.WithTitleAnnotation("Query pebs"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithArray("filters", stringArray(), mcp.Description("Array of filters (e.g., ['status:new', 'type:bug'])")),
		mcp.WithArray("fields", stringArray(), mcp.Description("Array of fields to output (e.g., ['id', 'title'])")),
	)
}

func deleteDefinition(x, y string) mcp.Tool {
	return mcp.NewTool(NameDelete,
		mcp.WithDescription("Delete pebs by ID."),
		mcp.WithTitleAnnotation("Delete pebs"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithArray("id", mcp.Required(), stringArray(),
			mcp.Description(fmt.Sprintf("Array of peb IDs to delete (e.g., ['%s', '%s'])", x, y))),
	)
}

// bindArguments decodes the call arguments into target after checking that
// every required key is present.
func bindArguments(req mcp.CallToolRequest, target any, required ...string) error {
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if string(raw) == "null" {
		raw = []byte("{}")
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return fmt.Errorf("invalid arguments: expected an object")
	}
	var missing []string
	for _, name := range required {
		if v, ok := present[name]; !ok || string(v) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// forward runs one peb invocation and converts the outcome to a tool result.
// Failures to run peb and non-zero exits are both reported as tool errors
// carrying whatever peb printed.
func (ts *toolset) forward(name string, call func() (*pebcli.Result, error)) (*mcp.CallToolResult, error) {
	callID := uuid.New().String()
	start := time.Now()

	res, err := call()
	event := ts.logger.Info()
	if err != nil || (res != nil && res.Failed()) {
		event = ts.logger.Warn()
	}
	event = event.Str("call_id", callID).Str("tool", name).Dur("duration", time.Since(start))
	if res != nil {
		event = event.Strs("args", res.Args).Int("exit_code", res.ExitCode)
	}

	if err != nil {
		event.Err(err).Msg("Tool call failed")
		text := "Error: " + err.Error()
		if res != nil {
			if out := res.Text(); out != "" {
				text = out + "\n" + text
			}
		}
		return mcp.NewToolResultError(text), nil
	}
	event.Msg("Tool call completed")

	if res.Failed() {
		return mcp.NewToolResultError(res.Text()), nil
	}
	return mcp.NewToolResultText(res.Text()), nil
}

func (ts *toolset) invalid(name string, err error) (*mcp.CallToolResult, error) {
	ts.logger.Warn().Str("tool", name).Err(err).Msg("Rejected tool arguments")
	return mcp.NewToolResultError(err.Error()), nil
}

type newArgs struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	BlockedBy []string `json:"blocked_by"`
}

func (ts *toolset) handleNew(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args newArgs
	if err := bindArguments(req, &args, "title", "content"); err != nil {
		return ts.invalid(NameNew, err)
	}
	return ts.forward(NameNew, func() (*pebcli.Result, error) {
		return ts.client.New(ctx, pebcli.NewInput{
			Title:     args.Title,
			Content:   args.Content,
			Type:      args.Type,
			BlockedBy: args.BlockedBy,
		})
	})
}

type idsArgs struct {
	ID []string `json:"id"`
}

func (ts *toolset) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args idsArgs
	if err := bindArguments(req, &args, "id"); err != nil {
		return ts.invalid(NameRead, err)
	}
	return ts.forward(NameRead, func() (*pebcli.Result, error) {
		return ts.client.Read(ctx, args.ID)
	})
}

type updateArgs struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	BlockedBy []string `json:"blocked_by"`
}

func (ts *toolset) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args updateArgs
	if err := bindArguments(req, &args, "id"); err != nil {
		return ts.invalid(NameUpdate, err)
	}
	return ts.forward(NameUpdate, func() (*pebcli.Result, error) {
		return ts.client.Update(ctx, args.ID, pebcli.UpdateInput{
			Status:    args.Status,
			Title:     args.Title,
			Content:   args.Content,
			Type:      args.Type,
			BlockedBy: args.BlockedBy,
		})
	})
}

type queryArgs struct {
	Filters []string `json:"filters"`
	Fields  []string `json:"fields"`
}

func (ts *toolset) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryArgs
	if err := bindArguments(req, &args); err != nil {
		return ts.invalid(NameQuery, err)
	}
	return ts.forward(NameQuery, func() (*pebcli.Result, error) {
		return ts.client.Query(ctx, args.Filters, args.Fields)
	})
}

func (ts *toolset) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args idsArgs
	if err := bindArguments(req, &args, "id"); err != nil {
		return ts.invalid(NameDelete, err)
	}
	return ts.forward(NameDelete, func() (*pebcli.Result, error) {
		return ts.client.Delete(ctx, args.ID)
	})
}
