package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dyluth/peb-bridge/internal/pebcli"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records the typed calls made by the handlers.
type fakeClient struct {
	calls  []string
	newIn  pebcli.NewInput
	update pebcli.UpdateInput
	id     string
	ids    []string
	filter []string
	fields []string

	result *pebcli.Result
	err    error
}

func (f *fakeClient) reply() (*pebcli.Result, error) {
	if f.result == nil {
		return &pebcli.Result{Stdout: "ok\n"}, f.err
	}
	return f.result, f.err
}

func (f *fakeClient) New(_ context.Context, in pebcli.NewInput) (*pebcli.Result, error) {
	f.calls = append(f.calls, "new")
	f.newIn = in
	return f.reply()
}

func (f *fakeClient) Read(_ context.Context, ids []string) (*pebcli.Result, error) {
	f.calls = append(f.calls, "read")
	f.ids = ids
	return f.reply()
}

func (f *fakeClient) Update(_ context.Context, id string, in pebcli.UpdateInput) (*pebcli.Result, error) {
	f.calls = append(f.calls, "update")
	f.id = id
	f.update = in
	return f.reply()
}

func (f *fakeClient) Query(_ context.Context, filters, fields []string) (*pebcli.Result, error) {
	f.calls = append(f.calls, "query")
	f.filter = filters
	f.fields = fields
	return f.reply()
}

func (f *fakeClient) Delete(_ context.Context, ids []string) (*pebcli.Result, error) {
	f.calls = append(f.calls, "delete")
	f.ids = ids
	return f.reply()
}

func call(t *testing.T, list []Tool, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool, ok := Find(list, name)
	require.True(t, ok, "tool %s not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestAll_Names(t *testing.T) {
	list := All(&fakeClient{}, nil, zerolog.Nop())

	var names []string
	for _, tool := range list {
		names = append(names, tool.Definition.Name)
	}
	assert.Equal(t, []string{NameNew, NameRead, NameUpdate, NameQuery, NameDelete}, names)
}

func TestAll_DescriptionsUseProjectIDs(t *testing.T) {
	list := All(&fakeClient{}, &project.Config{Prefix: "ab", IDLength: 6}, zerolog.Nop())

	read, _ := Find(list, NameRead)
	idProp, ok := read.Definition.InputSchema.Properties["id"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Array of peb IDs to read (e.g., ['ab-xxxxxx', 'ab-yyyyyy'])", idProp["description"])

	update, _ := Find(list, NameUpdate)
	idProp, ok = update.Definition.InputSchema.Properties["id"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "The peb ID to update (e.g., ab-xxxxxx)", idProp["description"])

	query, _ := Find(list, NameQuery)
	assert.Contains(t, query.Definition.Description, "id:ab-xxxxxx|id:(ab-xxxxxx|ab-yyyyyy)")
	assert.Contains(t, query.Definition.Description, "blocked-by:ab-xxxxxx")
}

func TestAll_DefaultProjectIDs(t *testing.T) {
	list := All(&fakeClient{}, nil, zerolog.Nop())

	del, _ := Find(list, NameDelete)
	idProp := del.Definition.InputSchema.Properties["id"].(map[string]any)
	assert.Equal(t, "Array of peb IDs to delete (e.g., ['peb-xxxx', 'peb-yyyy'])", idProp["description"])
}

func TestArguments_RequiredFirst(t *testing.T) {
	list := All(&fakeClient{}, nil, zerolog.Nop())

	tool, _ := Find(list, NameNew)
	assert.Equal(t, []string{"content", "title", "blocked_by", "type"}, Arguments(tool))

	tool, _ = Find(list, NameQuery)
	assert.Equal(t, []string{"fields", "filters"}, Arguments(tool))
}

func TestHandleNew(t *testing.T) {
	client := &fakeClient{result: &pebcli.Result{Stdout: "{\"id\":\"peb-a1b2\"}\n"}}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameNew, map[string]any{
		"title":      "Fix login",
		"content":    "Steps to reproduce",
		"type":       "feature",
		"blocked_by": []any{"peb-0001"},
	})

	assert.False(t, res.IsError)
	assert.Equal(t, `{"id":"peb-a1b2"}`, resultText(t, res))
	assert.Equal(t, pebcli.NewInput{
		Title:     "Fix login",
		Content:   "Steps to reproduce",
		Type:      "feature",
		BlockedBy: []string{"peb-0001"},
	}, client.newIn)
}

func TestHandleNew_BlockedByAbsent(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	call(t, list, NameNew, map[string]any{"title": "t", "content": "c"})
	assert.Nil(t, client.newIn.BlockedBy)
}

func TestHandleNew_MissingRequired(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameNew, map[string]any{"title": "t"})

	assert.True(t, res.IsError)
	assert.Equal(t, "missing required argument(s): content", resultText(t, res))
	assert.Empty(t, client.calls, "peb must not run when arguments are missing")
}

func TestHandleNew_WrongArgumentType(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameNew, map[string]any{"title": "t", "content": "c", "blocked_by": "peb-1"})

	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "invalid arguments:"))
	assert.Empty(t, client.calls)
}

func TestHandleRead(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameRead, map[string]any{"id": []any{"peb-1", "peb-2"}})

	assert.False(t, res.IsError)
	assert.Equal(t, "ok", resultText(t, res))
	assert.Equal(t, []string{"peb-1", "peb-2"}, client.ids)
}

func TestHandleRead_NilArguments(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameRead, nil)

	assert.True(t, res.IsError)
	assert.Equal(t, "missing required argument(s): id", resultText(t, res))
}

func TestHandleUpdate(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want pebcli.UpdateInput
	}{
		{
			name: "status only",
			args: map[string]any{"id": "peb-1", "status": "fixed"},
			want: pebcli.UpdateInput{Status: "fixed"},
		},
		{
			name: "explicit empty blocked_by clears the list",
			args: map[string]any{"id": "peb-1", "blocked_by": []any{}},
			want: pebcli.UpdateInput{BlockedBy: []string{}},
		},
		{
			name: "all fields",
			args: map[string]any{
				"id": "peb-1", "status": "in-progress", "title": "T", "content": "C",
				"type": "epic", "blocked_by": []any{"peb-2"},
			},
			want: pebcli.UpdateInput{
				Status: "in-progress", Title: "T", Content: "C", Type: "epic",
				BlockedBy: []string{"peb-2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			list := All(client, nil, zerolog.Nop())

			res := call(t, list, NameUpdate, tt.args)

			assert.False(t, res.IsError)
			assert.Equal(t, "peb-1", client.id)
			assert.Equal(t, tt.want, client.update)
		})
	}
}

func TestHandleQuery(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameQuery, map[string]any{
		"filters": []any{"status:new", "type:bug"},
		"fields":  []any{"id", "title"},
	})

	assert.False(t, res.IsError)
	assert.Equal(t, []string{"status:new", "type:bug"}, client.filter)
	assert.Equal(t, []string{"id", "title"}, client.fields)
}

func TestHandleQuery_NoArguments(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameQuery, map[string]any{})

	assert.False(t, res.IsError)
	assert.Equal(t, []string{"query"}, client.calls)
	assert.Nil(t, client.filter)
	assert.Nil(t, client.fields)
}

func TestHandleDelete(t *testing.T) {
	client := &fakeClient{}
	list := All(client, nil, zerolog.Nop())

	call(t, list, NameDelete, map[string]any{"id": []any{"peb-9"}})
	assert.Equal(t, []string{"delete"}, client.calls)
	assert.Equal(t, []string{"peb-9"}, client.ids)
}

func TestHandler_NonZeroExitIsToolError(t *testing.T) {
	client := &fakeClient{result: &pebcli.Result{
		Stdout:   "partial\n",
		Stderr:   "peb not found: peb-1\n",
		ExitCode: 1,
	}}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameRead, map[string]any{"id": []any{"peb-1"}})

	assert.True(t, res.IsError)
	assert.Equal(t, "partial\nError: peb not found: peb-1", resultText(t, res))
}

func TestHandler_StderrOnSuccessIsPassedThrough(t *testing.T) {
	client := &fakeClient{result: &pebcli.Result{Stdout: "done", Stderr: "warning: stale index"}}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameDelete, map[string]any{"id": []any{"peb-1"}})

	assert.False(t, res.IsError)
	assert.Equal(t, "done\nError: warning: stale index", resultText(t, res))
}

func TestHandler_RunnerError(t *testing.T) {
	client := &fakeClient{
		result: &pebcli.Result{ExitCode: -1},
		err:    errors.New("failed to start peb: executable file not found in $PATH"),
	}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameQuery, map[string]any{})

	assert.True(t, res.IsError)
	assert.Equal(t, "Error: failed to start peb: executable file not found in $PATH", resultText(t, res))
}

func TestHandler_RunnerErrorKeepsCapturedOutput(t *testing.T) {
	client := &fakeClient{
		result: &pebcli.Result{Stdout: "half a line", ExitCode: -1},
		err:    errors.New("peb timed out after 1s"),
	}
	list := All(client, nil, zerolog.Nop())

	res := call(t, list, NameRead, map[string]any{"id": []any{"peb-1"}})

	assert.True(t, res.IsError)
	assert.Equal(t, "half a line\nError: peb timed out after 1s", resultText(t, res))
}

func TestServerTools(t *testing.T) {
	list := All(&fakeClient{}, nil, zerolog.Nop())
	st := ServerTools(list)

	require.Len(t, st, len(list))
	for i := range list {
		assert.Equal(t, list[i].Definition.Name, st[i].Tool.Name)
		assert.NotNil(t, st[i].Handler)
	}
}
