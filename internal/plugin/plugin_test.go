package plugin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/peb-bridge/internal/pebcli"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	primeCalls []bool
	primeErr   error
	cfg        *project.Config
	cfgErr     error
}

func (f *fakeBackend) Prime(_ context.Context, mcp bool) (string, error) {
	f.primeCalls = append(f.primeCalls, mcp)
	if f.primeErr != nil {
		return "", f.primeErr
	}
	if mcp {
		return "Use the peb_* tools.\n", nil
	}
	return "Run peb from the shell.\n", nil
}

func (f *fakeBackend) Config(context.Context) (*project.Config, error) {
	return f.cfg, f.cfgErr
}

func (f *fakeBackend) New(context.Context, pebcli.NewInput) (*pebcli.Result, error) {
	return &pebcli.Result{}, nil
}

func (f *fakeBackend) Read(context.Context, []string) (*pebcli.Result, error) {
	return &pebcli.Result{}, nil
}

func (f *fakeBackend) Update(context.Context, string, pebcli.UpdateInput) (*pebcli.Result, error) {
	return &pebcli.Result{}, nil
}

func (f *fakeBackend) Query(context.Context, []string, []string) (*pebcli.Result, error) {
	return &pebcli.Result{}, nil
}

func (f *fakeBackend) Delete(context.Context, []string) (*pebcli.Result, error) {
	return &pebcli.Result{}, nil
}

func TestNew_PrimeVariant(t *testing.T) {
	backend := &fakeBackend{}

	p, err := New(context.Background(), backend, VariantPrime, Options{})
	require.NoError(t, err)

	assert.Equal(t, "pebbles-prime", p.Name)
	assert.Equal(t, "Run peb from the shell.\n", p.Prime)
	assert.Equal(t, []bool{false}, backend.primeCalls)
	assert.Empty(t, p.Tools())
	assert.Nil(t, p.Project())
}

func TestNew_FullVariant(t *testing.T) {
	backend := &fakeBackend{cfg: &project.Config{Prefix: "wk", IDLength: 3}}

	p, err := New(context.Background(), backend, VariantFull, Options{})
	require.NoError(t, err)

	assert.Equal(t, "pebbles", p.Name)
	assert.Equal(t, "Use the peb_* tools.\n", p.Prime)
	assert.Equal(t, []bool{true}, backend.primeCalls)
	assert.Len(t, p.Tools(), 5)
	assert.Equal(t, "wk", p.Project().Prefix)
}

func TestNew_PrimeFailureAbortsLoad(t *testing.T) {
	backend := &fakeBackend{primeErr: errors.New("peb: not a pebbles project")}

	p, err := New(context.Background(), backend, VariantFull, Options{})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "failed to load prime text")
	assert.Contains(t, err.Error(), "not a pebbles project")
}

func TestNew_ConfigFailureWithoutProjectFile(t *testing.T) {
	backend := &fakeBackend{cfgErr: errors.New("failed to get config: boom")}

	_, err := New(context.Background(), backend, VariantFull, Options{Dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get config: boom")
}

func TestNew_ConfigFallsBackToProjectFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, project.DirName), 0755))
	require.NoError(t, os.WriteFile(project.ConfigPath(root), []byte("prefix = \"ops\"\nid_length = 5\n"), 0644))

	backend := &fakeBackend{cfgErr: errors.New("failed to get config: boom")}

	p, err := New(context.Background(), backend, VariantFull, Options{Dir: root})
	require.NoError(t, err)
	assert.Equal(t, &project.Config{Prefix: "ops", IDLength: 5}, p.Project())
}

func TestNew_PrimeVariantSkipsConfig(t *testing.T) {
	backend := &fakeBackend{cfgErr: errors.New("never asked")}

	_, err := New(context.Background(), backend, VariantPrime, Options{})
	assert.NoError(t, err)
}

func TestNew_LogsThroughProvidedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	_, err := New(context.Background(), &fakeBackend{cfg: project.Default()}, VariantFull, Options{Logger: &logger})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"plugin":"pebbles"`)
	assert.Contains(t, buf.String(), `"tools":5`)
	assert.Contains(t, buf.String(), "Plugin loaded")
}

func TestHooks_AppendPrime(t *testing.T) {
	p, err := New(context.Background(), &fakeBackend{}, VariantPrime, Options{})
	require.NoError(t, err)
	hooks := p.Hooks()

	sys := &SystemOutput{System: []string{"existing"}}
	require.NoError(t, hooks.SystemTransform(context.Background(), sys))
	require.NoError(t, hooks.SystemTransform(context.Background(), sys))
	assert.Equal(t, []string{"existing", p.Prime, p.Prime}, sys.System)

	compact := &CompactionOutput{}
	require.NoError(t, hooks.SessionCompacting(context.Background(), compact))
	assert.Equal(t, []string{p.Prime}, compact.Context)
}

func TestPrimeFetchedOnce(t *testing.T) {
	backend := &fakeBackend{cfg: project.Default()}
	p, err := New(context.Background(), backend, VariantFull, Options{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.SystemTransform(context.Background(), &SystemOutput{}))
		require.NoError(t, p.SessionCompacting(context.Background(), &CompactionOutput{}))
	}
	require.NoError(t, p.Reload(context.Background()))

	assert.Len(t, backend.primeCalls, 1)
}

func TestReload_FollowsProjectConfig(t *testing.T) {
	backend := &fakeBackend{cfg: project.Default()}
	p, err := New(context.Background(), backend, VariantFull, Options{})
	require.NoError(t, err)
	assert.Equal(t, "peb", p.Project().Prefix)

	backend.cfg = &project.Config{Prefix: "new", IDLength: 2}
	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, "new", p.Project().Prefix)
	assert.Len(t, p.Tools(), 5)
}
