package mcpserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, project.DirName), 0755))
	require.NoError(t, os.WriteFile(project.ConfigPath(root), []byte("prefix = \"peb\"\n"), 0644))
	return root
}

func TestWatchConfig_FiresOnWrite(t *testing.T) {
	root := newProject(t)
	changed := make(chan struct{}, 10)

	w, err := WatchConfig(root, 20*time.Millisecond, func() { changed <- struct{}{} }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(project.ConfigPath(root), []byte("prefix = \"ops\"\n"), 0644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change not reported")
	}
}

func TestWatchConfig_IgnoresOtherFiles(t *testing.T) {
	root := newProject(t)
	changed := make(chan struct{}, 10)

	w, err := WatchConfig(root, 20*time.Millisecond, func() { changed <- struct{}{} }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, project.DirName, "peb-0001.md"), []byte("x"), 0644))

	select {
	case <-changed:
		t.Fatal("unrelated file triggered a refresh")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchConfig_DebouncesBursts(t *testing.T) {
	root := newProject(t)
	changed := make(chan struct{}, 10)

	w, err := WatchConfig(root, 200*time.Millisecond, func() { changed <- struct{}{} }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(project.ConfigPath(root), []byte("id_length = 6\n"), 0644))
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change not reported")
	}
	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, changed, "burst should collapse into one callback")
}

func TestWatchConfig_MissingProjectDir(t *testing.T) {
	_, err := WatchConfig(t.TempDir(), time.Millisecond, func() {}, zerolog.Nop())
	assert.Error(t, err)
}

func TestConfigWatcher_CloseTwice(t *testing.T) {
	w, err := WatchConfig(newProject(t), time.Millisecond, func() {}, zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
