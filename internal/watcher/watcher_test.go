package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExpandsRecursiveGlobs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	for _, p := range []string{
		filepath.Join(dir, "top.ndjson"),
		filepath.Join(nested, "deep.ndjson"),
		filepath.Join(nested, "skip.txt"),
	} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	w, err := New([]string{
		filepath.Join(dir, "**", "*.ndjson"),
		filepath.Join(dir, "top.ndjson"),
	}, nil)
	require.NoError(t, err)
	defer w.fsw.Close()

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "top.ndjson"),
		filepath.Join(nested, "deep.ndjson"),
	}, w.Paths())
}

func TestNewNoMatches(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "*.ndjson")}, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestStartForwardsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := New([]string{path}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-w.Events:
		assert.Equal(t, path, ev.Path)
		assert.True(t, ev.Op.Has(fsnotify.Write))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for write event")
	}

	cancel()
	<-done
	for range w.Events {
	}
}
