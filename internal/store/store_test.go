package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestOpenMissingFile(t *testing.T) {
	s, path := openTemp(t)
	assert.Equal(t, path, s.Path())
	_, _, ok := s.LoadDocument()
	assert.False(t, ok)
	_, ok = s.LoadSession()
	assert.False(t, ok)
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(path)
	assert.ErrorContains(t, err, "decode state file")
}

func TestDocumentRoundTrip(t *testing.T) {
	s, path := openTemp(t)
	result, err := jsonval.Parse(`{"z":1,"a":{"flowId":"f"}}`)
	require.NoError(t, err)

	require.NoError(t, s.SaveDocument("export.json", []model.RawLogEntry{{Preview: true, Result: result}}))

	reopened, err := Open(path)
	require.NoError(t, err)
	name, entries, ok := reopened.LoadDocument()
	require.True(t, ok)
	assert.Equal(t, "export.json", name)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Preview)
	assert.Equal(t, `{"z":1,"a":{"flowId":"f"}}`, entries[0].Result.Compact())

	require.NoError(t, reopened.ClearDocument())
	_, _, ok = reopened.LoadDocument()
	assert.False(t, ok)
}

func TestSessionRoundTrip(t *testing.T) {
	s, path := openTemp(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSession(Session{
		Broker:   "localhost:9092",
		Topics:   []string{"orders"},
		Messages: []model.ParsedMessage{{ID: "orders-0-1", FlowID: "f1", Timestamp: ts}},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2024-05-01T10:00:00Z")

	reopened, err := Open(path)
	require.NoError(t, err)
	sess, ok := reopened.LoadSession()
	require.True(t, ok)
	assert.Equal(t, "localhost:9092", sess.Broker)
	assert.False(t, sess.SavedAt.IsZero())
	require.Len(t, sess.Messages, 1)
	assert.True(t, ts.Equal(sess.Messages[0].Timestamp))
}

func TestOffsets(t *testing.T) {
	s, path := openTemp(t)
	_, ok := s.Offset("/var/log/a.log")
	assert.False(t, ok)

	s.SetOffset("/var/log/a.log", 4096)
	off, ok := s.Offset("/var/log/a.log")
	require.True(t, ok)
	assert.Equal(t, int64(4096), off)

	// Not on disk until Save.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Save())
	reopened, err := Open(path)
	require.NoError(t, err)
	off, ok = reopened.Offset("/var/log/a.log")
	require.True(t, ok)
	assert.Equal(t, int64(4096), off)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
