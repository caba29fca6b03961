package history

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"speechcoach/pkg/analysis"
	"speechcoach/pkg/config"
	speecherrors "speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newEntry(t *testing.T, transcript string) Entry {
	t.Helper()
	e, err := NewEntry("/tmp/"+transcript+".ogg", 42, transcript, analysis.Analyze(transcript))
	require.NoError(t, err)
	return e
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"json": func(t *testing.T) Store {
			return NewJSONStore(filepath.Join(t.TempDir(), "history.json"), testLogger())
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			require.NoError(t, store.Load(ctx))

			empty, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			first := newEntry(t, "First take. Hello world.")
			second := newEntry(t, "Second take. Hello again.")
			third := newEntry(t, "Third take. Last one.")
			for _, e := range []Entry{first, second, third} {
				require.NoError(t, store.Append(ctx, e))
			}

			listed, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, listed, 3)
			assert.Equal(t, []Entry{third, second, first}, listed, "most recent first with identical fields")

			got, err := store.Get(ctx, second.ID)
			require.NoError(t, err)
			assert.Equal(t, second, got)

			require.NoError(t, store.Remove(ctx, second.ID))
			listed, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []Entry{third, first}, listed)

			err = store.Remove(ctx, second.ID)
			assert.ErrorIs(t, err, speecherrors.ErrNotFound)
			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, speecherrors.ErrNotFound)

			require.NoError(t, store.Save(ctx))
		})
	}
}

func TestJSONStorePersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	store := NewJSONStore(path, testLogger())
	require.NoError(t, store.Load(ctx))
	entry := newEntry(t, "Persist me. Please.")
	require.NoError(t, store.Append(ctx, entry))

	reopened := NewJSONStore(path, testLogger())
	require.NoError(t, reopened.Load(ctx))
	listed, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry}, listed)
}

func TestJSONStoreMalformedFileLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "broken"`), 0o600))

	store := NewJSONStore(path, testLogger())
	require.NoError(t, store.Load(ctx))
	listed, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, store.Append(ctx, newEntry(t, "Fresh start.")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []Entry
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 1)
}

func TestJSONStoreAppendRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// the parent of the history file is a regular file, so writes fail
	store := NewJSONStore(filepath.Join(blocker, "history.json"), testLogger())
	require.NoError(t, store.Load(ctx))

	assert.Error(t, store.Append(ctx, newEntry(t, "Never saved.")))
	listed, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSQLiteStoreUnreadableFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	garbage := bytes.Repeat([]byte("not a database "), 512)
	require.NoError(t, os.WriteFile(path, garbage, 0o600))

	store, err := Open(ctx, &config.HistoryConfig{Backend: "sqlite", SQLitePath: path}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	listed, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	entry := newEntry(t, "Fresh database.")
	require.NoError(t, store.Append(ctx, entry))
	listed, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry}, listed)

	moved, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, moved, 1)
	kept, err := os.ReadFile(moved[0])
	require.NoError(t, err)
	assert.Equal(t, garbage, kept, "the unreadable file is kept for inspection")
}

func TestSQLiteStoreSkipsUnreadableRows(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Load(ctx))

	good := newEntry(t, "Readable entry.")
	require.NoError(t, store.Append(ctx, good))
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO entries (id, date, duration, location, transcript, score, feedback, word_count, sentence_count, avg_words)
		VALUES ('bad-date', 'yesterday', 31, '/tmp/x.ogg', 'x', 5, 'f', 1, 1, 1)`)
	require.NoError(t, err)

	listed, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{good}, listed)
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQLiteStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Load(ctx))
	entry := newEntry(t, "Stored in SQLite. Nice.")
	require.NoError(t, store.Append(ctx, entry))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Load(ctx))

	listed, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry}, listed)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(ctx, &config.HistoryConfig{Backend: "memory"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, &config.HistoryConfig{Backend: "json", Path: filepath.Join(dir, "h.json")}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, store)

	store, err = Open(ctx, &config.HistoryConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "h.db")}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, &config.HistoryConfig{Backend: "csv"}, testLogger())
	assert.ErrorIs(t, err, speecherrors.ErrInvalidInput)
}

func TestNewEntryIDsAreTimeOrdered(t *testing.T) {
	a := newEntry(t, "a")
	b := newEntry(t, "b")
	assert.Less(t, a.ID, b.ID)
	assert.Equal(t, "UTC", a.Date.Location().String())
}

func TestExporters(t *testing.T) {
	entries := []Entry{newEntry(t, "Export me. Twice.")}

	jsonExporter, err := NewExporter("json")
	require.NoError(t, err)
	var jsonBuf bytes.Buffer
	require.NoError(t, jsonExporter.Export(entries, &jsonBuf))
	var decoded []Entry
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, entries, decoded)
	assert.Equal(t, "json", jsonExporter.Extension())

	yamlExporter, err := NewExporter("yaml")
	require.NoError(t, err)
	var yamlBuf bytes.Buffer
	require.NoError(t, yamlExporter.Export(entries, &yamlBuf))
	var generic []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &generic))
	require.Len(t, generic, 1)
	assert.Equal(t, entries[0].ID, generic[0]["id"])
	assert.Contains(t, yamlBuf.String(), "wordCount: 3")

	_, err = NewExporter("xml")
	assert.ErrorIs(t, err, speecherrors.ErrInvalidInput)
}
