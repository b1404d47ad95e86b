package snapshot

// ============================================================================
// Snapshot Manager tests
// Purpose: verify atomic replacement, load fallbacks and round-trips
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), zerolog.Nop())
}

func TestWriteAndLoad(t *testing.T) {
	m := newTestManager(t)

	original := Container{
		LastWALIndex: 12345,
		FilterKind:   "lru",
		FilterData:   []byte(`{"capacity":10,"keys":["a","b"]}`),
		StateData:    []byte(`{"u1":100}`),
	}
	require.NoError(t, m.Write(original))

	loaded, ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, SchemaVersion, loaded.SchemaVer)
	assert.Equal(t, original.LastWALIndex, loaded.LastWALIndex)
	assert.Equal(t, original.FilterKind, loaded.FilterKind)
	assert.Equal(t, original.FilterData, loaded.FilterData)
	assert.Equal(t, original.StateData, loaded.StateData)
}

func TestLoadMissingIsColdStart(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, m.Exists())
}

func TestLoadCorruptFallsBack(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("{truncated"), 0644))

	_, ok, err := m.Load()
	require.NoError(t, err, "corruption must not be an error, it forces full replay")
	assert.False(t, ok)
}

func TestLoadWrongSchemaFallsBack(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"schema_ver":99}`), 0644))

	_, ok, err := m.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestWriteReplacesAtomically pins the temp-then-rename protocol: after a
// successful write, no temp file remains and the canonical file holds the
// newest container.
func TestWriteReplacesAtomically(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Write(Container{LastWALIndex: 1}))
	require.NoError(t, m.Write(Container{LastWALIndex: 2}))

	_, err := os.Stat(filepath.Join(filepath.Dir(m.Path()), TempName))
	assert.True(t, os.IsNotExist(err), "temp file must not survive a write")

	loaded, ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), loaded.LastWALIndex)
	assert.True(t, m.Exists())
}

func TestWriteCreatesDirectory(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nested", "snapshot"), zerolog.Nop())
	require.NoError(t, m.Write(Container{LastWALIndex: 7}))

	loaded, ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), loaded.LastWALIndex)
}
