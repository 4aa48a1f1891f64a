package manager_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_NewSessionGetsMemorableID(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)

	s, err := m.GetOrCreate("/work", "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.ID, s.FriendlyName)
	assert.Equal(t, "/work", s.WorkingDir)
}

func TestGetOrCreate_GeneratesDistinctIDsOnCollision(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := m.GetOrCreate("/work", "")
		require.NoError(t, err)
		assert.False(t, seen[s.ID], "id %q reused", s.ID)
		seen[s.ID] = true
	}
}

func TestGetOrCreate_ResumeReturnsLiveSession(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)

	created, err := m.GetOrCreate("/work", "")
	require.NoError(t, err)

	resumed, err := m.GetOrCreate("", created.ID)
	require.NoError(t, err)
	assert.Same(t, created, resumed)
}

func TestGetOrCreate_ResumeMissingSessionFails(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)

	_, err := m.GetOrCreate("", "nonexistent")
	assert.Error(t, err)
}

func TestGetOrCreate_ResumeLoadsFromDisk(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	m1 := manager.New(root, nil)
	created, err := m1.GetOrCreate("/work", "")
	require.NoError(t, err)
	require.NoError(t, created.Append(jcode.UserMessage{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: "hello"}},
	}))
	require.NoError(t, m1.Save(created.ID))

	m2 := manager.New(root, nil)
	resumed, err := m2.GetOrCreate("", created.ID)
	require.NoError(t, err)
	require.Len(t, resumed.Messages(), 1)
}

func TestDestroy_RemovesLiveAndPersistedSession(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	m := manager.New(root, nil)

	s, err := m.GetOrCreate("/work", "")
	require.NoError(t, err)
	require.NoError(t, m.Save(s.ID))

	require.NoError(t, m.Destroy(s.ID))

	_, err = m.Get(s.ID)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(root, "sessions", s.ID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDestroy_UnknownSessionErrors(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)
	assert.Error(t, m.Destroy("nonexistent"))
}

func TestRename_UpdatesFriendlyNameAndPersists(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	m := manager.New(root, nil)

	s, err := m.GetOrCreate("/work", "")
	require.NoError(t, err)
	require.NoError(t, m.Save(s.ID))

	require.NoError(t, m.Rename(s.ID, "my-session"))
	assert.Equal(t, "my-session", s.FriendlyName)

	m2 := manager.New(root, nil)
	require.NoError(t, m2.Scan())
	resumed, err := m2.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "my-session", resumed.FriendlyName)
}

func TestScan_QuarantinesMalformedSessionDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	badDir := filepath.Join(root, "sessions", "broken-session")
	require.NoError(t, os.MkdirAll(badDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "log.json"), []byte("not json"), 0o600))

	m := manager.New(root, nil)
	require.NoError(t, m.Scan())

	_, err := m.Get("broken-session")
	assert.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "broken-session.corrupt-")
}

func TestScan_LoadsWellFormedSessions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	m1 := manager.New(root, nil)
	s, err := m1.GetOrCreate("/work", "")
	require.NoError(t, err)
	require.NoError(t, m1.Save(s.ID))

	m2 := manager.New(root, nil)
	require.NoError(t, m2.Scan())
	resumed, err := m2.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resumed.ID)
}

func TestList_OrdersByCreationTime(t *testing.T) {
	t.Parallel()
	m := manager.New(t.TempDir(), nil)

	first, err := m.GetOrCreate("/a", "")
	require.NoError(t, err)
	second, err := m.GetOrCreate("/b", "")
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}
