package swarm_test

import (
	"testing"

	"github.com/jcodehq/jcode/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharesRoot_ExactMatch(t *testing.T) {
	t.Parallel()
	assert.True(t, swarm.SharesRoot("/work/a", "/work/a"))
}

func TestSharesRoot_NestedUnderOther(t *testing.T) {
	t.Parallel()
	assert.True(t, swarm.SharesRoot("/work/a", "/work/a/sub/dir"))
	assert.True(t, swarm.SharesRoot("/work/a/sub/dir", "/work/a"))
}

func TestSharesRoot_UnrelatedDirectoriesDoNotMatch(t *testing.T) {
	t.Parallel()
	assert.False(t, swarm.SharesRoot("/work/a", "/work/b"))
}

func TestBus_PeersReturnsOnlySessionsSharingRoot(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)

	b.Join("s1", "/work/project")
	b.Join("s2", "/work/project/sub")
	b.Join("s3", "/other/project")

	peers := b.Peers("s1")
	require.Len(t, peers, 1)
	assert.Equal(t, "s2", peers[0])
}

func TestBus_PeersEmptyForUnknownSession(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)
	assert.Empty(t, b.Peers("nonexistent"))
}

func TestBus_LeaveRemovesFromPeerQueries(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)
	b.Join("s1", "/work")
	b.Join("s2", "/work")
	require.Len(t, b.Peers("s1"), 1)

	b.Leave("s2")
	assert.Empty(t, b.Peers("s1"))
}

func TestBus_RecordTouchTracksByPath(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)

	n := b.RecordTouch("s1", "/work/main.go", swarm.TouchWrite)
	assert.Equal(t, "touch", n.Kind)
	assert.Equal(t, "/work/main.go", n.Path)

	touches := b.TouchesForPath("/work/main.go")
	require.Len(t, touches, 1)
	assert.Equal(t, "s1", touches[0].SessionID)
	assert.Equal(t, swarm.TouchWrite, touches[0].Op)
}

func TestBus_RecordTouchBoundsLogToMaxTouches(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(2)

	b.RecordTouch("s1", "/a", swarm.TouchRead)
	b.RecordTouch("s1", "/b", swarm.TouchRead)
	b.RecordTouch("s1", "/c", swarm.TouchRead)

	assert.Empty(t, b.TouchesForPath("/a")) // evicted once the log exceeded maxTouches
	assert.Len(t, b.TouchesForPath("/c"), 1)
}

func TestBus_ContextSetAndGet(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)

	_, ok := b.GetContext("missing")
	assert.False(t, ok)

	b.SetContext("build_tag", "nightly")
	v, ok := b.GetContext("build_tag")
	require.True(t, ok)
	assert.Equal(t, "nightly", v)
}

func TestBus_BroadcastTargetsEveryPeerOnly(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)
	b.Join("s1", "/work")
	b.Join("s2", "/work")
	b.Join("s3", "/elsewhere")

	notifications := b.Broadcast("s1", "hello swarm")
	require.Len(t, notifications, 1)
	assert.Equal(t, "s2", notifications[0].Path)
	assert.Equal(t, "hello swarm", notifications[0].Content)
}

func TestBus_SendBuildsDirectedMessage(t *testing.T) {
	t.Parallel()
	b := swarm.NewBus(0)
	n := b.Send("s1", "s2", "look at this")
	assert.Equal(t, "message", n.Kind)
	assert.Equal(t, "s2", n.Path)
	assert.Equal(t, "look at this", n.Content)
}
