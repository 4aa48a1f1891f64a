package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	result *jcode.ToolResult
	err    error
}

func (s *stubExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*jcode.ToolResult, error) {
	return s.result, s.err
}

func TestTouchExecutor_RecordsTouchForFilePathArg(t *testing.T) {
	t.Parallel()
	bus := swarm.NewBus(0)
	var delivered []swarm.Notification

	exec := &touchExecutor{
		inner:     &stubExecutor{result: &jcode.ToolResult{}},
		bus:       bus,
		sessionID: "s1",
		deliver:   func(n swarm.Notification) { delivered = append(delivered, n) },
	}

	args, err := json.Marshal(map[string]string{"file_path": "/work/main.go", "content": "x"})
	require.NoError(t, err)

	_, execErr := exec.Execute(context.Background(), "write", args)
	require.NoError(t, execErr)

	touches := bus.TouchesForPath("/work/main.go")
	require.Len(t, touches, 1)
	assert.Equal(t, swarm.TouchWrite, touches[0].Op)
	require.Len(t, delivered, 1)
	assert.Equal(t, "touch", delivered[0].Kind)
}

func TestTouchExecutor_NoTouchRecordedWithoutPathArg(t *testing.T) {
	t.Parallel()
	bus := swarm.NewBus(0)

	exec := &touchExecutor{
		inner:     &stubExecutor{result: &jcode.ToolResult{}},
		bus:       bus,
		sessionID: "s1",
	}

	args, err := json.Marshal(map[string]any{"invocations": []any{}})
	require.NoError(t, err)

	_, execErr := exec.Execute(context.Background(), "batch", args)
	require.NoError(t, execErr)
	assert.Empty(t, bus.TouchesForPath(""))
}

func TestTouchExecutor_SkipsTouchOnExecError(t *testing.T) {
	t.Parallel()
	bus := swarm.NewBus(0)

	exec := &touchExecutor{
		inner:     &stubExecutor{err: assertErr{}},
		bus:       bus,
		sessionID: "s1",
	}

	args, _ := json.Marshal(map[string]string{"file_path": "/work/main.go"})
	_, execErr := exec.Execute(context.Background(), "read", args)
	assert.Error(t, execErr)
	assert.Empty(t, bus.TouchesForPath("/work/main.go"))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
