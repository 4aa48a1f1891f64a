package server

import (
	"context"
	"encoding/json"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/swarm"
)

// touchExecutor wraps a ToolExecutor, recording a swarm.Touch for any
// invocation whose arguments name a filesystem path (the "file_path"
// or "path" field used by the read/write/edit/glob/grep tools), then
// delivering the resulting Notification to the session's peers (C8).
// Tools with neither field (e.g. "batch", "bash") are executed
// normally without a touch recorded.
type touchExecutor struct {
	inner     jcode.ToolExecutor
	bus       *swarm.Bus
	sessionID string
	deliver   func(swarm.Notification)
}

var _ jcode.ToolExecutor = (*touchExecutor)(nil)

func (t *touchExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*jcode.ToolResult, error) {
	result, err := t.inner.Execute(ctx, name, args)
	if err != nil {
		return result, err
	}
	if path := extractPath(args); path != "" {
		op := swarm.TouchRead
		if name == "write" || name == "edit" {
			op = swarm.TouchWrite
		}
		n := t.bus.RecordTouch(t.sessionID, path, op)
		if t.deliver != nil {
			t.deliver(n)
		}
	}
	return result, err
}

// extractPath pulls a "file_path" or "path" string field out of a
// tool's raw JSON arguments, tolerating tools that have neither.
func extractPath(args json.RawMessage) string {
	var probe struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(args, &probe); err != nil {
		return ""
	}
	if probe.FilePath != "" {
		return probe.FilePath
	}
	return probe.Path
}
