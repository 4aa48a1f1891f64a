package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jcodehq/jcode"
)

// Compile-time interface check.
var _ jcode.ToolExecutor = (*Executor)(nil)

// Executor dispatches tool calls to the appropriate built-in tool implementation.
type Executor struct{}

// NewExecutor creates a new Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Execute dispatches a tool call by name. Returns an infrastructure error for
// unknown tool names.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) (*jcode.ToolResult, error) {
	switch name {
	case "bash":
		return ExecuteBash(ctx, args)
	case "read":
		return ExecuteRead(ctx, args)
	case "write":
		return ExecuteWrite(ctx, args)
	case "edit":
		return ExecuteEdit(ctx, args)
	case "grep":
		return ExecuteGrep(ctx, args)
	case "glob":
		return ExecuteGlob(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// Tools returns the tool definitions for all built-in tools.
func (e *Executor) Tools() []jcode.Tool {
	return []jcode.Tool{
		BashTool(),
		ReadTool(),
		WriteTool(),
		EditTool(),
		GrepTool(),
		GlobTool(),
	}
}

// RegisterAll registers every built-in tool into reg, classified read-only
// or side-effecting per §4.3 for the turn loop's urgent-interrupt policy.
func RegisterAll(reg *jcode.Registry) {
	register(reg, ReadTool(), true, ExecuteRead)
	register(reg, GrepTool(), true, ExecuteGrep)
	register(reg, GlobTool(), true, ExecuteGlob)
	register(reg, BashTool(), false, ExecuteBash)
	register(reg, WriteTool(), false, ExecuteWrite)
	register(reg, EditTool(), false, ExecuteEdit)
}

func register(reg *jcode.Registry, tool jcode.Tool, readOnly bool, invoke jcode.ToolInvoker) {
	tool.ReadOnly = readOnly
	reg.Register(jcode.ToolDescriptor{Tool: tool, Invoke: invoke})
}
