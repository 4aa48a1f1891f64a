package builtin

import (
	"context"
	"encoding/json"

	"github.com/jcodehq/jcode"
	pipeexec "github.com/jcodehq/jcode/exec"
)

// bashExecutor is the package-level background-process registry backing
// the bash tool: check_pid/kill_pid need a single shared table across
// calls, so this can't be constructed fresh per invocation the way the
// other stateless tool funcs are.
var bashExecutor = pipeexec.NewBashExecutor()

// BashTool returns the tool definition for the bash tool, including its
// auto-backgrounding and check_pid/kill_pid parameters.
func BashTool() jcode.Tool {
	return pipeexec.BashExecutorTool()
}

// ExecuteBash runs a bash command through bashExecutor: output beyond
// DefaultMaxLines/DefaultMaxBytes is truncated and offloaded to a temp
// file, and commands that outlive their timeout are backgrounded rather
// than killed (§4.6 background_tool).
func ExecuteBash(ctx context.Context, args json.RawMessage) (*jcode.ToolResult, error) {
	return bashExecutor.Execute(ctx, args)
}
