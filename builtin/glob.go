package builtin

import (
	"context"
	"encoding/json"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/fs"
)

// GlobTool returns the tool definition for the glob tool.
func GlobTool() jcode.Tool {
	return fs.GlobTool()
}

// ExecuteGlob finds files matching a glob pattern and returns their paths.
func ExecuteGlob(ctx context.Context, args json.RawMessage) (*jcode.ToolResult, error) {
	return fs.ExecuteGlob(ctx, args)
}
