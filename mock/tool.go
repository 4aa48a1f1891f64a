package mock

import (
	"context"
	"encoding/json"

	"github.com/jcodehq/jcode"
)

// Interface compliance check.
var _ jcode.ToolExecutor = (*ToolExecutor)(nil)

// ToolExecutor is a test double for jcode.ToolExecutor.
// Set ExecuteFn before calling Execute.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) (*jcode.ToolResult, error)
}

// Execute delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*jcode.ToolResult, error) {
	return e.ExecuteFn(ctx, name, args)
}
