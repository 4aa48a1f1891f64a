package jcode

import (
	"context"
	"encoding/json"
)

// Tool is the schema sent to the LLM describing a tool's capabilities.
//
// ReadOnly classifies the tool for the agent turn loop's urgent-interrupt
// policy (Injection Point C, §4.5): read-only tools are never the reason an
// urgent interrupt is withheld, but the classification itself does not
// change skip behavior — Point C skips all not-yet-started tool_use blocks
// in the batch regardless of classification. ReadOnly is carried here so
// that registries, logs and future policy changes have it in one place
// rather than re-deriving it from the tool name.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	ReadOnly    bool
}

// ToolExecutor runs tools. Execute returns error for infrastructure failures.
// ToolResult.IsError indicates tool-reported domain failures sent back to the LLM.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error)
}

// ToolResult represents the outcome of a tool execution.
type ToolResult struct {
	Content []ContentBlock
	IsError bool
}
