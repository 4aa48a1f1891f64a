// Package exec provides the bash command execution tool.
package exec

import "github.com/jcodehq/jcode"

func domainError(msg string) *jcode.ToolResult {
	return &jcode.ToolResult{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: msg}},
		IsError: true,
	}
}
