// Package shell provides the bash command execution tool.
package shell

import "github.com/jcodehq/jcode"

func domainError(msg string) *jcode.ToolResult {
	return &jcode.ToolResult{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: msg}},
		IsError: true,
	}
}
