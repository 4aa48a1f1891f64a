// Package command provides the bash command execution tool.
package command

import "github.com/jcodehq/jcode"

func domainError(msg string) *jcode.ToolResult {
	return &jcode.ToolResult{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: msg}},
		IsError: true,
	}
}
