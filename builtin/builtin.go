// Package builtin provides the built-in tools for the pipe agent.
package builtin

import "github.com/jcodehq/jcode"

func domainError(msg string) *jcode.ToolResult {
	return &jcode.ToolResult{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: msg}},
		IsError: true,
	}
}

func textResult(text string) *jcode.ToolResult {
	return &jcode.ToolResult{
		Content: []jcode.ContentBlock{jcode.TextBlock{Text: text}},
		IsError: false,
	}
}
