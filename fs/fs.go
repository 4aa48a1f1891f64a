// Package fs provides filesystem tools: read, write, edit, grep, and glob.
package fs

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
