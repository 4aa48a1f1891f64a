package jcode_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/stretchr/testify/assert"
)

func TestUserMessage_ImplementsMessage(t *testing.T) {
	t.Parallel()
	var msg jcode.Message = jcode.UserMessage{
		Content:   []jcode.ContentBlock{jcode.TextBlock{Text: "hello"}},
		Timestamp: time.Now(),
	}
	assert.NotNil(t, msg)
}

func TestAssistantMessage_ImplementsMessage(t *testing.T) {
	t.Parallel()
	var msg jcode.Message = jcode.AssistantMessage{
		Content:       []jcode.ContentBlock{jcode.TextBlock{Text: "hi"}},
		StopReason:    jcode.StopEndTurn,
		RawStopReason: "end_turn",
		Usage:         jcode.Usage{InputTokens: 10, OutputTokens: 5},
		Timestamp:     time.Now(),
	}
	assert.NotNil(t, msg)
}

func TestToolResultMessage_ImplementsMessage(t *testing.T) {
	t.Parallel()
	var msg jcode.Message = jcode.ToolResultMessage{
		ToolCallID: "tc_1",
		ToolName:   "read",
		Content:    []jcode.ContentBlock{jcode.TextBlock{Text: "file contents"}},
		IsError:    false,
		Timestamp:  time.Now(),
	}
	assert.NotNil(t, msg)
}

func TestMessageTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	messages := []jcode.Message{
		jcode.UserMessage{Content: []jcode.ContentBlock{jcode.TextBlock{Text: "hello"}}},
		jcode.AssistantMessage{Content: []jcode.ContentBlock{jcode.TextBlock{Text: "hi"}}},
		jcode.ToolResultMessage{ToolCallID: "tc_1", ToolName: "read"},
	}
	for _, msg := range messages {
		switch msg.(type) {
		case jcode.UserMessage:
		case jcode.AssistantMessage:
		case jcode.ToolResultMessage:
		default:
			t.Fatalf("unexpected message type: %T", msg)
		}
	}
}

func TestMessage_Role(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  jcode.Message
		want jcode.Role
	}{
		{"UserMessage", jcode.UserMessage{}, jcode.RoleUser},
		{"AssistantMessage", jcode.AssistantMessage{}, jcode.RoleAssistant},
		{"ToolResultMessage", jcode.ToolResultMessage{}, jcode.RoleToolResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.msg.Role())
		})
	}
}

func TestContentBlock_TextBlock(t *testing.T) {
	t.Parallel()
	var block jcode.ContentBlock = jcode.TextBlock{Text: "hello"}
	assert.NotNil(t, block)
}

func TestContentBlock_ThinkingBlock(t *testing.T) {
	t.Parallel()
	var block jcode.ContentBlock = jcode.ThinkingBlock{Thinking: "reasoning..."}
	assert.NotNil(t, block)
}

func TestContentBlock_ImageBlock(t *testing.T) {
	t.Parallel()
	var block jcode.ContentBlock = jcode.ImageBlock{
		Data:     []byte{0x89, 0x50, 0x4E, 0x47},
		MimeType: "image/png",
	}
	assert.NotNil(t, block)
}

func TestContentBlock_ToolCallBlock(t *testing.T) {
	t.Parallel()
	var block jcode.ContentBlock = jcode.ToolCallBlock{
		ID:        "tc_1",
		Name:      "read",
		Arguments: json.RawMessage(`{"path": "main.go"}`),
	}
	assert.NotNil(t, block)
}

func TestContentBlockTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	blocks := []jcode.ContentBlock{
		jcode.TextBlock{Text: "hello"},
		jcode.ThinkingBlock{Thinking: "reasoning"},
		jcode.ImageBlock{Data: []byte{0x89}, MimeType: "image/png"},
		jcode.ToolCallBlock{ID: "tc_1", Name: "read", Arguments: json.RawMessage(`{}`)},
	}
	for _, block := range blocks {
		switch block.(type) {
		case jcode.TextBlock:
		case jcode.ThinkingBlock:
		case jcode.ImageBlock:
		case jcode.ToolCallBlock:
		default:
			t.Fatalf("unexpected content block type: %T", block)
		}
	}
}
