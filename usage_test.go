package jcode_test

import (
	"testing"

	"github.com/jcodehq/jcode"
	"github.com/stretchr/testify/assert"
)

func TestRole_Values(t *testing.T) {
	t.Parallel()
	assert.Equal(t, jcode.Role("user"), jcode.RoleUser)
	assert.Equal(t, jcode.Role("assistant"), jcode.RoleAssistant)
	assert.Equal(t, jcode.Role("tool_result"), jcode.RoleToolResult)
}

func TestStopReason_Values(t *testing.T) {
	t.Parallel()
	assert.Equal(t, jcode.StopReason("end_turn"), jcode.StopEndTurn)
	assert.Equal(t, jcode.StopReason("length"), jcode.StopLength)
	assert.Equal(t, jcode.StopReason("tool_use"), jcode.StopToolUse)
	assert.Equal(t, jcode.StopReason("error"), jcode.StopError)
	assert.Equal(t, jcode.StopReason("aborted"), jcode.StopAborted)
	assert.Equal(t, jcode.StopReason("unknown"), jcode.StopUnknown)
}

func TestUsage_ZeroValue(t *testing.T) {
	t.Parallel()
	var u jcode.Usage
	assert.Equal(t, 0, u.InputTokens)
	assert.Equal(t, 0, u.OutputTokens)
}
