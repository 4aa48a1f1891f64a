package server

import (
	"errors"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/jcodeerr"
	"github.com/jcodehq/jcode/wire"
)

// translateEvent maps a turn-loop Event onto the wire protocol's
// ServerEvent vocabulary, correlating it to the originating request id.
// Events with no direct wire counterpart (EventToolCallBegin/Delta/End,
// which the loop uses for its own bookkeeping) surface through their
// wire-facing counterparts instead (tool_start/tool_input, emitted by
// the loop itself as EventToolExec/EventToolCallDelta's wire analogue).
func translateEvent(requestID string, evt jcode.Event) (wire.ServerEvent, bool) {
	switch e := evt.(type) {
	case jcode.EventTextDelta:
		return wire.TextDeltaEvent{Text: e.Delta}, true
	case jcode.EventTextReplace:
		return wire.TextReplaceEvent{Text: e.Text}, true
	case jcode.EventToolCallBegin:
		return wire.ToolStartEvent{ID: e.ID, Name: e.Name}, true
	case jcode.EventToolCallDelta:
		return wire.ToolInputEvent{ID: e.ID, Delta: e.Delta}, true
	case jcode.EventToolExec:
		return wire.ToolExecEvent{ID: e.ID, Name: e.Name}, true
	case jcode.EventToolResult:
		errText := ""
		if e.IsError {
			errText = e.Content
		}
		return wire.ToolDoneEvent{ID: e.ID, Name: e.ToolName, Output: e.Content, Error: errText}, true
	case jcode.EventUsage:
		return wire.TokensEvent{
			Input:         e.Usage.InputTokens,
			Output:        e.Usage.OutputTokens,
			CacheRead:     e.Usage.CacheReadTokens,
			CacheCreation: e.Usage.CacheWriteTokens,
		}, true
	case jcode.EventError:
		return wire.ErrorEvent{ID: requestID, Message: e.Message, Kind: string(errorKindFor(e.Kind))}, true
	case jcode.EventSoftInterruptInjected:
		return wire.SoftInterruptInjectedEvent{Content: e.Content, Point: string(e.Point), ToolsSkipped: e.ToolsSkipped}, true
	case jcode.EventInterrupted:
		return wire.InterruptedEvent{}, true
	case jcode.EventTurnDone, jcode.EventStreamEnd, jcode.EventToolCallEnd, jcode.EventThinkingDelta:
		return nil, false
	default:
		return nil, false
	}
}

// errorKindFor maps a turn-loop ErrorKind onto the wire error taxonomy's
// Kind for the error{...} event's "kind" field.
func errorKindFor(k jcode.ErrorKind) jcodeerr.Kind {
	switch k {
	case jcode.ErrorKindTransient:
		return jcodeerr.ProviderTransient
	case jcode.ErrorKindFatal:
		return jcodeerr.ProviderFatal
	default:
		return jcodeerr.ServerFatal
	}
}

// errorEventFor builds an ErrorEvent from a *jcodeerr.Error (or a plain
// error, classified as ServerFatal; jcode.ErrSessionBusy maps to
// SessionBusy) correlated to requestID.
func errorEventFor(requestID string, err error) wire.ErrorEvent {
	var e *jcodeerr.Error
	if errors.As(err, &e) {
		return wire.ErrorEvent{ID: requestID, Message: e.Message, Kind: string(e.Kind)}
	}
	if errors.Is(err, jcode.ErrSessionBusy) {
		return wire.ErrorEvent{ID: requestID, Message: err.Error(), Kind: string(jcodeerr.SessionBusy)}
	}
	return wire.ErrorEvent{ID: requestID, Message: err.Error(), Kind: string(jcodeerr.ServerFatal)}
}
