package debug

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/wire"
)

type testerInjectMessageArgs struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type testerWaitForEventArgs struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"` // wire event "type" discriminator, e.g. "done"
	TimeoutMS int    `json:"timeout_ms"`
}

// dispatchTester implements tester:* commands: harness-only operations
// that reach past the wire protocol to prime or observe a session
// directly. inject_message mutates the session log and is gated behind
// the opt-in marker; wait_for_event only observes events and is not gated.
func (h *Handler) dispatchTester(name string, args json.RawMessage) (any, error) {
	switch name {
	case "inject_message":
		if err := h.requireMutate(); err != nil {
			return nil, err
		}
		var a testerInjectMessageArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		sess, err := h.srv.Manager().Get(a.SessionID)
		if err != nil {
			return nil, err
		}
		msg := jcode.UserMessage{
			Content:   []jcode.ContentBlock{jcode.TextBlock{Text: a.Content}},
			Timestamp: time.Now(),
		}
		if err := sess.Append(msg); err != nil {
			return nil, fmt.Errorf("append message: %w", err)
		}
		return nil, nil
	case "wait_for_event":
		var a testerWaitForEventArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode args: %w", err)
		}
		return h.waitForEvent(a)
	default:
		return nil, fmt.Errorf("unknown tester command %q", name)
	}
}

func (h *Handler) waitForEvent(a testerWaitForEventArgs) (any, error) {
	timeout := time.Duration(a.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ch, cancel := h.srv.TapEvents(a.SessionID, 64)
	defer cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("event tap closed before %q was observed", a.Kind)
			}
			if eventKind(evt) == a.Kind {
				return evt, nil
			}
		case <-deadline.C:
			return nil, fmt.Errorf("timed out after %s waiting for event %q", timeout, a.Kind)
		}
	}
}

// eventKind recovers a wire event's "type" discriminator by round-tripping
// it through the same framing the protocol itself uses, rather than
// duplicating wire's internal type switch here.
func eventKind(evt wire.ServerEvent) string {
	line, err := wire.EncodeEvent(evt)
	if err != nil {
		return ""
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}
