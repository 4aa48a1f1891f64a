package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/jcodeerr"
	"github.com/jcodehq/jcode/wire"
)

// dispatch handles one decoded Request from c, replying (and, for
// message/subscribe, broadcasting) through c's outbox. Every reply
// path satisfies P1 by correlating on req's own id; a handler that
// can fail always emits an error{id,...} event rather than silently
// dropping the request.
func (s *Server) dispatch(ctx context.Context, c *clientConn, req wire.Request) {
	switch r := req.(type) {
	case wire.SubscribeRequest:
		s.handleSubscribe(c, r)
	case wire.MessageRequest:
		s.handleMessage(ctx, c, r)
	case wire.CancelRequest:
		s.handleCancel(c, r)
	case wire.SoftInterruptRequest:
		s.handleSoftInterrupt(c, r)
	case wire.CancelSoftInterruptsRequest:
		s.handleCancelSoftInterrupts(c, r)
	case wire.ResumeSessionRequest:
		s.handleResumeSession(c, r)
	case wire.SetModelRequest:
		s.handleSetModel(c, r)
	case wire.CycleModelRequest:
		s.handleCycleModel(c, r)
	case wire.GetHistoryRequest:
		s.handleGetHistory(c, r)
	case wire.StateRequest:
		s.handleState(c, r)
	case wire.PingRequest:
		c.enqueue(wire.PongEvent{ID: r.ID})
	case wire.CompactRequest:
		s.handleCompact(ctx, c, r)
	case wire.SplitRequest:
		s.handleSplit(c, r)
	case wire.BackgroundToolRequest:
		s.handleBackgroundTool(ctx, c, r)
	case wire.ReloadRequest:
		s.handleReload(c, r)
	case wire.UnknownRequest:
		// Forward-compatible: an unrecognized request type gets a typed
		// error reply but never drops the connection (§7).
		c.enqueue(wire.ErrorEvent{ID: r.ID, Message: fmt.Sprintf("unknown request type %q", r.Type), Kind: string(jcodeerr.ProtocolVersion)})
	default:
		s.logger.Warn("dispatch: unhandled request type", "type", fmt.Sprintf("%T", req))
	}
}

func (s *Server) session(c *clientConn) (*jcode.Session, error) {
	if c.sessionID == "" {
		return nil, jcodeerr.NotFound("no session subscribed on this connection")
	}
	return s.mgr.Get(c.sessionID)
}

func (s *Server) handleSubscribe(c *clientConn, r wire.SubscribeRequest) {
	sess, err := s.mgr.GetOrCreate(r.WorkingDir, "")
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	c.clientType = r.ClientType
	s.subscribe(c, sess.ID)
	s.bus.Join(sess.ID, sess.WorkingDir)
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.SessionEvent{SessionID: sess.ID})
	c.enqueue(historyEventFor(sess))
}

func (s *Server) handleResumeSession(c *clientConn, r wire.ResumeSessionRequest) {
	sess, err := s.mgr.GetOrCreate("", r.SessionID)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	s.subscribe(c, sess.ID)
	s.bus.Join(sess.ID, sess.WorkingDir)
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.SessionEvent{SessionID: sess.ID})
	c.enqueue(historyEventFor(sess))
}

func historyEventFor(sess *jcode.Session) wire.HistoryEvent {
	entries := sess.SnapshotForHistoryEvent()
	out := make([]wire.HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = wire.HistoryEntry{
			Role:        string(e.Role),
			Text:        e.Text,
			ToolName:    e.ToolName,
			ToolCallID:  e.ToolCallID,
			IsToolError: e.IsToolError,
		}
	}
	return wire.HistoryEvent{Entries: out}
}

// handleMessage begins a turn: it tries to acquire the session's
// one-active-turn slot, appends the user message, and runs the turn
// loop in a goroutine that broadcasts translated events to every
// subscriber of the session, finishing with done{id} (P2: emitted only
// once every tool_result for the turn is already appended).
func (s *Server) handleMessage(ctx context.Context, c *clientConn, r wire.MessageRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}

	release, err := sess.BeginTurn()
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}

	blocks := []jcode.ContentBlock{jcode.TextBlock{Text: r.Content}}
	for _, img := range r.Images {
		data, decodeErr := base64.StdEncoding.DecodeString(img)
		if decodeErr != nil {
			continue
		}
		blocks = append(blocks, jcode.ImageBlock{Data: data, MimeType: "image/png"})
	}
	if err := sess.Append(jcode.UserMessage{Content: blocks, Timestamp: time.Now()}); err != nil {
		release()
		c.enqueue(errorEventFor(r.ID, err))
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s.setTurnCancel(sess.ID, cancel)

	sessionID := sess.ID
	executor := &touchExecutor{inner: s.tools, bus: s.bus, sessionID: sessionID, deliver: s.deliver}
	loop := jcode.NewLoop(s.provider, executor)
	go func() {
		defer release()
		defer cancel()
		defer s.clearTurnCancel(sessionID)

		onEvent := func(evt jcode.Event) {
			if we, ok := translateEvent(r.ID, evt); ok {
				s.broadcast(sessionID, we)
			}
		}

		err := loop.Run(turnCtx, sess, s.tools.List(), jcode.WithEventHandler(onEvent), jcode.WithModel(sess.Model))
		if saveErr := s.mgr.Save(sessionID); saveErr != nil {
			s.logger.Error("failed to save session after turn", "session_id", sessionID, "error", saveErr)
		}
		if err != nil {
			s.broadcast(sessionID, errorEventFor(r.ID, err))
		}
		s.broadcast(sessionID, wire.DoneEvent{ID: r.ID})
	}()
}

func (s *Server) handleCancel(c *clientConn, r wire.CancelRequest) {
	if c.sessionID == "" {
		c.enqueue(wire.ErrorEvent{ID: r.ID, Message: "no session subscribed", Kind: string(jcodeerr.SessionNotFound)})
		return
	}
	s.cancelTurn(c.sessionID)
	c.enqueue(wire.AckEvent{ID: r.ID})
}

func (s *Server) handleSoftInterrupt(c *clientConn, r wire.SoftInterruptRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	sess.EnqueueSoftInterrupt(jcode.SoftInterruptItem{Content: r.Content, Urgent: r.Urgent})
	c.enqueue(wire.AckEvent{ID: r.ID})
}

func (s *Server) handleCancelSoftInterrupts(c *clientConn, r wire.CancelSoftInterruptsRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	sess.CancelSoftInterrupts()
	c.enqueue(wire.AckEvent{ID: r.ID})
}

func (s *Server) handleSetModel(c *clientConn, r wire.SetModelRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	if !modelKnown(s.provider.ListModels(), r.Model) {
		c.enqueue(wire.ModelChangedEvent{ID: r.ID, Model: sess.Model, ProviderName: s.provider.Name(), Error: fmt.Sprintf("unknown model %q", r.Model)})
		return
	}
	sess.Model = r.Model
	c.enqueue(wire.ModelChangedEvent{ID: r.ID, Model: sess.Model, ProviderName: s.provider.Name()})
}

// handleCycleModel steps sess.Model forward or backward through the
// provider's known model list, wrapping at either end.
func (s *Server) handleCycleModel(c *clientConn, r wire.CycleModelRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	models := s.provider.ListModels()
	if len(models) == 0 {
		c.enqueue(wire.ModelChangedEvent{ID: r.ID, Model: sess.Model, ProviderName: s.provider.Name(), Error: "provider exposes no models"})
		return
	}

	dir := r.Direction
	if dir == 0 {
		dir = 1
	}
	idx := indexOf(models, sess.Model)
	if idx < 0 {
		idx = 0
	} else {
		idx = ((idx+dir)%len(models) + len(models)) % len(models)
	}
	sess.Model = models[idx]
	c.enqueue(wire.ModelChangedEvent{ID: r.ID, Model: sess.Model, ProviderName: s.provider.Name()})
}

func indexOf(models []string, model string) int {
	for i, m := range models {
		if m == model {
			return i
		}
	}
	return -1
}

func modelKnown(models []string, model string) bool {
	return indexOf(models, model) >= 0
}

func (s *Server) handleGetHistory(c *clientConn, r wire.GetHistoryRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(historyEventFor(sess))
}

// handleState answers a state{id} introspection request. The wire
// protocol names the request but not a dedicated response event, so
// this reports the session's identity and running token totals through
// the existing session{...}/tokens{...} events, correlated by an
// ack{id} (recorded as an Open Question resolution).
func (s *Server) handleState(c *clientConn, r wire.StateRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.SessionEvent{SessionID: sess.ID})
	usage := sess.GetUsage()
	c.enqueue(wire.TokensEvent{
		Input:         usage.InputTokens,
		Output:        usage.OutputTokens,
		CacheRead:     usage.CacheReadTokens,
		CacheCreation: usage.CacheWriteTokens,
	})
}

func (s *Server) handleCompact(ctx context.Context, c *clientConn, r wire.CompactRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	summary, err := sess.Compact(ctx, nil)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	if saveErr := s.mgr.Save(sess.ID); saveErr != nil {
		s.logger.Error("failed to save session after compact", "session_id", sess.ID, "error", saveErr)
	}
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.CompactResultEvent{Summary: summary})
}

func (s *Server) handleSplit(c *clientConn, r wire.SplitRequest) {
	sess, err := s.session(c)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	newID := s.mgr.GenerateID()
	child := sess.Split(newID)
	child.FriendlyName = newID
	s.mgr.Register(child)
	if err := s.mgr.Save(newID); err != nil {
		s.logger.Error("failed to persist split session", "session_id", newID, "error", err)
	}
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.SplitResponseEvent{NewSessionID: newID})
}

// handleBackgroundTool invokes a tool directly, outside the turn loop
// and its T1 pairing discipline, for ambient/background use (§4.6). It
// still records a swarm touch, since background tools operate on the
// same filesystem a live turn might be using.
func (s *Server) handleBackgroundTool(ctx context.Context, c *clientConn, r wire.BackgroundToolRequest) {
	sessionID := c.sessionID
	executor := &touchExecutor{inner: s.tools, bus: s.bus, sessionID: sessionID, deliver: s.deliver}
	result, err := executor.Execute(ctx, r.Name, r.Args)
	if err != nil {
		c.enqueue(errorEventFor(r.ID, err))
		return
	}
	c.enqueue(wire.AckEvent{ID: r.ID})
	c.enqueue(wire.ToolDoneEvent{ID: r.ID, Name: r.Name, Output: collectResultText(result), Error: errorTextIf(result)})
}

func collectResultText(result *jcode.ToolResult) string {
	var out string
	for _, b := range result.Content {
		if tb, ok := b.(jcode.TextBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += tb.Text
		}
	}
	return out
}

func errorTextIf(result *jcode.ToolResult) string {
	if result.IsError {
		return collectResultText(result)
	}
	return ""
}

// handleReload announces a hot-reload to every connected client, flushes
// every session to disk, then closes the listener so ListenAndServe
// returns ErrReloadRequested. The actual process replacement (§4.7) is
// performed by the caller of ListenAndServe (cmd/jcode serve), which
// re-execs the binary on that sentinel; clients observe the closed
// connection and reconnect with backoff per the protocol.
func (s *Server) handleReload(c *clientConn, r wire.ReloadRequest) {
	s.broadcastAll(wire.ReloadingEvent{})
	c.enqueue(wire.AckEvent{ID: r.ID})
	go s.triggerReload()
}
