package jcode

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Loop is the C5 agent turn loop: it drives a Provider stream, interleaves
// tool execution through a ToolExecutor, and honors the soft-interrupt
// injection discipline of §4.5 against a borrowed Session.
type Loop struct {
	provider Provider
	executor ToolExecutor
}

// NewLoop creates a new Loop with the given provider and tool executor.
func NewLoop(provider Provider, executor ToolExecutor) *Loop {
	return &Loop{provider: provider, executor: executor}
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent      func(Event)
	model        string
	systemBlocks []TextBlock
	retry        RetryPolicy
}

// WithEventHandler sets a callback that receives each turn-loop event
// during the run. If nil or not set, events are silently discarded.
func WithEventHandler(h func(Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

// WithModel sets the model ID for provider requests during this run.
// Empty string means the provider uses its default model.
func WithModel(model string) RunOption {
	return func(c *runConfig) {
		c.model = model
	}
}

// WithSystemBlocks appends additional system blocks (e.g. a provider
// identity block) ahead of the session's own system prompt.
func WithSystemBlocks(blocks ...TextBlock) RunOption {
	return func(c *runConfig) {
		c.systemBlocks = append(c.systemBlocks, blocks...)
	}
}

// WithRunRetryPolicy overrides the retry bound applied to provider errors
// mid-turn. Zero value means DefaultRetryPolicy.
func WithRunRetryPolicy(p RetryPolicy) RunOption {
	return func(c *runConfig) {
		c.retry = p
	}
}

// skippedToolResultText is the synthetic content for tool_result blocks
// synthesized at Injection Point C or on hard cancel, per §4.5.
const skippedToolResultText = "[Skipped: user interrupted]"

// Run drives turns against session until the assistant stops requesting
// tools, the context is cancelled (hard cancel), or a fatal error occurs.
// It requires the session's turn slot to already be held by the caller
// (see Session.BeginTurn); Run does not acquire it itself, so that the
// caller controls the Idle/non-Idle transition independent of Run's
// internal per-iteration loop.
func (l *Loop) Run(ctx context.Context, session *Session, tools []Tool, opts ...RunOption) error {
	cfg := runConfig{retry: DefaultRetryPolicy}
	for _, opt := range opts {
		opt(&cfg)
	}
	for {
		cont, err := l.turn(ctx, session, tools, &cfg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// turn executes one iteration of the per-iteration algorithm in §4.5: one
// provider call, its tool_use batch (if any), and the soft-interrupt drains
// at Injection Points B/C/D. It returns true if another iteration should
// follow (Point B/C/D appended a user message), false on normal completion.
// Point A — injecting a user message between the assistant message and its
// tool_result blocks — never occurs; every return path that continues the
// loop does so only after all tool_result blocks for the current batch are
// already in the log.
func (l *Loop) turn(ctx context.Context, session *Session, tools []Tool, cfg *runConfig) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	req := Request{
		Model:        cfg.model,
		SystemPrompt: session.SystemPrompt,
		SystemBlocks: cfg.systemBlocks,
		Messages:     session.Messages(),
		Tools:        tools,
	}

	msg, err := l.streamTurn(ctx, req, cfg)
	if err != nil {
		return false, err
	}

	if err := session.Append(msg); err != nil {
		return false, fmt.Errorf("append assistant message: %w", err)
	}
	session.AddUsage(msg.Usage)

	var toolCalls []ToolCallBlock
	for _, block := range msg.Content {
		if tc, ok := block.(ToolCallBlock); ok {
			toolCalls = append(toolCalls, tc)
		}
	}

	if len(toolCalls) == 0 {
		return l.injectionPointB(session, cfg)
	}

	for i, tc := range toolCalls {
		if i > 0 && session.HasUrgentSoftInterrupt() {
			l.injectionPointC(ctx, session, toolCalls[i:], cfg)
			return true, nil
		}

		if cfg.onEvent != nil {
			cfg.onEvent(EventToolExec{ID: tc.ID, Name: tc.Name})
		}

		result, execErr := l.executor.Execute(ctx, tc.Name, tc.Arguments)
		if execErr != nil {
			result = &ToolResult{
				Content: []ContentBlock{TextBlock{Text: execErr.Error()}},
				IsError: true,
			}
		}

		trm := ToolResultMessage{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    result.Content,
			IsError:    result.IsError,
			Timestamp:  time.Now(),
		}
		if err := session.Append(trm); err != nil {
			return false, fmt.Errorf("append tool result: %w", err)
		}

		if cfg.onEvent != nil {
			if text := collectBlockText(result.Content); text != "" {
				cfg.onEvent(EventToolResult{ID: tc.ID, ToolName: tc.Name, Content: text, IsError: result.IsError})
			}
			cfg.onEvent(EventToolDone{ID: tc.ID, Name: tc.Name})
		}

		if ctx.Err() != nil {
			return l.hardCancel(session, toolCalls[i+1:], cfg)
		}
	}

	return l.injectionPointD(session, cfg)
}

// injectionPointB drains queued soft-interrupts after an assistant message
// with no tool_use blocks. If the queue was empty, the turn is complete.
func (l *Loop) injectionPointB(session *Session, cfg *runConfig) (bool, error) {
	items := session.DrainSoftInterrupts()
	if len(items) == 0 {
		if cfg.onEvent != nil {
			cfg.onEvent(EventTurnDone{})
		}
		return false, nil
	}
	text, err := appendSoftInterrupts(session, items)
	if err != nil {
		return false, err
	}
	if cfg.onEvent != nil {
		cfg.onEvent(EventSoftInterruptInjected{Point: SoftInterruptPointB, Content: text})
	}
	return true, nil
}

// injectionPointC abandons the remaining tool_use blocks in the current
// batch (including the one about to start) by synthesizing error
// tool_results for each, preserving T1, then drains and appends the
// interrupt queue as a user message.
func (l *Loop) injectionPointC(ctx context.Context, session *Session, remaining []ToolCallBlock, cfg *runConfig) {
	skipRemainingToolCalls(session, remaining)
	items := session.DrainSoftInterrupts()
	text, _ := appendSoftInterrupts(session, items)
	if cfg.onEvent != nil {
		cfg.onEvent(EventSoftInterruptInjected{Point: SoftInterruptPointC, Content: text, ToolsSkipped: len(remaining)})
	}
}

// injectionPointD drains non-urgent soft-interrupts after a tool batch
// finishes executing in full.
func (l *Loop) injectionPointD(session *Session, cfg *runConfig) (bool, error) {
	items := session.DrainSoftInterrupts()
	if len(items) == 0 {
		return true, nil
	}
	text, err := appendSoftInterrupts(session, items)
	if err != nil {
		return false, err
	}
	if cfg.onEvent != nil {
		cfg.onEvent(EventSoftInterruptInjected{Point: SoftInterruptPointD, Content: text})
	}
	return true, nil
}

// hardCancel handles a context cancellation observed between tool
// invocations within a batch: it synthesizes error tool_results for every
// not-yet-executed tool_use block, appends a cancellation marker, and
// reports the turn as complete (not to be continued).
func (l *Loop) hardCancel(session *Session, remaining []ToolCallBlock, cfg *runConfig) (bool, error) {
	skipRemainingToolCalls(session, remaining)
	_ = session.Append(UserMessage{
		Content:   []ContentBlock{TextBlock{Text: "[Turn cancelled by user]"}},
		Timestamp: time.Now(),
	})
	if cfg.onEvent != nil {
		cfg.onEvent(EventInterrupted{})
		cfg.onEvent(EventTurnDone{})
	}
	return false, nil
}

// skipRemainingToolCalls appends a synthetic error tool_result for each
// call in remaining, satisfying T1 for tool_use blocks that will never be
// invoked.
func skipRemainingToolCalls(session *Session, remaining []ToolCallBlock) {
	for _, tc := range remaining {
		_ = session.Append(ToolResultMessage{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    []ContentBlock{TextBlock{Text: skippedToolResultText}},
			IsError:    true,
			Timestamp:  time.Now(),
		})
	}
}

// appendSoftInterrupts joins drained items into a single synthetic user
// message, appends it to the session log, and returns the joined text
// so callers can report it on EventSoftInterruptInjected.
func appendSoftInterrupts(session *Session, items []SoftInterruptItem) (string, error) {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(it.Content)
	}
	text := sb.String()
	return text, session.Append(UserMessage{
		Content:   []ContentBlock{TextBlock{Text: text}},
		Timestamp: time.Now(),
	})
}

// streamTurn opens a provider stream, drains it while forwarding events,
// and returns the assembled assistant message. Transient errors are
// retried up to cfg.retry's bound before the stream has emitted any
// events; once events have been forwarded to the caller, a failure is
// returned as-is rather than silently retried (retrying would otherwise
// replay already-emitted deltas downstream). On retry exhaustion or a
// non-retryable failure, the partial draft (if any) is returned so the
// caller can still append it and preserve T1 for any tool_use blocks the
// partial draft contains.
func (l *Loop) streamTurn(ctx context.Context, req Request, cfg *runConfig) (AssistantMessage, error) {
	provider := WithRetry(l.provider, cfg.retry)
	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return AssistantMessage{}, err
	}
	defer stream.Close()

	var streamErr error
	for {
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if cfg.onEvent != nil {
			cfg.onEvent(evt)
		}
	}

	msg, msgErr := stream.Message()
	if msgErr != nil {
		if streamErr != nil {
			return AssistantMessage{}, streamErr
		}
		return AssistantMessage{}, msgErr
	}
	if streamErr != nil && len(msg.Content) == 0 {
		return AssistantMessage{}, streamErr
	}
	return msg, nil
}

// collectBlockText joins the TextBlocks in blocks with newlines, dropping
// any non-text content (e.g. ImageBlock) silently.
func collectBlockText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}
