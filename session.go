package jcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// SoftInterruptItem is a queued user message awaiting delivery at the next
// injection point (§4.5). Urgent items additionally trigger Injection Point
// C, skipping remaining tool_use blocks in the in-flight batch.
type SoftInterruptItem struct {
	Content    string
	Urgent     bool
	EnqueuedAt time.Time
}

// CompactionTokenThreshold is the cumulative estimated-token count at or
// above which Session.NeedsCompaction reports true, per §4.4's "cumulative token
// estimate crosses a threshold".
const CompactionTokenThreshold = 100_000

// Session is the C4 persistent conversation state: message log, cursor,
// token accounting, and model binding. The Session Manager (C6) is the
// sole owner of live Sessions; the Agent Turn Loop (C5) borrows one for the
// duration of a turn via BeginTurn and the release func it returns.
type Session struct {
	ID           string
	FriendlyName string
	WorkingDir   string
	SystemPrompt string
	ProviderName string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	mu            sync.RWMutex
	messages      []Message
	usage         Usage
	softInterrupt []SoftInterruptItem
	revision      int

	// turnSlot enforces the one-active-turn invariant (§5, §9) with a
	// weight-1 semaphore rather than a sync.Mutex: it must be safe to hold
	// across suspension points (provider reads, tool I/O), which a
	// goroutine-owned mutex models fine in Go but a semaphore makes the
	// try-acquire-or-reject semantics (busy vs. block) explicit.
	turnSlot *semaphore.Weighted
}

// NewSession creates a Session ready for use. id is expected to come from
// the Session Manager's id generator.
func NewSession(id, workingDir string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		WorkingDir: workingDir,
		CreatedAt:  now,
		UpdatedAt:  now,
		turnSlot:   semaphore.NewWeighted(1),
	}
}

// ensureSlot lazily initializes turnSlot for Sessions constructed directly
// (e.g. via persistence round-trip) rather than through NewSession.
func (s *Session) ensureSlot() {
	if s.turnSlot == nil {
		s.turnSlot = semaphore.NewWeighted(1)
	}
}

// Messages returns a snapshot copy of the message log. Callers must not
// mutate the returned slice's contents; it shares no backing array with
// the Session's internal state beyond the slice header copy.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetMessages replaces the log wholesale, used when restoring a Session
// from persistence. Bypasses per-message validation; callers are expected
// to hand back messages previously produced by Append.
func (s *Session) SetMessages(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
}

// Revision returns the current mutation counter, incremented by every
// Append call. Used by clients to detect log changes cheaply.
func (s *Session) Revision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// GetUsage returns the cumulative token counters across the session's turns.
func (s *Session) GetUsage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// SetUsage overwrites the cumulative counters, used when restoring from
// persistence.
func (s *Session) SetUsage(u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = u
}

// AddUsage accumulates u into the session's running totals.
func (s *Session) AddUsage(u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = s.usage.Add(u)
}

// NeedsCompaction reports whether the cumulative estimated token count has
// crossed CompactionTokenThreshold.
func (s *Session) NeedsCompaction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.usage.InputTokens + s.usage.OutputTokens + s.usage.CacheReadTokens + s.usage.CacheWriteTokens
	return total >= CompactionTokenThreshold
}

// Append validates msg against its role's allowed block kinds, appends it
// to the log, bumps the revision, and marks UpdatedAt. Atomic with respect
// to other Append/Compact/Split calls on the same Session.
func (s *Session) Append(msg Message) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.revision++
	s.UpdatedAt = time.Now()
	return nil
}

// BeginTurn attempts to acquire the session's one-active-turn slot without
// blocking. It returns an error immediately if a turn is already in
// progress, which the wire layer surfaces as a typed SessionBusy error
// rather than queuing the request (soft_interrupt requests are queued
// instead; see EnqueueSoftInterrupt).
func (s *Session) BeginTurn() (release func(), err error) {
	s.mu.Lock()
	s.ensureSlot()
	slot := s.turnSlot
	s.mu.Unlock()

	if !slot.TryAcquire(1) {
		return nil, fmt.Errorf("session %s: %w", s.ID, ErrSessionBusy)
	}
	return func() { slot.Release(1) }, nil
}

// WaitForTurn blocks until the turn slot is free or ctx is done. Intended
// for ambient-mode callers and tests that want to wait rather than fail
// fast; interactive message handling always uses BeginTurn.
func (s *Session) WaitForTurn(ctx context.Context) (release func(), err error) {
	s.mu.Lock()
	s.ensureSlot()
	slot := s.turnSlot
	s.mu.Unlock()

	if err := slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { slot.Release(1) }, nil
}

// EnqueueSoftInterrupt appends item to the per-session soft-interrupt
// queue. Safe to call while a turn is in progress; drained only at an
// injection point.
func (s *Session) EnqueueSoftInterrupt(item SoftInterruptItem) {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softInterrupt = append(s.softInterrupt, item)
}

// DrainSoftInterrupts removes and returns all queued items in FIFO order.
func (s *Session) DrainSoftInterrupts() []SoftInterruptItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.softInterrupt
	s.softInterrupt = nil
	return out
}

// CancelSoftInterrupts drains the queue without returning it, per the
// cancel_soft_interrupts request.
func (s *Session) CancelSoftInterrupts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softInterrupt = nil
}

// HasUrgentSoftInterrupt reports whether the queue currently holds at
// least one urgent item, without draining it. Used by the turn loop's
// Injection Point C predicate.
func (s *Session) HasUrgentSoftInterrupt() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.softInterrupt {
		if it.Urgent {
			return true
		}
	}
	return false
}

// HistoryEntry is one flattened row of Session.SnapshotForHistoryEvent:
// role, rendered text, and a summary of any tool activity, suitable for
// the wire layer's `history` event.
type HistoryEntry struct {
	Role        Role
	Text        string
	ToolName    string
	ToolCallID  string
	IsToolError bool
}

// SnapshotForHistoryEvent returns a flattened view of the message log
// suitable for C7 to emit as a `history` event.
func (s *Session) SnapshotForHistoryEvent() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, 0, len(s.messages))
	for _, m := range s.messages {
		entry := HistoryEntry{Role: m.Role()}
		switch mm := m.(type) {
		case UserMessage:
			entry.Text = textOf(mm.Content)
		case AssistantMessage:
			entry.Text = textOf(mm.Content)
			for _, b := range mm.Content {
				if tc, ok := b.(ToolCallBlock); ok {
					entry.ToolName = tc.Name
					entry.ToolCallID = tc.ID
				}
			}
		case ToolResultMessage:
			entry.Text = textOf(mm.Content)
			entry.ToolName = mm.ToolName
			entry.ToolCallID = mm.ToolCallID
			entry.IsToolError = mm.IsError
		}
		out = append(out, entry)
	}
	return out
}

func textOf(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += tb.Text
		}
	}
	return out
}

// safeCompactionBoundary returns the largest prefix length i such that
// messages[:i] contains no assistant tool_use block without its paired
// tool_result already present within the same prefix — i.e. cutting there
// preserves T1 on both sides of the cut.
func safeCompactionBoundary(messages []Message) int {
	pending := map[string]bool{}
	lastSafe := 0
	for i, m := range messages {
		switch mm := m.(type) {
		case AssistantMessage:
			for _, b := range mm.Content {
				if tc, ok := b.(ToolCallBlock); ok {
					pending[tc.ID] = true
				}
			}
		case ToolResultMessage:
			delete(pending, mm.ToolCallID)
		}
		if len(pending) == 0 {
			lastSafe = i + 1
		}
	}
	return lastSafe
}

// lastAssistantBoundary returns the index of the most recent AssistantMessage
// in messages, or len(messages) if none is found. Unlike
// safeCompactionBoundary, which returns the largest safe prefix (the whole
// log, at a clean end-of-turn point), this always lands on the start of the
// final turn so a suffix cut there is never empty when an assistant message
// exists.
func lastAssistantBoundary(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if _, ok := messages[i].(AssistantMessage); ok {
			return i
		}
	}
	return len(messages)
}

// Summarizer produces a human-readable digest of a run of messages being
// compacted away. Session.Compact falls back to a naive summary (message
// count) when summarize is nil.
type Summarizer func(ctx context.Context, messages []Message) (string, error)

// Compact replaces the largest T1-safe prefix of the log with a synthetic
// user/assistant summary pair, per §4.4. It is a no-op if fewer than two
// messages are eligible for compaction.
func (s *Session) Compact(ctx context.Context, summarize Summarizer) (summaryText string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cut := safeCompactionBoundary(s.messages)
	if cut < 2 {
		return "", nil
	}
	prefix := s.messages[:cut]

	if summarize != nil {
		summaryText, err = summarize(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("compact: summarize: %w", err)
		}
	} else {
		summaryText = fmt.Sprintf("[compacted %d earlier messages]", len(prefix))
	}

	replacement := []Message{
		UserMessage{
			Content:   []ContentBlock{TextBlock{Text: "[conversation compacted]"}},
			Timestamp: time.Now(),
		},
		AssistantMessage{
			Content:    []ContentBlock{TextBlock{Text: summaryText}},
			StopReason: StopEndTurn,
			Timestamp:  time.Now(),
		},
	}

	s.messages = append(replacement, s.messages[cut:]...)
	s.revision++
	s.UpdatedAt = time.Now()
	return summaryText, nil
}

// Split forks a new Session, identified by newID, whose log is a suffix
// copy of the current log starting at the most recent assistant boundary
// (§4.4). The new Session shares no backing array with the original and is
// not persisted by this call; the caller (Session Manager) is responsible
// for registering and persisting it.
func (s *Session) Split(newID string) *Session {
	s.mu.RLock()
	cut := lastAssistantBoundary(s.messages)
	suffix := make([]Message, len(s.messages)-cut)
	copy(suffix, s.messages[cut:])
	workingDir := s.WorkingDir
	systemPrompt := s.SystemPrompt
	providerName := s.ProviderName
	model := s.Model
	s.mu.RUnlock()

	child := NewSession(newID, workingDir)
	child.SystemPrompt = systemPrompt
	child.ProviderName = providerName
	child.Model = model
	child.messages = suffix
	return child
}
