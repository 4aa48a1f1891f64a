package server

import (
	"sync"

	"github.com/jcodehq/jcode/wire"
)

// defaultQueueSize bounds a client's outgoing event queue (§4.7
// backpressure). Past this many buffered events, non-essential events
// are coalesced or dropped rather than growing the queue unbounded.
const defaultQueueSize = 256

// isEssential reports whether evt must never be dropped, per §4.7:
// "ack/done/error are never dropped".
func isEssential(evt wire.ServerEvent) bool {
	switch evt.(type) {
	case wire.AckEvent, wire.DoneEvent, wire.ErrorEvent:
		return true
	default:
		return false
	}
}

// outbox is a mutex-guarded, coalescing bounded queue for one client
// connection's outgoing events. A plain buffered channel (the teacher's
// usual shape for a connection's send queue) can't inspect or merge its
// tail, so this uses a slice-plus-wake-channel instead: push merges a
// new text_delta into the queue's tail text_replace/text_delta rather
// than growing it, and pop drains everything currently queued in one
// batch.
type outbox struct {
	mu     sync.Mutex
	queue  []wire.ServerEvent
	wake   chan struct{}
	closed bool
	maxLen int

	dropped int
}

func newOutbox(maxLen int) *outbox {
	if maxLen <= 0 {
		maxLen = defaultQueueSize
	}
	return &outbox{maxLen: maxLen, wake: make(chan struct{}, 1)}
}

func (o *outbox) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// push enqueues evt. Essential events are always enqueued, growing the
// queue past maxLen if necessary rather than being dropped. A
// non-essential event that would overflow the queue is either coalesced
// into the queue's tail or dropped; push reports whether evt failed to
// get a queue entry of its own (coalesced or dropped), so the caller can
// track a stall streak.
func (o *outbox) push(evt wire.ServerEvent) (dropped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return true
	}

	essential := isEssential(evt)
	if len(o.queue) >= o.maxLen && !essential {
		if o.coalesceTailLocked(evt) {
			o.notify()
			return true
		}
		o.dropped++
		return true
	}

	o.queue = append(o.queue, evt)
	o.notify()
	return false
}

// coalesceTailLocked merges a text_delta into the queue's last element
// if it is itself a text_delta or text_replace, producing a single
// text_replace covering both. Caller holds o.mu.
func (o *outbox) coalesceTailLocked(evt wire.ServerEvent) bool {
	delta, ok := evt.(wire.TextDeltaEvent)
	if !ok || len(o.queue) == 0 {
		return false
	}
	switch last := o.queue[len(o.queue)-1].(type) {
	case wire.TextDeltaEvent:
		o.queue[len(o.queue)-1] = wire.TextReplaceEvent{Text: last.Text + delta.Text}
		return true
	case wire.TextReplaceEvent:
		o.queue[len(o.queue)-1] = wire.TextReplaceEvent{Text: last.Text + delta.Text}
		return true
	default:
		return false
	}
}

// popAll removes and returns every currently queued event.
func (o *outbox) popAll() []wire.ServerEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	out := o.queue
	o.queue = nil
	return out
}

// droppedCount reports how many non-essential events have been dropped
// since the outbox was created, used by the stall-disconnect policy.
func (o *outbox) droppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.notify()
}
