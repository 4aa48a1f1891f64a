// Package swarm implements the Notification & Coordination Bus: the
// cross-session signals sessions sharing a working root can see, each
// other's file touches, a shared key-value context, and directed or
// broadcast messages. Conflict detection here is read-only — the bus
// records tuples and reports on query, it never enforces a lock.
package swarm

import (
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// TouchOp classifies a recorded file operation.
type TouchOp string

const (
	TouchRead  TouchOp = "read"
	TouchWrite TouchOp = "write"
)

// Touch is one (path, session, op, timestamp) tuple.
type Touch struct {
	Path      string
	SessionID string
	Op        TouchOp
	Timestamp time.Time
}

// Notification is a bus-originated event, translated to the wire
// protocol's notification{...} event by the transport layer.
type Notification struct {
	From      string
	Kind      string // "touch", "message", "context", "member_joined", "member_left"
	Path      string
	Content   string
	Timestamp time.Time
}

type member struct {
	sessionID  string
	workingDir string
}

// Bus is the C8 coordination bus: one instance is shared by every live
// session in the server process.
type Bus struct {
	mu       sync.RWMutex
	members  map[string]member
	touches  []Touch
	context  map[string]string
	maxTouch int
}

// NewBus creates an empty Bus. maxTouches bounds the touch log (0 uses
// a sensible default) so a long-running server doesn't grow the log
// unbounded.
func NewBus(maxTouches int) *Bus {
	if maxTouches <= 0 {
		maxTouches = 4096
	}
	return &Bus{
		members:  make(map[string]member),
		context:  make(map[string]string),
		maxTouch: maxTouches,
	}
}

// Join registers sessionID as a member with the given working
// directory, returning a member_joined Notification addressed to every
// session that already shares its root.
func (b *Bus) Join(sessionID, workingDir string) Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[sessionID] = member{sessionID: sessionID, workingDir: workingDir}
	return Notification{From: sessionID, Kind: "member_joined", Path: workingDir, Timestamp: time.Now()}
}

// Leave removes sessionID from the bus's membership.
func (b *Bus) Leave(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, sessionID)
}

// SharesRoot reports whether a and b's working directories glob-match
// one another, treating each directory as a pattern rooted at itself
// plus everything beneath it (§4.8: "sessions that share a working
// root").
func SharesRoot(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if ok, _ := doublestar.Match(a+"/**", b); ok {
		return true
	}
	if ok, _ := doublestar.Match(b+"/**", a); ok {
		return true
	}
	return false
}

// Peers returns the session ids (excluding sessionID itself) that
// share sessionID's working root.
func (b *Bus) Peers(sessionID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	self, ok := b.members[sessionID]
	if !ok {
		return nil
	}
	var out []string
	for id, m := range b.members {
		if id == sessionID {
			continue
		}
		if SharesRoot(self.workingDir, m.workingDir) {
			out = append(out, id)
		}
	}
	return out
}

// RecordTouch appends a touch tuple and returns the Notification to
// deliver to sessionID's peers. The caller is responsible for actually
// broadcasting it; the bus itself has no transport dependency.
func (b *Bus) RecordTouch(sessionID, path string, op TouchOp) Notification {
	b.mu.Lock()
	t := Touch{Path: path, SessionID: sessionID, Op: op, Timestamp: time.Now()}
	b.touches = append(b.touches, t)
	if len(b.touches) > b.maxTouch {
		b.touches = b.touches[len(b.touches)-b.maxTouch:]
	}
	b.mu.Unlock()

	return Notification{From: sessionID, Kind: "touch", Path: path, Content: string(op), Timestamp: t.Timestamp}
}

// TouchesForPath returns every recorded touch of path, in recording
// order, for conflict-detection queries.
func (b *Bus) TouchesForPath(path string) []Touch {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Touch
	for _, t := range b.touches {
		if t.Path == path {
			out = append(out, t)
		}
	}
	return out
}

// SetContext stores a shared key-value pair visible to every session.
func (b *Bus) SetContext(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.context[key] = value
}

// GetContext returns the shared value for key, if set.
func (b *Bus) GetContext(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.context[key]
	return v, ok
}

// Send builds a directed message Notification from one session to
// another. Delivery (checking "to" is actually subscribed) is the
// transport layer's responsibility.
func (b *Bus) Send(from, to, content string) Notification {
	return Notification{From: from, Kind: "message", Path: to, Content: content, Timestamp: time.Now()}
}

// Broadcast builds one Notification per peer of "from", for every
// session sharing from's working root.
func (b *Bus) Broadcast(from, content string) []Notification {
	peers := b.Peers(from)
	out := make([]Notification, len(peers))
	now := time.Now()
	for i, p := range peers {
		out[i] = Notification{From: from, Kind: "message", Path: p, Content: content, Timestamp: now}
	}
	return out
}
