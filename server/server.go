// Package server implements the IPC listener, per-connection
// reader/writer tasks, and subscriber fan-out of the Server/Transport
// component: a local byte-stream endpoint that speaks the wire
// package's line-delimited JSON protocol.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/manager"
	"github.com/jcodehq/jcode/swarm"
	"github.com/jcodehq/jcode/wire"
)

// Config configures a Server.
type Config struct {
	SocketPath      string
	RegistryDir     string
	IdleShutdown    time.Duration
	ClientQueueSize int
	Model           string
	AllowMultiple   bool // disables the singleton lock, for tests
}

// Server is the C7 Server/Transport component: it accepts connections
// on Config.SocketPath, fans out each session's events to every
// subscriber, and owns the idle-shutdown and single-server-registry
// lifecycle.
type Server struct {
	cfg      Config
	mgr      *manager.Manager
	provider jcode.Provider
	tools    *jcode.Registry
	logger   *slog.Logger
	bus      *swarm.Bus

	mu          sync.Mutex
	conns       map[string]*clientConn
	subscribers map[string]map[*clientConn]struct{}
	turnCancel  map[string]context.CancelFunc
	idleTimer   *time.Timer
	connSeq     int
	startedAt   time.Time

	// taps back the debug channel's events:tail command: a best-effort,
	// drop-if-full fan-out distinct from the main subscriber fan-out in
	// broadcast, since a stalled debug observer must never affect a real
	// client's delivery guarantees.
	taps map[string][]chan wire.ServerEvent

	reloadOnce      sync.Once
	reloadRequested bool

	lock     *LockHandle
	listener net.Listener
}

// New creates a Server. logger defaults to slog.Default() if nil.
func New(cfg Config, mgr *manager.Manager, provider jcode.Provider, tools *jcode.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		mgr:         mgr,
		provider:    provider,
		tools:       tools,
		logger:      logger.With("component", "server"),
		bus:         swarm.NewBus(0),
		conns:       make(map[string]*clientConn),
		subscribers: make(map[string]map[*clientConn]struct{}),
		turnCancel:  make(map[string]context.CancelFunc),
		taps:        make(map[string][]chan wire.ServerEvent),
	}
}

// ListenAndServe acquires the single-server lock, binds the IPC socket,
// and accepts connections until ctx is done or a fatal accept error
// occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lock, err := AcquireLock(LockOptions{
		RegistryPath:  s.cfg.RegistryDir,
		Endpoint:      s.cfg.SocketPath,
		Name:          "jcode",
		AllowMultiple: s.cfg.AllowMultiple,
	})
	if err != nil {
		return fmt.Errorf("acquire server lock: %w", err)
	}
	s.lock = lock
	defer func() {
		if lock != nil {
			lock.Release()
		}
	}()

	os.Remove(s.cfg.SocketPath) // clear a stale socket file from an unclean prior exit
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.listener = ln
	s.startedAt = time.Now()
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.armIdleTimer()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			reloading := s.reloadRequested
			s.mu.Unlock()
			if reloading {
				return ErrReloadRequested
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.mu.Lock()
		s.connSeq++
		id := fmt.Sprintf("c%d", s.connSeq)
		s.mu.Unlock()

		cc := newClientConn(id, s, conn)
		s.addConn(cc)
		go cc.run(ctx)
	}
}

func (s *Server) addConn(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
	s.stopIdleTimerLocked()
}

func (s *Server) removeConn(c *clientConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	if c.sessionID != "" {
		if subs, ok := s.subscribers[c.sessionID]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(s.subscribers, c.sessionID)
			}
		}
	}
	empty := len(s.conns) == 0
	s.mu.Unlock()

	if empty {
		s.armIdleTimer()
	}
}

// armIdleTimer (re)starts the idle-shutdown countdown. Called with no
// connections held; a subsequent addConn cancels it.
func (s *Server) armIdleTimer() {
	idle := s.cfg.IdleShutdown
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopIdleTimerLocked()
	s.idleTimer = time.AfterFunc(idle, func() {
		s.logger.Info("idle timeout reached, shutting down")
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// subscribe registers c as a subscriber of sessionID, replacing any
// previous subscription c held.
func (s *Server) subscribe(c *clientConn, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.sessionID != "" {
		if subs, ok := s.subscribers[c.sessionID]; ok {
			delete(subs, c)
		}
	}
	c.sessionID = sessionID
	if s.subscribers[sessionID] == nil {
		s.subscribers[sessionID] = make(map[*clientConn]struct{})
	}
	s.subscribers[sessionID][c] = struct{}{}
}

// broadcast delivers evt to every subscriber of sessionID, preserving
// per-subscriber ordering (§5: "each receives the same prefix in the
// same order").
func (s *Server) broadcast(sessionID string, evt wire.ServerEvent) {
	s.mu.Lock()
	subs := make([]*clientConn, 0, len(s.subscribers[sessionID]))
	for c := range s.subscribers[sessionID] {
		subs = append(subs, c)
	}
	taps := s.taps[sessionID]
	s.mu.Unlock()

	for _, c := range subs {
		c.enqueue(evt)
	}
	for _, ch := range taps {
		select {
		case ch <- evt:
		default:
		}
	}
}

// broadcastAll delivers evt to every connected client, used for
// server-global events like reloading.
func (s *Server) broadcastAll(evt wire.ServerEvent) {
	s.mu.Lock()
	conns := make([]*clientConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.enqueue(evt)
	}
}

// deliver translates a swarm.Notification into a wire notification{...}
// event and broadcasts it to the subscribers of its addressed
// sessions: n.Path names a single recipient for "message" kind, or is
// the touched path (delivered to every peer of n.From) for "touch".
func (s *Server) deliver(n swarm.Notification) {
	evt := wire.NotificationEvent{
		From:      n.From,
		Kind:      n.Kind,
		Path:      n.Path,
		Content:   n.Content,
		Timestamp: n.Timestamp.Unix(),
	}
	if n.Kind == "message" {
		s.broadcast(n.Path, evt)
		return
	}
	for _, peer := range s.bus.Peers(n.From) {
		s.broadcast(peer, evt)
	}
}

func (s *Server) setTurnCancel(sessionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCancel[sessionID] = cancel
}

func (s *Server) clearTurnCancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turnCancel, sessionID)
}

func (s *Server) cancelTurn(sessionID string) bool {
	s.mu.Lock()
	cancel, ok := s.turnCancel[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Bus exposes the coordination bus for the debug channel's swarm:*
// commands; it is otherwise only consumed internally via deliver.
func (s *Server) Bus() *swarm.Bus { return s.bus }

// Snapshot is the §6 "server:status" introspection payload.
type Snapshot struct {
	PID              int
	SocketPath       string
	StartedAt        time.Time
	ConnectionCount  int
	SubscribedCounts map[string]int // session id -> subscriber count
}

// Snapshot reports the server's current process-wide state for the
// debug channel's server:status command.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.subscribers))
	for sessionID, subs := range s.subscribers {
		counts[sessionID] = len(subs)
	}
	return Snapshot{
		PID:              os.Getpid(),
		SocketPath:       s.cfg.SocketPath,
		StartedAt:        s.startedAt,
		ConnectionCount:  len(s.conns),
		SubscribedCounts: counts,
	}
}

// ConnSummary is one entry of the debug channel's client:list result.
type ConnSummary struct {
	ID         string
	SessionID  string
	ClientType string
}

// Connections lists every currently accepted connection, for the debug
// channel's client:list command.
func (s *Server) Connections() []ConnSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConnSummary, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, ConnSummary{ID: c.id, SessionID: c.sessionID, ClientType: c.clientType})
	}
	return out
}

// TapEvents registers a best-effort observer of sessionID's broadcast
// events, for the debug channel's events:tail command. The returned
// channel is dropped from rather than blocking a slow reader, and
// cancel must be called to deregister it.
func (s *Server) TapEvents(sessionID string, buffer int) (ch <-chan wire.ServerEvent, cancel func()) {
	if buffer <= 0 {
		buffer = 32
	}
	c := make(chan wire.ServerEvent, buffer)
	s.mu.Lock()
	s.taps[sessionID] = append(s.taps[sessionID], c)
	s.mu.Unlock()

	return c, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		taps := s.taps[sessionID]
		for i, existing := range taps {
			if existing == c {
				s.taps[sessionID] = append(taps[:i], taps[i+1:]...)
				close(c)
				break
			}
		}
		if len(s.taps[sessionID]) == 0 {
			delete(s.taps, sessionID)
		}
	}
}

// Manager exposes the session manager for the debug channel's
// server:sessions and tester:* commands.
func (s *Server) Manager() *manager.Manager { return s.mgr }
