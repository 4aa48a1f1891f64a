package server

import (
	"errors"
	"time"
)

// ErrReloadRequested is returned by ListenAndServe when it stops because
// a client sent reload{}, as opposed to context cancellation or a fatal
// accept error. Callers (cmd/jcode serve) use this to distinguish a
// hot-reload shutdown, which should re-exec the binary, from a normal
// shutdown, which should not.
var ErrReloadRequested = errors.New("server: reload requested")

// triggerReload flushes every session to disk, then closes the listener
// so the Accept loop unwinds with ErrReloadRequested. Safe to call more
// than once; only the first call has effect.
func (s *Server) triggerReload() {
	s.reloadOnce.Do(func() {
		if err := s.mgr.SaveAll(); err != nil {
			s.logger.Error("reload: save sessions failed", "error", err)
		}

		s.mu.Lock()
		s.reloadRequested = true
		ln := s.listener
		conns := make([]*clientConn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		// Give the reloading ack a moment to reach the requesting client's
		// outbox before every connection, including that one, is torn down.
		time.Sleep(50 * time.Millisecond)
		for _, c := range conns {
			if c.cancel != nil {
				c.cancel()
			}
		}
		if ln != nil {
			ln.Close()
		}
	})
}
