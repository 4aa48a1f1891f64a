// Package manager implements the Session Manager: the registry of live
// sessions keyed by id, their creation/resume/destruction, and the sole
// writer discipline over sessions/<id>/{log,meta}.json.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jcodehq/jcode"
	pipejson "github.com/jcodehq/jcode/json"
	"github.com/jcodehq/jcode/jcodeerr"
)

// Manager holds every live Session by id and is the only component that
// writes sessions/<id>/log.json and meta.json; callers that want a
// Session's state persisted go through Save rather than writing files
// themselves.
type Manager struct {
	mu       sync.RWMutex
	root     string
	sessions map[string]*jcode.Session
	logger   *slog.Logger
	nameSeed int
}

// New creates a Manager rooted at root (expected to be ~/.jcode or an
// override). logger defaults to slog.Default() if nil.
func New(root string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:     root,
		sessions: make(map[string]*jcode.Session),
		logger:   logger.With("component", "session_manager"),
		nameSeed: int(time.Now().UnixNano() % int64(nameSpace)),
	}
}

// DefaultRoot returns ~/.jcode, or "" if the home directory cannot be
// resolved.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jcode")
}

func (m *Manager) sessionsDir() string         { return filepath.Join(m.root, "sessions") }
func (m *Manager) sessionDir(id string) string { return filepath.Join(m.sessionsDir(), id) }
func (m *Manager) logPath(id string) string    { return filepath.Join(m.sessionDir(id), "log.json") }
func (m *Manager) metaPath(id string) string   { return filepath.Join(m.sessionDir(id), "meta.json") }

// Scan reads every entry under sessions/ at startup, loading each as a
// live Session. A directory whose log.json or meta.json fails to parse
// is quarantined (renamed with a .corrupt-<unix ts> suffix) rather than
// aborting the scan, so one damaged session never blocks the rest from
// loading (§4.4 crash recovery).
func (m *Manager) Scan() error {
	entries, err := os.ReadDir(m.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return jcodeerr.Persistence(err, "scan session root %s", m.sessionsDir())
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		if err := m.loadInto(id); err != nil {
			m.quarantine(id, err)
		}
	}
	return nil
}

func (m *Manager) loadInto(id string) error {
	_, messages, err := pipejson.LoadLog(m.logPath(id))
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}

	sess := jcode.NewSession(id, "")
	sess.SetMessages(messages)
	if err := pipejson.LoadMeta(m.metaPath(id), sess); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load meta: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return nil
}

func (m *Manager) quarantine(id string, cause error) {
	m.logger.Warn("quarantining malformed session directory", "session_id", id, "error", cause)
	dest := m.sessionDir(id) + fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	if err := os.Rename(m.sessionDir(id), dest); err != nil {
		m.logger.Error("failed to quarantine session directory", "session_id", id, "error", err)
	}
}

// taken reports whether id is already in use, either by a live Session
// or by an existing (possibly not-yet-loaded) persistence directory.
func (m *Manager) taken(id string) bool {
	if _, ok := m.sessions[id]; ok {
		return true
	}
	_, err := os.Stat(m.sessionDir(id))
	return err == nil
}

// GetOrCreate returns the live Session for resumeID if one exists,
// loads it from persistence if it exists on disk but isn't live yet, or
// else creates a brand-new Session in workingDir with a freshly
// generated id. resumeID == "" always creates.
func (m *Manager) GetOrCreate(workingDir, resumeID string) (*jcode.Session, error) {
	if resumeID != "" {
		m.mu.RLock()
		s, ok := m.sessions[resumeID]
		m.mu.RUnlock()
		if ok {
			return s, nil
		}

		if err := m.loadInto(resumeID); err != nil {
			return nil, jcodeerr.NotFound("session %q: %v", resumeID, err)
		}
		m.mu.RLock()
		s = m.sessions[resumeID]
		m.mu.RUnlock()
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := generateName(m.nameSeed, m.taken)
	m.nameSeed++

	sess := jcode.NewSession(id, workingDir)
	sess.FriendlyName = id
	m.sessions[id] = sess
	return sess, nil
}

// GenerateID returns a fresh, not-yet-taken session id from the same
// deterministic memorable-name sequence GetOrCreate draws from.
func (m *Manager) GenerateID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := generateName(m.nameSeed, m.taken)
	m.nameSeed++
	return id
}

// List returns every live Session, ordered by creation time.
func (m *Manager) List() []*jcode.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*jcode.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns the live Session for id, or a jcodeerr SessionNotFound error.
func (m *Manager) Get(id string) (*jcode.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, jcodeerr.NotFound("session %q", id)
	}
	return s, nil
}

// Destroy removes id from the live registry and deletes its persisted
// files. Idempotent on the filesystem side: a missing directory is not
// an error.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		if _, err := os.Stat(m.sessionDir(id)); err != nil {
			return jcodeerr.NotFound("session %q", id)
		}
	}

	if err := os.RemoveAll(m.sessionDir(id)); err != nil {
		return jcodeerr.Persistence(err, "destroy session %q", id)
	}
	return nil
}

// Rename sets id's friendly name and persists the change.
func (m *Manager) Rename(id, newFriendlyName string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.FriendlyName = newFriendlyName
	return m.Save(id)
}

// SaveAll persists every live session, for the hot-reload path: the
// server flushes all queues and state to disk before handing off to the
// replacement process. Returns the first error encountered but still
// attempts every session.
func (m *Manager) SaveAll() error {
	var firstErr error
	for _, s := range m.List() {
		if err := m.Save(s.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Register adds an already-constructed Session (e.g. one produced by
// Session.Split) to the live registry without touching persistence.
func (m *Manager) Register(s *jcode.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Save persists id's current log and metadata. Manager is the sole
// writer of session files within the process; callers never call
// pipejson.SaveLog/SaveMeta directly.
func (m *Manager) Save(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := pipejson.SaveLog(m.logPath(id), s); err != nil {
		return jcodeerr.Persistence(err, "save log for session %q", id)
	}
	if err := pipejson.SaveMeta(m.metaPath(id), s); err != nil {
		return jcodeerr.Persistence(err, "save meta for session %q", id)
	}
	return nil
}
