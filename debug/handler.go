package debug

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/jcodehq/jcode/server"
	"github.com/jcodehq/jcode/wire"
)

// Handler serves the debug channel's command endpoint and its optional
// websocket event tail, backed by a live Server. It never participates
// in the main wire protocol's T1/P1/P2 invariants directly; commands
// that touch a session go through the same Session/Manager methods the
// dispatch switch uses, so those invariants still hold.
type Handler struct {
	srv         *server.Server
	allowMutate bool
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// New builds a debug Handler. allowMutate gates every command that
// writes to a session or to shared swarm state (see MutationsAllowed).
func New(srv *server.Server, allowMutate bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		srv:         srv,
		allowMutate: allowMutate,
		logger:      logger.With("component", "debug"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // local debug socket only
		},
	}
}

// commandRequest is the debug channel's request shape: a single
// namespaced command plus a JSON argument blob, distinct from the wire
// package's line-delimited Request union.
type commandRequest struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args"`
}

type commandResponse struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServeHTTP routes POST /command to the namespaced dispatcher and
// GET /events/tail to the websocket event stream. Any other path 404s.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/command":
		h.serveCommand(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/events/tail":
		h.serveEventsTail(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: fmt.Sprintf("decode command: %v", err)})
		return
	}

	result, err := h.dispatch(req.Command, req.Args)
	if err != nil {
		writeJSON(w, http.StatusOK, commandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{OK: true, Result: result})
}

func writeJSON(w http.ResponseWriter, status int, body commandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// dispatch routes command to its namespace handler. Unknown namespaces
// or commands return an error rather than panicking, matching the main
// protocol's ProtocolVersion treatment of unrecognized input.
func (h *Handler) dispatch(command string, args json.RawMessage) (any, error) {
	namespace, name, ok := strings.Cut(command, ":")
	if !ok {
		return nil, fmt.Errorf("malformed command %q: expected namespace:name", command)
	}
	switch namespace {
	case "server":
		return h.dispatchServer(name, args)
	case "client":
		return h.dispatchClient(name, args)
	case "swarm":
		return h.dispatchSwarm(name, args)
	case "tester":
		return h.dispatchTester(name, args)
	default:
		return nil, fmt.Errorf("unknown command namespace %q", namespace)
	}
}

func (h *Handler) requireMutate() error {
	if !h.allowMutate {
		return fmt.Errorf("mutating debug commands are disabled; set %s or drop the marker file to opt in", MutateEnvVar)
	}
	return nil
}

// serveEventsTail upgrades to a websocket and streams every event
// broadcast to session_id from this point forward, JSON-encoded one
// frame per event via the same wire.EncodeEvent framing the main
// protocol uses. It does not backfill history; events:tail only sees
// events emitted after the tap is registered.
func (h *Handler) serveEventsTail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("events:tail upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.srv.TapEvents(sessionID, 64)
	defer cancel()

	for evt := range ch {
		line, err := wire.EncodeEvent(evt)
		if err != nil {
			h.logger.Error("events:tail encode failed", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return
		}
	}
}
