package debug_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/debug"
	"github.com/jcodehq/jcode/manager"
	"github.com/jcodehq/jcode/mock"
	"github.com/jcodehq/jcode/server"
	"github.com/jcodehq/jcode/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a real server.Server on a temp-dir unix socket
// (AllowMultiple so the singleton registry is untouched) and returns it
// plus a connected raw conn, so debug commands can be exercised against
// genuine Manager/Bus state produced by the wire protocol.
func newTestServer(t *testing.T, provider jcode.Provider) (*server.Server, net.Conn) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "jcode.sock")

	if provider == nil {
		provider = &mock.Provider{}
	}
	mgr := manager.New(filepath.Join(dir, "home"), nil)
	srv := server.New(server.Config{
		SocketPath:    sock,
		RegistryDir:   dir,
		AllowMultiple: true,
	}, mgr, provider, jcode.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() {
		go func() {
			for i := 0; i < 100; i++ {
				if _, err := net.Dial("unix", sock); err == nil {
					close(ready)
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		_ = srv.ListenAndServe(ctx)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never started listening")
	}

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func postCommand(t *testing.T, ts *httptest.Server, command string, args any) map[string]any {
	t.Helper()
	argBytes, err := json.Marshal(args)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]json.RawMessage{
		"command": mustJSON(t, command),
		"args":    argBytes,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandler_ServerStatusReportsSnapshot(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	out := postCommand(t, ts, "server:status", map[string]any{})
	require.True(t, out["ok"].(bool))
	result := out["result"].(map[string]any)
	assert.NotZero(t, result["pid"])
	assert.Contains(t, result["socket_path"], "jcode.sock")
}

func TestHandler_ServerSessionsListsManagerSessions(t *testing.T) {
	t.Parallel()
	srv, conn := newTestServer(t, nil)
	scanner := bufio.NewScanner(conn)

	line, err := wire.EncodeRequest(wire.SubscribeRequest{ID: "s1", WorkingDir: "/work/proj"})
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)
	scanner.Scan() // ack
	scanner.Scan() // session
	scanner.Scan() // history

	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	out := postCommand(t, ts, "server:sessions", map[string]any{})
	require.True(t, out["ok"].(bool))
	sessions := out["result"].([]any)
	require.Len(t, sessions, 1)
	entry := sessions[0].(map[string]any)
	assert.Equal(t, "/work/proj", entry["working_dir"])
}

func TestHandler_UnknownNamespaceReturnsError(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	out := postCommand(t, ts, "bogus:thing", map[string]any{})
	assert.False(t, out["ok"].(bool))
	assert.Contains(t, out["error"], "unknown command namespace")
}

func TestHandler_TesterInjectMessageRequiresMutateGate(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	out := postCommand(t, ts, "tester:inject_message", map[string]any{
		"session_id": "whatever",
		"content":    "hi",
	})
	assert.False(t, out["ok"].(bool))
	assert.Contains(t, out["error"], "JCODE_DEBUG_ALLOW_MUTATE")
}

func TestHandler_TesterInjectMessageAppendsWhenAllowed(t *testing.T) {
	t.Parallel()
	srv, conn := newTestServer(t, nil)
	scanner := bufio.NewScanner(conn)

	line, err := wire.EncodeRequest(wire.SubscribeRequest{ID: "s1", WorkingDir: "/work"})
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)
	scanner.Scan() // ack
	scanner.Scan() // session
	scanner.Scan() // history

	sessions := srv.Manager().List()
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	ts := httptest.NewServer(debug.New(srv, true, nil))
	defer ts.Close()

	out := postCommand(t, ts, "tester:inject_message", map[string]any{
		"session_id": sessionID,
		"content":    "injected by harness",
	})
	require.True(t, out["ok"].(bool), "%v", out["error"])

	sess, err := srv.Manager().Get(sessionID)
	require.NoError(t, err)
	msgs := sess.Messages()
	require.NotEmpty(t, msgs)
}

func TestHandler_SwarmPeersReturnsSessionsSharingRoot(t *testing.T) {
	t.Parallel()
	srv, conn := newTestServer(t, nil)
	scanner := bufio.NewScanner(conn)

	for _, id := range []string{"a1", "a2"} {
		line, err := wire.EncodeRequest(wire.SubscribeRequest{ID: id, WorkingDir: "/work/shared"})
		require.NoError(t, err)
		_, err = conn.Write(append(line, '\n'))
		require.NoError(t, err)
		scanner.Scan()
		scanner.Scan()
		scanner.Scan()
	}

	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	sessions := srv.Manager().List()
	require.Len(t, sessions, 2, "each subscribe with no resume id creates a fresh session")

	out := postCommand(t, ts, "swarm:peers", map[string]any{"session_id": sessions[0].ID})
	require.True(t, out["ok"].(bool))
	peers := out["result"].([]any)
	require.Len(t, peers, 1)
	assert.Equal(t, sessions[1].ID, peers[0])
}

// TestHandler_EventsTailStreamsTurnEvents drives a real message turn
// (a path that calls Server.broadcast rather than addressing a
// single connection) and asserts the websocket tap observes its
// broadcast events.
func TestHandler_EventsTailStreamsTurnEvents(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		StreamFn: func(ctx context.Context, req jcode.Request) (jcode.Stream, error) {
			events := []jcode.Event{
				jcode.EventTextDelta{Delta: "hi"},
				jcode.EventStreamEnd{StopReason: jcode.StopEndTurn},
			}
			i := 0
			return &mock.Stream{
				NextFn: func() (jcode.Event, error) {
					if i >= len(events) {
						return nil, io.EOF
					}
					e := events[i]
					i++
					return e, nil
				},
				MessageFn: func() (jcode.AssistantMessage, error) {
					return jcode.AssistantMessage{
						Content:    []jcode.ContentBlock{jcode.TextBlock{Text: "hi"}},
						StopReason: jcode.StopEndTurn,
					}, nil
				},
				CloseFn: func() error { return nil },
			}, nil
		},
		NameFn:       func() string { return "mock" },
		ListModelsFn: func() []string { return []string{"mock-1"} },
	}

	srv, conn := newTestServer(t, provider)
	scanner := bufio.NewScanner(conn)

	line, err := wire.EncodeRequest(wire.SubscribeRequest{ID: "s1", WorkingDir: "/work"})
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)
	scanner.Scan() // ack
	scanner.Scan() // session
	scanner.Scan() // history

	sessions := srv.Manager().List()
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	ts := httptest.NewServer(debug.New(srv, false, nil))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events/tail?session_id=" + sessionID
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer wsConn.Close()

	msgLine, err := wire.EncodeRequest(wire.MessageRequest{ID: "m1", Content: "hello"})
	require.NoError(t, err)
	_, err = conn.Write(append(msgLine, '\n'))
	require.NoError(t, err)

	_ = wsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sawDone bool
	for i := 0; i < 10 && !sawDone; i++ {
		_, msg, err := wsConn.ReadMessage()
		require.NoError(t, err)
		evt, err := wire.DecodeEvent(msg)
		require.NoError(t, err)
		if _, ok := evt.(wire.DoneEvent); ok {
			sawDone = true
		}
	}
	assert.True(t, sawDone, "expected a done event over the events:tail websocket")
}
