package server_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/manager"
	"github.com/jcodehq/jcode/mock"
	"github.com/jcodehq/jcode/server"
	"github.com/jcodehq/jcode/wire"
	"github.com/stretchr/testify/require"
)

// dialServer starts a Server on a temp-dir unix socket and returns a
// raw connection to it plus a teardown func. AllowMultiple is set so
// tests can run the server without touching the singleton registry.
func dialServer(t *testing.T, provider jcode.Provider) net.Conn {
	t.Helper()
	_, conn := dialServerWithHandle(t, provider)
	return conn
}

// dialServerWithHandle is dialServer plus the *server.Server itself, for
// tests that need to reach introspection methods like Snapshot or
// TapEvents alongside a live connection.
func dialServerWithHandle(t *testing.T, provider jcode.Provider) (*server.Server, net.Conn) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "jcode.sock")

	mgr := manager.New(filepath.Join(dir, "home"), nil)
	tools := jcode.NewRegistry()
	srv := server.New(server.Config{
		SocketPath:    sock,
		RegistryDir:   dir,
		AllowMultiple: true,
	}, mgr, provider, tools, nil)

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

func sendLine(t *testing.T, conn net.Conn, req wire.Request) {
	t.Helper()
	line, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)
}

func readEvent(t *testing.T, scanner *bufio.Scanner) wire.ServerEvent {
	t.Helper()
	require.True(t, scanner.Scan(), "expected another event line")
	evt, err := wire.DecodeEvent(scanner.Bytes())
	require.NoError(t, err)
	return evt
}

func TestServer_PingRepliesWithPongCorrelatedByID(t *testing.T) {
	t.Parallel()
	conn := dialServer(t, &mock.Provider{})
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.PingRequest{ID: "p1"})
	evt := readEvent(t, scanner)
	pong, ok := evt.(wire.PongEvent)
	require.True(t, ok, "expected pong, got %T", evt)
	require.Equal(t, "p1", pong.ID)
}

func TestServer_SubscribeEmitsSessionThenHistory(t *testing.T) {
	t.Parallel()
	conn := dialServer(t, &mock.Provider{})
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.SubscribeRequest{ID: "s1", WorkingDir: "/work"})

	ack := readEvent(t, scanner)
	require.IsType(t, wire.AckEvent{}, ack)

	sessionEvt := readEvent(t, scanner)
	sess, ok := sessionEvt.(wire.SessionEvent)
	require.True(t, ok, "expected session event, got %T", sessionEvt)
	require.NotEmpty(t, sess.SessionID)

	historyEvt := readEvent(t, scanner)
	_, ok = historyEvt.(wire.HistoryEvent)
	require.True(t, ok, "expected history event, got %T", historyEvt)
}

// TestServer_MessageEmitsDoneAfterTurnCompletes exercises P2 loosely:
// a single-turn assistant response with no tool calls must still
// produce a done{id} for the originating message request after all of
// its content has been forwarded.
func TestServer_MessageEmitsDoneAfterTurnCompletes(t *testing.T) {
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

	conn := dialServer(t, provider)
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.SubscribeRequest{ID: "sub1", WorkingDir: "/work"})
	readEvent(t, scanner) // ack
	readEvent(t, scanner) // session
	readEvent(t, scanner) // history

	sendLine(t, conn, wire.MessageRequest{ID: "m1", Content: "hello"})

	var sawTextDelta, sawDone bool
	for i := 0; i < 10; i++ {
		evt := readEvent(t, scanner)
		switch e := evt.(type) {
		case wire.TextDeltaEvent:
			sawTextDelta = true
			require.Equal(t, "hi", e.Text)
		case wire.DoneEvent:
			sawDone = true
			require.Equal(t, "m1", e.ID)
		}
		if sawDone {
			break
		}
	}
	require.True(t, sawTextDelta)
	require.True(t, sawDone)
}

func TestServer_UnknownRequestTypeRepliesErrorWithoutDisconnect(t *testing.T) {
	t.Parallel()
	conn := dialServer(t, &mock.Provider{})
	scanner := bufio.NewScanner(conn)

	raw := []byte(`{"type":"made_up_request","id":"u1"}`)
	_, err := conn.Write(append(raw, '\n'))
	require.NoError(t, err)

	evt := readEvent(t, scanner)
	errEvt, ok := evt.(wire.ErrorEvent)
	require.True(t, ok, "expected error event, got %T", evt)
	require.Equal(t, "u1", errEvt.ID)

	// Connection must still be usable afterward.
	sendLine(t, conn, wire.PingRequest{ID: "p2"})
	evt2 := readEvent(t, scanner)
	require.IsType(t, wire.PongEvent{}, evt2)
}

func TestServer_SnapshotReportsConnectionAndSubscriberCounts(t *testing.T) {
	t.Parallel()
	srv, conn := dialServerWithHandle(t, &mock.Provider{})
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.SubscribeRequest{ID: "s1", WorkingDir: "/work"})
	readEvent(t, scanner) // ack
	sessionEvt := readEvent(t, scanner).(wire.SessionEvent)
	readEvent(t, scanner) // history

	snap := srv.Snapshot()
	require.Equal(t, 1, snap.ConnectionCount)
	require.Equal(t, 1, snap.SubscribedCounts[sessionEvt.SessionID])
}

func TestServer_TapEventsObservesBroadcastEventsWithoutAffectingSubscribers(t *testing.T) {
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

	srv, conn := dialServerWithHandle(t, provider)
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.SubscribeRequest{ID: "s1", WorkingDir: "/work"})
	readEvent(t, scanner) // ack
	sessionEvt := readEvent(t, scanner).(wire.SessionEvent)
	readEvent(t, scanner) // history

	ch, cancel := srv.TapEvents(sessionEvt.SessionID, 16)
	defer cancel()

	sendLine(t, conn, wire.MessageRequest{ID: "m1", Content: "hello"})

	var sawTapDone bool
	for i := 0; i < 10 && !sawTapDone; i++ {
		select {
		case evt := <-ch:
			if _, ok := evt.(wire.DoneEvent); ok {
				sawTapDone = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("tap never observed the turn's done event")
		}
	}
	require.True(t, sawTapDone)

	// The real client's own view of the turn must be unaffected by the tap.
	var sawConnDone bool
	for i := 0; i < 10 && !sawConnDone; i++ {
		evt := readEvent(t, scanner)
		if _, ok := evt.(wire.DoneEvent); ok {
			sawConnDone = true
		}
	}
	require.True(t, sawConnDone)
}

// TestServer_ReloadAcksThenUnwindsWithSentinel exercises the hot-reload
// path end to end: the requesting client gets its ack and a reloading
// broadcast, then the connection is cancelled and ListenAndServe
// returns server.ErrReloadRequested rather than ctx.Err(), which is
// what cmd/jcode serve keys off to decide whether to re-exec.
func TestServer_ReloadAcksThenUnwindsWithSentinel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sock := filepath.Join(dir, "jcode.sock")

	mgr := manager.New(filepath.Join(dir, "home"), nil)
	srv := server.New(server.Config{
		SocketPath:    sock,
		RegistryDir:   dir,
		AllowMultiple: true,
	}, mgr, &mock.Provider{}, jcode.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serveErr := make(chan error, 1)
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
		serveErr <- srv.ListenAndServe(ctx)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never started listening")
	}

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	scanner := bufio.NewScanner(conn)

	sendLine(t, conn, wire.ReloadRequest{ID: "r1"})

	var sawReloading, sawAck bool
	for i := 0; i < 4; i++ {
		evt := readEvent(t, scanner)
		switch evt.(type) {
		case wire.ReloadingEvent:
			sawReloading = true
		case wire.AckEvent:
			sawAck = true
		}
	}
	require.True(t, sawReloading)
	require.True(t, sawAck)

	select {
	case err := <-serveErr:
		require.True(t, errors.Is(err, server.ErrReloadRequested))
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe never unwound after reload")
	}
}
