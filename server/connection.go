package server

import (
	"context"
	"net"

	"github.com/jcodehq/jcode/wire"
)

// clientConn is one accepted connection: a reader task parsing
// Requests and dispatching them, and a writer task draining this
// connection's outbox, matching the teacher's per-connection
// reader/writer task pair (adapted here for line-delimited JSON over a
// plain socket rather than a websocket frame).
type clientConn struct {
	id     string
	server *Server
	conn   net.Conn
	dec    *wire.Decoder
	enc    *wire.Encoder
	out    *outbox

	cancel context.CancelFunc

	sessionID  string // session this connection is currently subscribed to, if any
	clientType string

	dropStreak int
}

// maxDropStreak is how many consecutive dropped (coalesced-away)
// non-essential events a connection tolerates before being treated as
// persistently stalled and disconnected, per §4.7.
const maxDropStreak = 64

func newClientConn(id string, s *Server, conn net.Conn) *clientConn {
	return &clientConn{
		id:     id,
		server: s,
		conn:   conn,
		dec:    wire.NewDecoder(conn),
		enc:    wire.NewEncoder(conn),
		out:    newOutbox(s.cfg.ClientQueueSize),
	}
}

// run drives this connection until its reader or writer loop exits,
// then deregisters it from the server.
func (c *clientConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer c.server.removeConn(c)
	defer c.conn.Close()
	defer c.out.close()

	go c.writeLoop(ctx)
	c.readLoop(ctx)
}

func (c *clientConn) readLoop(ctx context.Context) {
	for {
		req, err := c.dec.Decode()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.server.dispatch(ctx, c, req)
	}
}

func (c *clientConn) writeLoop(ctx context.Context) {
	defer c.cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.out.wake:
			for _, evt := range c.out.popAll() {
				if err := c.enc.Encode(evt); err != nil {
					return
				}
			}
		}
	}
}

// enqueue pushes evt onto this connection's outbox, disconnecting the
// connection if it has been persistently stalled (§4.7: "disconnect a
// persistently-stalled client with a typed error").
func (c *clientConn) enqueue(evt wire.ServerEvent) {
	if c.out.push(evt) {
		c.dropStreak++
		if c.dropStreak >= maxDropStreak {
			c.server.logger.Warn("disconnecting stalled client", "client_id", c.id, "dropped", c.out.droppedCount())
			c.cancel()
		}
		return
	}
	c.dropStreak = 0
}
