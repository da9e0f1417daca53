package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// PipeAddr implements net.Addr for in-memory pipe endpoints.
type PipeAddr struct {
	ID int // Endpoint ID (0 or 1)
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// Pipe returns a connected in-memory connection pair. Writes are
// synchronous: a Write blocks until the peer has read the bytes, which
// keeps tests deterministic without real network I/O.
func Pipe() (net.Conn, net.Conn) {
	c0, c1 := net.Pipe()
	return &pipeConn{conn: c0, localAddr: PipeAddr{ID: 0}, remoteAddr: PipeAddr{ID: 1}},
		&pipeConn{conn: c1, localAddr: PipeAddr{ID: 1}, remoteAddr: PipeAddr{ID: 0}}
}

// pipeConn wraps a pipe endpoint with pipe-specific addresses.
type pipeConn struct {
	conn       net.Conn
	localAddr  PipeAddr
	remoteAddr PipeAddr
}

// Read reads data from the connection.
func (c *pipeConn) Read(b []byte) (n int, err error) { return c.conn.Read(b) }

// Write writes data to the connection.
func (c *pipeConn) Write(b []byte) (n int, err error) { return c.conn.Write(b) }

// Close closes the connection.
func (c *pipeConn) Close() error { return c.conn.Close() }

// LocalAddr returns the local network address.
func (c *pipeConn) LocalAddr() net.Addr { return c.localAddr }

// RemoteAddr returns the remote network address.
func (c *pipeConn) RemoteAddr() net.Addr { return c.remoteAddr }

// SetDeadline sets the read and write deadlines.
func (c *pipeConn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *pipeConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// Verify pipeConn implements net.Conn.
var _ net.Conn = (*pipeConn)(nil)

// PipeListener implements net.Listener for a single pre-established
// connection. Accept returns the connection exactly once; subsequent
// calls block until Close. Suitable for point-to-point tests where
// the accessory side expects a listener.
type PipeListener struct {
	conn    net.Conn
	closeCh chan struct{}

	mu       sync.Mutex
	accepted bool
	closed   bool
}

// NewPipeListener creates a listener serving the given connection.
func NewPipeListener(conn net.Conn) *PipeListener {
	return &PipeListener{
		conn:    conn,
		closeCh: make(chan struct{}),
	}
}

// Accept waits for and returns the next connection to the listener.
// Since a pipe has exactly two endpoints, Accept returns exactly one
// connection. Subsequent calls block until Close.
func (l *PipeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: net.ErrClosed}
	}
	if l.accepted {
		l.mu.Unlock()
		// Block until closed - the pipe carries one connection
		<-l.closeCh
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: net.ErrClosed}
	}
	l.accepted = true
	l.mu.Unlock()

	return l.conn, nil
}

// Close closes the listener. The served connection stays open.
func (l *PipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)
	return nil
}

// Addr returns the listener's network address.
func (l *PipeListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Verify PipeListener implements net.Listener.
var _ net.Listener = (*PipeListener)(nil)
