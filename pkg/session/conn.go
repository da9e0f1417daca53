package session

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cliairplay/hap/pkg/crypto"
)

// MaxFrameSize is the largest plaintext chunk carried by one frame.
const MaxFrameSize = 1024

// Conn is an encrypted net.Conn over an established transport
// connection. Writes are framed, encrypted and counted per direction;
// reads decrypt frame by frame and serve the plaintext to callers.
//
// Once any operation fails the connection is poisoned: every later
// operation returns an error matching ErrBroken, with the original
// cause attached.
type Conn struct {
	conn net.Conn

	sendKey []byte
	recvKey []byte
	sendCtr *Counter
	recvCtr *Counter

	readBuf []byte // decrypted plaintext not yet served

	readMu  sync.Mutex
	writeMu sync.Mutex

	stateMu sync.Mutex
	broken  error
}

var _ net.Conn = (*Conn)(nil)

// Upgrade wraps an established connection in the session layer. The
// role picks which directional key encrypts outgoing frames.
func Upgrade(conn net.Conn, role Role, keys *Keys) *Conn {
	send, receive := keys.ForRole(role)
	return &Conn{
		conn:    conn,
		sendKey: append([]byte(nil), send...),
		recvKey: append([]byte(nil), receive...),
		sendCtr: NewCounter(),
		recvCtr: NewCounter(),
	}
}

// Read serves decrypted plaintext, reading and decrypting further
// frames from the underlying connection as needed.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.failure(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(c.readBuf) == 0 {
		if err := c.readFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// readFrame reads and decrypts one frame into the plaintext buffer.
func (c *Conn) readFrame() error {
	var prefix [2]byte
	n, err := io.ReadFull(c.conn, prefix[:])
	if err != nil {
		if n == 0 {
			// Nothing consumed. A clean close or a timeout between
			// frames leaves the stream intact.
			return err
		}
		return c.poison(err)
	}

	length := int(binary.LittleEndian.Uint16(prefix[:]))
	if length > MaxFrameSize {
		return c.poison(ErrFrameTooLarge)
	}

	ciphertext := make([]byte, length+crypto.ChaChaTagSize)
	if _, err := io.ReadFull(c.conn, ciphertext); err != nil {
		return c.poison(err)
	}

	counter, err := c.recvCtr.Next()
	if err != nil {
		return c.poison(err)
	}
	plaintext, err := crypto.ChaCha20Poly1305Decrypt(c.recvKey, counterNonce(counter), ciphertext, prefix[:])
	if err != nil {
		return c.poison(err)
	}

	c.readBuf = plaintext
	return nil
}

// Write encrypts p in frames of at most MaxFrameSize plaintext bytes
// and writes them to the underlying connection.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.failure(); err != nil {
		return 0, err
	}

	written := 0
	for written < len(p) {
		chunk := p[written:]
		if len(chunk) > MaxFrameSize {
			chunk = chunk[:MaxFrameSize]
		}

		var prefix [2]byte
		binary.LittleEndian.PutUint16(prefix[:], uint16(len(chunk)))

		counter, err := c.sendCtr.Next()
		if err != nil {
			return written, c.poison(err)
		}
		ciphertext, err := crypto.ChaCha20Poly1305Encrypt(c.sendKey, counterNonce(counter), chunk, prefix[:])
		if err != nil {
			return written, c.poison(err)
		}

		frame := make([]byte, 0, len(prefix)+len(ciphertext))
		frame = append(frame, prefix[:]...)
		frame = append(frame, ciphertext...)
		if _, err := c.conn.Write(frame); err != nil {
			return written, c.poison(err)
		}

		written += len(chunk)
	}

	return written, nil
}

// Close clears the session keys and closes the underlying connection.
func (c *Conn) Close() error {
	c.stateMu.Lock()
	for i := range c.sendKey {
		c.sendKey[i] = 0
	}
	for i := range c.recvKey {
		c.recvKey[i] = 0
	}
	c.stateMu.Unlock()

	return c.conn.Close()
}

// LocalAddr returns the local address of the underlying connection.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline sets the read and write deadlines of the underlying
// connection.
func (c *Conn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline of the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline of the underlying
// connection.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// poison marks the connection permanently broken. The first cause
// wins; it stays attached to every subsequent error.
func (c *Conn) poison(cause error) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: %w", ErrBroken, cause)
	}
	return c.broken
}

// failure returns the sticky error, if any.
func (c *Conn) failure() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.broken
}

// counterNonce builds a frame nonce from a counter value. The counter
// occupies the low eight bytes little-endian.
func counterNonce(counter uint64) []byte {
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], counter)
	return crypto.PadNonce(value[:])
}
