package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
)

func TestPipeRoundTrip(t *testing.T) {
	report := test.CheckRoutines(t)
	defer report()

	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	c0, c1 := Pipe()
	defer c0.Close()
	defer c1.Close()

	go c0.Write([]byte("ping"))
	got := make([]byte, 4)
	if _, err := io.ReadFull(c1, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, []byte("ping")) {
		t.Errorf("received %q, want %q", got, "ping")
	}

	go c1.Write([]byte("pong"))
	if _, err := io.ReadFull(c0, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, []byte("pong")) {
		t.Errorf("received %q, want %q", got, "pong")
	}
}

func TestPipeAddresses(t *testing.T) {
	c0, c1 := Pipe()
	defer c0.Close()
	defer c1.Close()

	if got := c0.LocalAddr().String(); got != "pipe:0" {
		t.Errorf("LocalAddr() = %q, want %q", got, "pipe:0")
	}
	if got := c0.RemoteAddr().String(); got != "pipe:1" {
		t.Errorf("RemoteAddr() = %q, want %q", got, "pipe:1")
	}
	if got := c1.LocalAddr().String(); got != "pipe:1" {
		t.Errorf("LocalAddr() = %q, want %q", got, "pipe:1")
	}
	if got := c0.LocalAddr().Network(); got != "pipe" {
		t.Errorf("Network() = %q, want %q", got, "pipe")
	}
}

func TestPipeListener(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	c0, c1 := Pipe()
	defer c0.Close()
	defer c1.Close()

	listener := NewPipeListener(c1)

	conn, err := listener.Accept()
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if conn != c1 {
		t.Error("Accept() returned a different connection")
	}
	if listener.Addr().String() != "pipe:1" {
		t.Errorf("Addr() = %q, want %q", listener.Addr(), "pipe:1")
	}

	// The second Accept blocks until Close.
	acceptErr := make(chan error, 1)
	go func() {
		_, err := listener.Accept()
		acceptErr <- err
	}()

	select {
	case err := <-acceptErr:
		t.Fatalf("second Accept() returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := listener.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := <-acceptErr; !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept() after close error = %v, want net.ErrClosed", err)
	}

	// Accept on a closed listener fails immediately.
	if _, err := listener.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept() error = %v, want net.ErrClosed", err)
	}

	// Close is idempotent and leaves the connection open.
	if err := listener.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	go c0.Write([]byte{0x01})
	if _, err := io.ReadFull(c1, make([]byte, 1)); err != nil {
		t.Errorf("connection should remain usable after listener close: %v", err)
	}
}
