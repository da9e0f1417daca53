package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

func TestDialAndListen(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	listener, err := Listen(ListenConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			t.Errorf("Accept() error = %v", err)
			return
		}
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	payload := []byte("ping")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("received %q, want %q", got, payload)
	}
}

func TestDialCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 192.0.2.1 is TEST-NET-1, never routable.
	if _, err := Dial(ctx, "192.0.2.1:80"); err == nil {
		t.Error("Dial() with canceled context should fail")
	}
}

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer(DialerConfig{})
	if d.timeout != DefaultDialTimeout {
		t.Errorf("timeout = %v, want %v", d.timeout, DefaultDialTimeout)
	}
	if d.log != nil {
		t.Error("logger should be nil without a factory")
	}

	d = NewDialer(DialerConfig{
		Timeout:       time.Second,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if d.timeout != time.Second {
		t.Errorf("timeout = %v, want %v", d.timeout, time.Second)
	}
	if d.log == nil {
		t.Error("logger not created from factory")
	}
}

func TestListenInjectedListener(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer inner.Close()

	listener, err := Listen(ListenConfig{Listener: inner})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if listener != inner {
		t.Error("Listen() did not use injected listener")
	}
}

func TestListenEphemeralPort(t *testing.T) {
	listener, err := Listen(ListenConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer listener.Close()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("Addr() type = %T, want *net.TCPAddr", listener.Addr())
	}
	if tcpAddr.Port == 0 {
		t.Error("Addr() port = 0, want ephemeral port")
	}
}
