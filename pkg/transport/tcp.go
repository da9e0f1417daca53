// Package transport provides the TCP plumbing the protocol runs over:
// a context-aware dialer, a listener helper for the accessory side and
// an in-memory connection pair for tests.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/pion/logging"
)

// DefaultDialTimeout bounds connection establishment when neither the
// configuration nor the context supplies an earlier deadline.
const DefaultDialTimeout = 10 * time.Second

// DialerConfig configures a Dialer.
type DialerConfig struct {
	// Timeout bounds connection establishment.
	// Zero means DefaultDialTimeout.
	Timeout time.Duration

	// KeepAlive is the keep-alive interval for established
	// connections. Zero leaves the platform default.
	KeepAlive time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Dialer opens TCP connections to accessories.
type Dialer struct {
	timeout   time.Duration
	keepAlive time.Duration
	log       logging.LeveledLogger
}

// NewDialer creates a dialer with the given configuration.
func NewDialer(config DialerConfig) *Dialer {
	d := &Dialer{
		timeout:   config.Timeout,
		keepAlive: config.KeepAlive,
	}
	if d.timeout == 0 {
		d.timeout = DefaultDialTimeout
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("transport")
	}
	return d
}

// Dial opens a TCP connection to address ("host:port"). The context
// governs cancellation and can impose a deadline earlier than the
// configured timeout.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	nd := net.Dialer{
		Timeout:   d.timeout,
		KeepAlive: d.keepAlive,
	}

	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	if d.log != nil {
		d.log.Debugf("connected to %s", conn.RemoteAddr())
	}
	return conn, nil
}

// Dial opens a TCP connection to address with the default
// configuration.
func Dial(ctx context.Context, address string) (net.Conn, error) {
	return NewDialer(DialerConfig{}).Dial(ctx, address)
}

// ListenConfig configures Listen.
type ListenConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new listener will be created on Address.
	Listener net.Listener

	// Address is the address to listen on (e.g., ":5001").
	// Ignored if Listener is provided; empty means an ephemeral port.
	Address string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Listen creates a TCP listener for the accessory side.
func Listen(config ListenConfig) (net.Listener, error) {
	if config.Listener != nil {
		return config.Listener, nil
	}

	addr := config.Address
	if addr == "" {
		addr = ":0" // Use ephemeral port
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	if config.LoggerFactory != nil {
		config.LoggerFactory.NewLogger("transport").Infof("listening on %s", listener.Addr())
	}
	return listener, nil
}
