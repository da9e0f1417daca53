package hap

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/pairing/pairsetup"
	"github.com/cliairplay/hap/pkg/pairing/pairverify"
	"github.com/cliairplay/hap/pkg/session"
	"github.com/cliairplay/hap/pkg/transport"
)

// HAP endpoint paths.
const (
	pathPairSetup       = "/pair-setup"
	pathPairVerify      = "/pair-verify"
	pathAccessories     = "/accessories"
	pathCharacteristics = "/characteristics"
)

// DefaultRequestTimeout bounds one request/response round trip when
// the caller's context carries no earlier deadline.
const DefaultRequestTimeout = 10 * time.Second

// DialFunc opens a connection to an accessory address ("host:port").
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// Config configures a Controller. The zero value is usable: records
// go to an in-memory store and connections over TCP.
type Config struct {
	// Storage persists pairing records. Nil selects a fresh
	// MemoryStorage.
	Storage Storage

	// ControllerID is the pairing identifier to register during
	// pair-setup. Empty generates a fresh UUID per pairing.
	ControllerID string

	// DialTimeout bounds TCP connection establishment.
	// Zero means transport.DefaultDialTimeout.
	DialTimeout time.Duration

	// RequestTimeout bounds one request/response round trip when the
	// context has no earlier deadline. Zero means
	// DefaultRequestTimeout; negative disables the bound.
	RequestTimeout time.Duration

	// Rand is the randomness source for key generation.
	// Nil means crypto/rand.Reader.
	Rand io.Reader

	// Dial overrides how connections are opened. Nil dials TCP.
	// Used for virtual network testing.
	Dial DialFunc

	// LoggerFactory is the factory for creating loggers.
	// If nil, the pion default factory is used.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Storage == nil {
		c.Storage = NewMemoryStorage()
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.Dial == nil {
		dialer := transport.NewDialer(transport.DialerConfig{
			Timeout:       c.DialTimeout,
			LoggerFactory: c.LoggerFactory,
		})
		c.Dial = dialer.Dial
	}
}

// Controller pairs with and connects to HAP accessories. A controller
// is safe for concurrent use; each Connect yields an independent
// session owning its own connection.
type Controller struct {
	config Config
	log    logging.LeveledLogger
}

// NewController creates a controller with the given configuration.
func NewController(config Config) *Controller {
	config.applyDefaults()
	return &Controller{
		config: config,
		log:    config.LoggerFactory.NewLogger("controller"),
	}
}

// Storage returns the controller's pairing store.
func (c *Controller) Storage() Storage {
	return c.config.Storage
}

// Pair establishes a durable pairing with the accessory at address
// using the setup code, stores the resulting record under address and
// returns it. Fails with ErrAlreadyPaired when a record already
// exists; Unpair first or use Repair.
func (c *Controller) Pair(ctx context.Context, address, pin string) (*PairingRecord, error) {
	if _, ok := c.config.Storage.LookupPairing(address); ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPaired, address)
	}

	controllerID := c.config.ControllerID
	if controllerID == "" {
		controllerID = uuid.NewString()
	}

	ps, err := pairsetup.NewController(pin, controllerID)
	if err != nil {
		return nil, err
	}
	ps.SetRandom(c.config.Rand)

	conn, err := c.config.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	exch := newExchange(conn, address, c.config.RequestTimeout)
	c.log.Debugf("pair-setup with %s as %s", address, controllerID)

	m1, err := ps.Start()
	if err != nil {
		return nil, err
	}
	m2, err := c.postPairing(ctx, exch, pathPairSetup, m1)
	if err != nil {
		return nil, err
	}
	m3, err := ps.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	m4, err := c.postPairing(ctx, exch, pathPairSetup, m3)
	if err != nil {
		return nil, err
	}
	m5, err := ps.HandleM4(m4)
	if err != nil {
		return nil, err
	}
	m6, err := c.postPairing(ctx, exch, pathPairSetup, m5)
	if err != nil {
		return nil, err
	}
	result, err := ps.HandleM6(m6)
	if err != nil {
		return nil, err
	}

	host, port, err := splitAddress(address)
	if err != nil {
		return nil, err
	}
	record := &PairingRecord{
		ControllerLTSK:   result.ControllerLTSK,
		ControllerLTPK:   result.ControllerLTPK,
		ControllerID:     result.ControllerID,
		AccessoryLTPK:    result.AccessoryLTPK,
		AccessoryID:      result.AccessoryID,
		AccessoryAddress: host,
		AccessoryPort:    port,
	}
	if err := c.config.Storage.SavePairing(address, record); err != nil {
		return nil, err
	}

	c.log.Infof("paired with %s (%s)", address, record.AccessoryID)
	return record.Clone(), nil
}

// Repair deletes any existing record for address and pairs again. The
// old identity is gone even if the new attempt fails.
func (c *Controller) Repair(ctx context.Context, address, pin string) (*PairingRecord, error) {
	if err := c.config.Storage.DeletePairing(address); err != nil {
		return nil, err
	}
	return c.Pair(ctx, address, pin)
}

// Unpair deletes the stored pairing record for address. The accessory
// keeps its side of the pairing until reset or re-paired.
func (c *Controller) Unpair(address string) error {
	return c.config.Storage.DeletePairing(address)
}

// Connect authenticates against the stored pairing for address via
// pair-verify and returns an encrypted session. Fails with
// ErrNotPaired when no record exists.
func (c *Controller) Connect(ctx context.Context, address string) (*Session, error) {
	record, ok := c.config.Storage.LookupPairing(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPaired, address)
	}
	return c.connect(ctx, address, record)
}

// connect runs pair-verify over a fresh connection and upgrades it to
// the encrypted session layer.
func (c *Controller) connect(ctx context.Context, address string, record *PairingRecord) (*Session, error) {
	pv, err := pairverify.NewController(record.ControllerID, record.ControllerLTSK, record.AccessoryID, record.AccessoryLTPK)
	if err != nil {
		return nil, err
	}
	pv.SetRandom(c.config.Rand)

	conn, err := c.config.Dial(ctx, address)
	if err != nil {
		return nil, err
	}

	exch := newExchange(conn, address, c.config.RequestTimeout)
	c.log.Debugf("pair-verify with %s", address)

	sess, err := c.verify(ctx, pv, conn, exch, record)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sess, nil
}

func (c *Controller) verify(ctx context.Context, pv *pairverify.Session, conn net.Conn, exch *exchange, record *PairingRecord) (*Session, error) {
	m1, err := pv.Start()
	if err != nil {
		return nil, err
	}
	m2, err := c.postPairing(ctx, exch, pathPairVerify, m1)
	if err != nil {
		return nil, err
	}
	m3, err := pv.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	m4, err := c.postPairing(ctx, exch, pathPairVerify, m3)
	if err != nil {
		return nil, err
	}
	if err := pv.HandleM4(m4); err != nil {
		return nil, err
	}

	keys, err := session.DeriveKeys(pv.SharedSecret())
	if err != nil {
		return nil, err
	}
	secure := session.Upgrade(conn, session.RoleController, keys)
	exch.upgrade(secure)

	c.log.Debugf("session established with %s", record.AccessoryID)
	return &Session{
		conn:   secure,
		exch:   exch,
		record: record.Clone(),
		log:    c.config.LoggerFactory.NewLogger("session"),
	}, nil
}

// postPairing sends one TLV-bodied handshake message under the
// per-round-trip deadline.
func (c *Controller) postPairing(ctx context.Context, exch *exchange, path string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if err := exch.deadline(deadline, ok); err != nil {
		return nil, err
	}
	return exch.post(path, pairing.ContentTypeTLV8, body)
}

// splitAddress separates a "host:port" accessory address.
func splitAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("hap: bad accessory address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("hap: bad accessory port %q: %w", portStr, err)
	}
	return host, port, nil
}
