package hap

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/logging"

	"github.com/cliairplay/hap/pkg/accessory"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/pairing/pairsetup"
	"github.com/cliairplay/hap/pkg/pairing/pairverify"
	"github.com/cliairplay/hap/pkg/session"
	"github.com/cliairplay/hap/pkg/tlv8"
)

// statusConnectionAuthRequired is the HAP status for a characteristic
// request on a connection without a verified session.
const statusConnectionAuthRequired = 470

// AccessoryConfig configures an emulated accessory.
type AccessoryConfig struct {
	// PIN is the setup code pair-setup authenticates against.
	// Required.
	PIN string

	// AccessoryID is the accessory pairing identifier.
	// Empty selects a fixed test identifier.
	AccessoryID string

	// Database is the attribute database to serve. Nil selects a
	// default speaker database at volume 50, unmuted.
	Database *accessory.Database

	// Rand is the randomness source for the long-term identity and
	// handshakes. Nil means crypto/rand.Reader.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, the pion default factory is used.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *AccessoryConfig) applyDefaults() {
	if c.AccessoryID == "" {
		c.AccessoryID = "11:22:33:44:55:66"
	}
	if c.Database == nil {
		c.Database = accessory.NewSpeakerDatabase("Emulated Speaker", 50, false)
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// EmulatedAccessory is an in-process HAP accessory: it answers
// pair-setup, pair-verify and the characteristic endpoints over any
// net.Conn or net.Listener. It exists so the controller can be tested
// end to end against a real protocol peer without hardware; the
// example binaries use it the same way.
//
// Pairings live in memory for the accessory's lifetime, so one
// emulated accessory can serve a pair-setup connection followed by
// any number of pair-verify sessions.
type EmulatedAccessory struct {
	config AccessoryConfig
	ltpk   ed25519.PublicKey
	ltsk   ed25519.PrivateKey
	log    logging.LeveledLogger

	mu       sync.Mutex
	db       *accessory.Database
	pairings map[string]ed25519.PublicKey
}

// NewEmulatedAccessory creates an emulated accessory with a fresh
// long-term identity drawn from the configured randomness source.
func NewEmulatedAccessory(config AccessoryConfig) (*EmulatedAccessory, error) {
	if config.PIN == "" {
		return nil, errors.New("hap: accessory PIN is required")
	}
	config.applyDefaults()

	ltpk, ltsk, err := ed25519.GenerateKey(config.Rand)
	if err != nil {
		return nil, err
	}

	return &EmulatedAccessory{
		config:   config,
		ltpk:     ltpk,
		ltsk:     ltsk,
		log:      config.LoggerFactory.NewLogger("accessory"),
		db:       config.Database,
		pairings: make(map[string]ed25519.PublicKey),
	}, nil
}

// ID returns the accessory pairing identifier.
func (a *EmulatedAccessory) ID() string {
	return a.config.AccessoryID
}

// LTPK returns the accessory's long-term public key.
func (a *EmulatedAccessory) LTPK() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), a.ltpk...)
}

// PairedControllers returns the identifiers of registered
// controllers.
func (a *EmulatedAccessory) PairedControllers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.pairings))
	for id := range a.pairings {
		ids = append(ids, id)
	}
	return ids
}

// Serve accepts connections from l until it closes, handling each on
// its own goroutine.
func (a *EmulatedAccessory) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go func() {
			if err := a.ServeConn(conn); err != nil {
				a.log.Debugf("connection ended: %v", err)
			}
		}()
	}
}

// ServeConn handles one connection until it closes or a protocol
// failure aborts it. A clean peer close returns nil.
func (a *EmulatedAccessory) ServeConn(conn net.Conn) error {
	defer conn.Close()

	state := &connState{conn: conn, br: bufio.NewReader(conn)}
	for {
		req, err := http.ReadRequest(state.br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return err
		}

		if err := a.handleRequest(state, req, body); err != nil {
			return err
		}
	}
}

// connState is the per-connection protocol state: the current read
// side, the in-flight handshake and the verified flag.
type connState struct {
	conn net.Conn
	br   *bufio.Reader

	setup  *pairsetup.Session
	verify *pairverify.Session
	secure bool
}

// handleRequest dispatches one request. A returned error aborts the
// connection after the response was written.
func (a *EmulatedAccessory) handleRequest(state *connState, req *http.Request, body []byte) error {
	switch {
	case req.Method == http.MethodPost && req.URL.Path == pathPairSetup:
		return a.handlePairSetup(state, body)
	case req.Method == http.MethodPost && req.URL.Path == pathPairVerify:
		return a.handlePairVerify(state, body)
	case req.Method == http.MethodGet && req.URL.Path == pathAccessories:
		return a.handleAccessories(state)
	case req.Method == http.MethodGet && req.URL.Path == pathCharacteristics:
		return a.handleGetCharacteristics(state, req)
	case req.Method == http.MethodPut && req.URL.Path == pathCharacteristics:
		return a.handlePutCharacteristics(state, body)
	default:
		return writeResponse(state.conn, http.StatusNotFound, "", nil)
	}
}

// handlePairSetup steps the pair-setup handshake. The session's own
// state picks the message handler; a completed handshake registers
// the new controller.
func (a *EmulatedAccessory) handlePairSetup(state *connState, body []byte) error {
	if state.setup == nil {
		a.mu.Lock()
		paired := len(a.pairings) > 0
		a.mu.Unlock()
		if paired {
			// One controller per emulated accessory; a second
			// pair-setup gets the unavailable error.
			reply := tlv8.Marshal(pairing.NewAccessoryError(pairing.ErrorUnavailable).Items(pairing.StateM2))
			if err := writeResponse(state.conn, http.StatusOK, pairing.ContentTypeTLV8, reply); err != nil {
				return err
			}
			return errors.New("hap: rejected pair-setup on a paired accessory")
		}

		ps, err := pairsetup.NewAccessory(a.config.PIN, a.config.AccessoryID, a.ltpk, a.ltsk)
		if err != nil {
			return err
		}
		ps.SetRandom(a.config.Rand)
		state.setup = ps
	}

	var reply []byte
	var err error
	switch state.setup.State() {
	case pairsetup.StateInit:
		reply, err = state.setup.HandleM1(body)
	case pairsetup.StateWaitingM3:
		reply, err = state.setup.HandleM3(body)
	case pairsetup.StateWaitingM5:
		reply, err = state.setup.HandleM5(body)
	default:
		err = pairsetup.ErrInvalidState
	}

	if reply != nil {
		if writeErr := writeResponse(state.conn, http.StatusOK, pairing.ContentTypeTLV8, reply); writeErr != nil {
			return writeErr
		}
	}
	if err != nil {
		state.setup = nil
		return err
	}

	if peer := state.setup.Peer(); peer != nil {
		a.mu.Lock()
		a.pairings[peer.ID] = peer.LTPK
		a.mu.Unlock()
		a.log.Infof("registered controller %s", peer.ID)
		state.setup = nil
	}
	return nil
}

// handlePairVerify steps the pair-verify handshake. Completion swaps
// the connection to the encrypted session layer.
func (a *EmulatedAccessory) handlePairVerify(state *connState, body []byte) error {
	if state.verify == nil {
		pv, err := pairverify.NewAccessory(a.config.AccessoryID, a.ltsk, a.lookupPairing)
		if err != nil {
			return err
		}
		pv.SetRandom(a.config.Rand)
		state.verify = pv
	}

	var reply []byte
	var err error
	switch state.verify.State() {
	case pairverify.StateInit:
		reply, err = state.verify.HandleM1(body)
	case pairverify.StateWaitingM3:
		reply, err = state.verify.HandleM3(body)
	default:
		err = pairverify.ErrInvalidState
	}

	if reply != nil {
		if writeErr := writeResponse(state.conn, http.StatusOK, pairing.ContentTypeTLV8, reply); writeErr != nil {
			return writeErr
		}
	}
	if err != nil {
		state.verify = nil
		return err
	}

	if state.verify.State() == pairverify.StateComplete {
		keys, err := session.DeriveKeys(state.verify.SharedSecret())
		if err != nil {
			return err
		}
		secure := session.Upgrade(state.conn, session.RoleAccessory, keys)
		state.conn = secure
		state.br = bufio.NewReader(secure)
		state.secure = true
		state.verify = nil
		a.log.Debugf("session established")
	}
	return nil
}

func (a *EmulatedAccessory) lookupPairing(id string) ed25519.PublicKey {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pairings[id]
}

// handleAccessories serves the attribute database document.
func (a *EmulatedAccessory) handleAccessories(state *connState) error {
	if !state.secure {
		return writeResponse(state.conn, statusConnectionAuthRequired, "", nil)
	}

	a.mu.Lock()
	body, err := json.Marshal(a.db)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return writeResponse(state.conn, http.StatusOK, pairing.ContentTypeJSON, body)
}

// handleGetCharacteristics serves GET /characteristics?id=aid.iid[,...].
func (a *EmulatedAccessory) handleGetCharacteristics(state *connState, req *http.Request) error {
	if !state.secure {
		return writeResponse(state.conn, statusConnectionAuthRequired, "", nil)
	}

	var res accessory.ReadResponse
	a.mu.Lock()
	for _, ref := range strings.Split(req.URL.Query().Get("id"), ",") {
		aid, iid, err := parseCharacteristicRef(ref)
		if err != nil {
			a.mu.Unlock()
			return writeResponse(state.conn, http.StatusBadRequest, "", nil)
		}
		c := a.db.Lookup(aid, iid)
		if c == nil {
			a.mu.Unlock()
			return writeResponse(state.conn, http.StatusNotFound, "", nil)
		}
		res.Characteristics = append(res.Characteristics, accessory.Characteristic{
			AID: aid, IID: iid, Value: c.Value,
		})
	}
	a.mu.Unlock()

	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return writeResponse(state.conn, http.StatusOK, pairing.ContentTypeJSON, body)
}

// handlePutCharacteristics applies PUT /characteristics writes.
// Unknown references answer with 207 and per-entry status; a fully
// applied request answers 204.
func (a *EmulatedAccessory) handlePutCharacteristics(state *connState, body []byte) error {
	if !state.secure {
		return writeResponse(state.conn, statusConnectionAuthRequired, "", nil)
	}

	var writeReq accessory.WriteRequest
	if err := json.Unmarshal(body, &writeReq); err != nil {
		return writeResponse(state.conn, http.StatusBadRequest, "", nil)
	}

	var failures accessory.WriteResponse
	a.mu.Lock()
	for _, entry := range writeReq.Characteristics {
		c := a.db.Lookup(entry.AID, entry.IID)
		if c == nil {
			failures.Characteristics = append(failures.Characteristics, accessory.StatusEntry{
				AID: entry.AID, IID: entry.IID, Status: accessory.StatusUnknownResource,
			})
			continue
		}
		c.Value = entry.Value
	}
	a.mu.Unlock()

	if len(failures.Characteristics) == 0 {
		return writeResponse(state.conn, http.StatusNoContent, "", nil)
	}
	resBody, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	return writeResponse(state.conn, http.StatusMultiStatus, pairing.ContentTypeJSON, resBody)
}

// parseCharacteristicRef splits an "aid.iid" reference.
func parseCharacteristicRef(ref string) (aid, iid uint64, err error) {
	dot := strings.IndexByte(ref, '.')
	if dot < 0 {
		return 0, 0, fmt.Errorf("hap: bad characteristic reference %q", ref)
	}
	aid, err = strconv.ParseUint(ref[:dot], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("hap: bad characteristic reference %q", ref)
	}
	iid, err = strconv.ParseUint(ref[dot+1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("hap: bad characteristic reference %q", ref)
	}
	return aid, iid, nil
}

// writeResponse writes one HTTP/1.1 response with an explicit
// Content-Length.
func writeResponse(w io.Writer, status int, contentType string, body []byte) error {
	res := http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
	}
	if len(body) > 0 {
		res.Body = io.NopCloser(bytes.NewReader(body))
	}
	if contentType != "" {
		res.Header.Set("Content-Type", contentType)
	}
	return res.Write(w)
}
