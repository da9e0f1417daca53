package hap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/pion/logging"

	"github.com/cliairplay/hap/pkg/accessory"
	"github.com/cliairplay/hap/pkg/pairing"
)

// Session is an established encrypted connection to one accessory.
// Requests are serialized: one request/response pair at a time, each
// waiting for its complete response.
//
// A session never recovers from failure. The first transport or
// protocol error tears it down; every later call returns an error
// matching ErrSessionClosed with the original cause attached. The
// caller reconnects with Controller.Connect for a fresh session.
type Session struct {
	conn   net.Conn
	exch   *exchange
	record *PairingRecord
	log    logging.LeveledLogger

	mu     sync.Mutex
	db     *accessory.Database // cached database document
	broken error
}

// Record returns a copy of the pairing record this session
// authenticated with.
func (s *Session) Record() *PairingRecord {
	return s.record.Clone()
}

// Close tears the session down and closes the connection. Safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken == nil {
		s.broken = ErrSessionClosed
	}
	return s.conn.Close()
}

// Database fetches the accessory attribute database, caching the
// document for later Find calls.
func (s *Session) Database(ctx context.Context) (*accessory.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database(ctx)
}

// Accessories fetches the accessory attribute database and returns
// its accessories.
func (s *Session) Accessories(ctx context.Context) ([]accessory.Accessory, error) {
	db, err := s.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Accessories, nil
}

// Find locates the first characteristic matching pred in the cached
// database document, fetching the document first if needed. Returns
// the characteristic and the ID of the accessory holding it.
func (s *Session) Find(ctx context.Context, pred accessory.Predicate) (*accessory.Characteristic, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.database(ctx)
	if err != nil {
		return nil, 0, err
	}
	return accessory.FindFirst(db, pred)
}

// GetCharacteristic reads the value of one characteristic.
func (s *Session) GetCharacteristic(ctx context.Context, aid, iid uint64) (accessory.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := fmt.Sprintf("%s?id=%d.%d", pathCharacteristics, aid, iid)
	payload, err := s.request(ctx, http.MethodGet, path, "", nil, http.StatusOK, http.StatusMultiStatus)
	if err != nil {
		return nil, err
	}

	var res accessory.ReadResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, s.teardown(fmt.Errorf("hap: parsing characteristics response: %w", err))
	}
	if len(res.Characteristics) == 0 {
		return nil, s.teardown(fmt.Errorf("hap: empty characteristics response"))
	}
	return res.Characteristics[0].Value, nil
}

// SetCharacteristic writes the value of one characteristic. The
// accessory acknowledges with 204, or 207 carrying per-entry HAP
// status; a non-zero status surfaces as ErrCharacteristicStatus.
func (s *Session) SetCharacteristic(ctx context.Context, aid, iid uint64, value accessory.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(accessory.WriteRequest{
		Characteristics: []accessory.WriteEntry{{AID: aid, IID: iid, Value: value}},
	})
	if err != nil {
		return err
	}

	payload, err := s.request(ctx, http.MethodPut, pathCharacteristics, pairing.ContentTypeJSON, body, http.StatusNoContent, http.StatusMultiStatus)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}

	var res accessory.WriteResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return s.teardown(fmt.Errorf("hap: parsing write response: %w", err))
	}
	for _, entry := range res.Characteristics {
		if entry.Status != accessory.StatusSuccess {
			return fmt.Errorf("%w: %d.%d status %d", ErrCharacteristicStatus, entry.AID, entry.IID, entry.Status)
		}
	}
	return nil
}

// database loads and caches the accessory database. Callers hold the
// session mutex.
func (s *Session) database(ctx context.Context) (*accessory.Database, error) {
	if s.db != nil {
		return s.db, nil
	}

	payload, err := s.request(ctx, http.MethodGet, pathAccessories, "", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	db := &accessory.Database{}
	if err := json.Unmarshal(payload, db); err != nil {
		return nil, s.teardown(fmt.Errorf("hap: parsing accessory database: %w", err))
	}

	s.db = db
	return db, nil
}

// request issues one round trip and checks the status code against
// the accepted set. Any transport failure or unexpected status tears
// the session down. Callers hold the session mutex.
func (s *Session) request(ctx context.Context, method, path, contentType string, body []byte, acceptStatus ...int) ([]byte, error) {
	if s.broken != nil {
		return nil, s.broken
	}
	if err := ctx.Err(); err != nil {
		return nil, s.teardown(err)
	}
	deadline, ok := ctx.Deadline()
	if err := s.exch.deadline(deadline, ok); err != nil {
		return nil, s.teardown(err)
	}

	status, payload, err := s.exch.roundTrip(method, path, contentType, body)
	if err != nil {
		return nil, s.teardown(err)
	}
	for _, want := range acceptStatus {
		if status == want {
			return payload, nil
		}
	}
	return nil, s.teardown(fmt.Errorf("%w: %s %s returned %d", ErrBadStatus, method, path, status))
}

// teardown poisons the session with cause and closes the connection.
// The first cause wins. Callers hold the session mutex.
func (s *Session) teardown(cause error) error {
	if s.broken == nil {
		s.broken = fmt.Errorf("%w: %w", ErrSessionClosed, cause)
		s.conn.Close()
		if s.log != nil {
			s.log.Warnf("session torn down: %v", cause)
		}
	}
	return s.broken
}
