package hap

import "sync"

// Storage abstracts persistence of pairing records, keyed by the
// accessory's "host:port" address.
//
// All methods must be safe for concurrent use. Implementations return
// and accept records by value semantics: a stored record is never
// mutated through a previously returned pointer.
type Storage interface {
	// LookupPairing returns the record stored under key, or false.
	LookupPairing(key string) (*PairingRecord, bool)

	// SavePairing stores record under key, replacing any previous
	// record wholesale.
	SavePairing(key string, record *PairingRecord) error

	// DeletePairing removes the record stored under key. Removing a
	// missing key is not an error.
	DeletePairing(key string) error

	// Pairings returns all stored records keyed by address.
	Pairings() map[string]*PairingRecord
}

// MemoryStorage is an in-memory Storage implementation. Useful for
// testing and for credentials-token sessions where nothing should
// touch disk. Data is lost when the process exits.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*PairingRecord
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*PairingRecord)}
}

// LookupPairing returns a copy of the record stored under key.
func (m *MemoryStorage) LookupPairing(key string) (*PairingRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[key]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// SavePairing stores a copy of record under key.
func (m *MemoryStorage) SavePairing(key string, record *PairingRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = record.Clone()
	return nil
}

// DeletePairing removes the record stored under key.
func (m *MemoryStorage) DeletePairing(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Pairings returns copies of all stored records.
func (m *MemoryStorage) Pairings() map[string]*PairingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*PairingRecord, len(m.records))
	for key, record := range m.records {
		result[key] = record.Clone()
	}
	return result
}
