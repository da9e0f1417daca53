package hap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultStoragePath is the pairing file used when FileStorage is
// created with an empty path.
const DefaultStoragePath = "pairings.json"

// FileStorage is a Storage implementation backed by a single JSON
// file: a map from "host:port" to the serialized pairing record.
// Writes go through a temporary file and rename, so a crash never
// leaves a half-written pairing table.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a file-backed storage at path. An empty path
// selects DefaultStoragePath. The file is created on first save; a
// missing file reads as an empty table.
func NewFileStorage(path string) *FileStorage {
	if path == "" {
		path = DefaultStoragePath
	}
	return &FileStorage{path: path}
}

// Path returns the backing file path.
func (f *FileStorage) Path() string {
	return f.path
}

// LookupPairing returns the record stored under key.
func (f *FileStorage) LookupPairing(key string) (*PairingRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.load()
	if err != nil {
		return nil, false
	}
	record, ok := table[key]
	return record, ok
}

// SavePairing rewrites the pairing file with record stored under key.
func (f *FileStorage) SavePairing(key string, record *PairingRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.load()
	if err != nil {
		return err
	}
	table[key] = record.Clone()
	return f.persist(table)
}

// DeletePairing rewrites the pairing file without the record stored
// under key.
func (f *FileStorage) DeletePairing(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := table[key]; !ok {
		return nil
	}
	delete(table, key)
	return f.persist(table)
}

// Pairings returns all stored records.
func (f *FileStorage) Pairings() map[string]*PairingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.load()
	if err != nil {
		return map[string]*PairingRecord{}
	}
	return table
}

// load reads the pairing table. A missing file is an empty table.
func (f *FileStorage) load() (map[string]*PairingRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*PairingRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("hap: reading pairing file: %w", err)
	}

	table := make(map[string]*PairingRecord)
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("hap: parsing pairing file %s: %w", f.path, err)
	}
	return table, nil
}

// persist writes the pairing table atomically: temp file in the same
// directory, then rename over the target.
func (f *FileStorage) persist(table map[string]*PairingRecord) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp")
	if err != nil {
		return fmt.Errorf("hap: writing pairing file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("hap: writing pairing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hap: writing pairing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("hap: writing pairing file: %w", err)
	}
	return nil
}
