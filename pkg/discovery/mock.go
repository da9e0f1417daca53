package discovery

import (
	"context"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockResolver is a Resolver for testing without real network I/O.
// Registered entries are delivered to every Browse of their service
// type; the entries channel closes once all are delivered, like a
// browse window that saw everything it was going to see.
type MockResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

var _ Resolver = (*MockResolver)(nil)

// NewMockResolver creates an empty mock resolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{services: make(map[string][]*zeroconf.ServiceEntry)}
}

// RegisterService registers an entry returned by later Browse calls.
func (m *MockResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// Browse implements Resolver.
func (m *MockResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	snapshot := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(snapshot, m.services[service])
	m.mu.RUnlock()

	go func() {
		defer close(entries)
		for _, entry := range snapshot {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
