package session

import "sync"

// Counter supplies the per-direction frame nonce values. Counters
// start at zero and never wrap: exhaustion invalidates the session,
// since reusing a value would reuse a nonce under the same key.
// It is safe for concurrent use.
type Counter struct {
	value     uint64
	exhausted bool
	mu        sync.Mutex
}

// NewCounter creates a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// NewCounterWithValue creates a counter with a specific initial value.
// Used for testing exhaustion behavior.
func NewCounterWithValue(initial uint64) *Counter {
	return &Counter{value: initial}
}

// Next returns the current counter value and increments the counter.
// Returns ErrCounterExhausted once the counter has wrapped; the
// session must be re-established.
func (c *Counter) Next() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exhausted {
		return 0, ErrCounterExhausted
	}

	current := c.value
	c.value++
	if c.value == 0 {
		c.exhausted = true
	}

	return current, nil
}

// Current returns the next value Next would return, without
// incrementing.
func (c *Counter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// IsExhausted returns true once the counter has wrapped.
func (c *Counter) IsExhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}
