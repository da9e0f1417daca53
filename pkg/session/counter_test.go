package session

import (
	"errors"
	"math"
	"testing"
)

func TestCounterSequence(t *testing.T) {
	c := NewCounter()

	for want := uint64(0); want < 3; want++ {
		got, err := c.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected counter value %d, got %d", want, got)
		}
	}

	if c.Current() != 3 {
		t.Errorf("Expected current value 3, got %d", c.Current())
	}
	if c.IsExhausted() {
		t.Error("Counter should not be exhausted")
	}
}

func TestCounterInitialValue(t *testing.T) {
	c := NewCounterWithValue(41)

	got, err := c.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got != 41 {
		t.Errorf("Expected counter value 41, got %d", got)
	}
}

func TestCounterExhaustion(t *testing.T) {
	c := NewCounterWithValue(math.MaxUint64)

	got, err := c.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got != math.MaxUint64 {
		t.Errorf("Expected final counter value %d, got %d", uint64(math.MaxUint64), got)
	}
	if !c.IsExhausted() {
		t.Error("Counter should be exhausted after issuing the final value")
	}

	if _, err := c.Next(); !errors.Is(err, ErrCounterExhausted) {
		t.Errorf("Expected ErrCounterExhausted, got %v", err)
	}

	// Exhaustion is permanent.
	if _, err := c.Next(); !errors.Is(err, ErrCounterExhausted) {
		t.Errorf("Expected ErrCounterExhausted on repeat call, got %v", err)
	}
}
