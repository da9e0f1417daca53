package pairing

import (
	"errors"
	"testing"
	"time"

	"github.com/cliairplay/hap/pkg/tlv8"
)

func TestNormalizePIN(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "dashed", in: "031-45-154", want: "031-45-154"},
		{name: "bare", in: "03145154", want: "031-45-154"},
		{name: "leading_zeros", in: "00000000", want: "000-00-000"},
		{name: "too_short", in: "0314515", wantErr: true},
		{name: "too_long", in: "031451540", wantErr: true},
		{name: "misplaced_dashes", in: "0314-5-154", wantErr: true},
		{name: "letters", in: "031-45-15a", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePIN(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidSetupCode) {
					t.Errorf("Expected ErrInvalidSetupCode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePIN failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("NormalizePIN(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAccessoryErrorSentinels(t *testing.T) {
	auth := NewAccessoryError(ErrorAuthentication)
	if !errors.Is(auth, ErrAccessory) {
		t.Error("authentication error should match ErrAccessory")
	}
	if !errors.Is(auth, ErrAuthentication) {
		t.Error("authentication error should match ErrAuthentication")
	}

	busy := NewAccessoryError(ErrorBusy)
	if !errors.Is(busy, ErrAccessory) {
		t.Error("busy error should match ErrAccessory")
	}
	if errors.Is(busy, ErrAuthentication) {
		t.Error("busy error should not match ErrAuthentication")
	}
}

func TestAccessoryErrorRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		err   *AccessoryError
		state State
	}{
		{name: "authentication", err: NewAccessoryError(ErrorAuthentication), state: StateM2},
		{name: "backoff_with_delay", err: Backoff(30 * time.Second), state: StateM4},
		{name: "large_delay", err: Backoff(600 * time.Second), state: StateM2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wire := tlv8.Marshal(tc.err.Items(tc.state))
			items, err := tlv8.Unmarshal(wire)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			if state, _ := items.GetByte(TagState); State(state) != tc.state {
				t.Errorf("state = %v, want %v", State(state), tc.state)
			}

			got := ErrorFromItems(items)
			if got == nil {
				t.Fatal("ErrorFromItems returned nil")
			}
			if got.Code != tc.err.Code {
				t.Errorf("code = %v, want %v", got.Code, tc.err.Code)
			}
			if got.RetryDelay != tc.err.RetryDelay {
				t.Errorf("retry delay = %v, want %v", got.RetryDelay, tc.err.RetryDelay)
			}
		})
	}
}

func TestErrorFromItemsAbsent(t *testing.T) {
	items := tlv8.Items{{Tag: TagState, Value: []byte{byte(StateM2)}}}
	if got := ErrorFromItems(items); got != nil {
		t.Errorf("expected nil for a response without an error item, got %v", got)
	}
}

func TestParseMessage(t *testing.T) {
	t.Run("matching_state", func(t *testing.T) {
		wire := tlv8.Marshal(tlv8.Items{
			{Tag: TagState, Value: []byte{byte(StateM2)}},
			{Tag: TagSalt, Value: []byte{1, 2, 3}},
		})
		items, err := ParseMessage(wire, StateM2)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}
		if _, ok := items.Get(TagSalt); !ok {
			t.Error("expected salt item to survive parsing")
		}
	})

	t.Run("error_item_takes_precedence", func(t *testing.T) {
		wire := tlv8.Marshal(NewAccessoryError(ErrorMaxTries).Items(StateM2))
		_, err := ParseMessage(wire, StateM4)
		var accErr *AccessoryError
		if !errors.As(err, &accErr) {
			t.Fatalf("Expected AccessoryError, got %v", err)
		}
		if accErr.Code != ErrorMaxTries {
			t.Errorf("code = %v, want %v", accErr.Code, ErrorMaxTries)
		}
	})

	t.Run("state_mismatch", func(t *testing.T) {
		wire := tlv8.Marshal(tlv8.Items{{Tag: TagState, Value: []byte{byte(StateM4)}}})
		if _, err := ParseMessage(wire, StateM2); !errors.Is(err, ErrUnexpectedState) {
			t.Errorf("Expected ErrUnexpectedState, got %v", err)
		}
	})

	t.Run("missing_state", func(t *testing.T) {
		wire := tlv8.Marshal(tlv8.Items{{Tag: TagSalt, Value: []byte{1}}})
		if _, err := ParseMessage(wire, StateM2); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Expected ErrMalformedMessage, got %v", err)
		}
	})

	t.Run("truncated_wire", func(t *testing.T) {
		if _, err := ParseMessage([]byte{0x06, 0x05, 0x01}, StateM2); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Expected ErrMalformedMessage, got %v", err)
		}
	})
}

func TestUintLECodec(t *testing.T) {
	testCases := []struct {
		value uint64
		width int
	}{
		{0, 1},
		{10, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 4},
		{1 << 32, 8},
	}

	for _, tc := range testCases {
		b := encodeUintLE(tc.value)
		if len(b) != tc.width {
			t.Errorf("encodeUintLE(%d) width = %d, want %d", tc.value, len(b), tc.width)
		}
		if got := decodeUintLE(b); got != tc.value {
			t.Errorf("decodeUintLE(encodeUintLE(%d)) = %d", tc.value, got)
		}
	}
}
