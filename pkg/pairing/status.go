package pairing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cliairplay/hap/pkg/tlv8"
)

// ErrorCode represents an accessory-reported pairing error (Table 4-5).
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorUnknown:
		return "Unknown"
	case ErrorAuthentication:
		return "Authentication"
	case ErrorBackoff:
		return "Backoff"
	case ErrorMaxPeers:
		return "MaxPeers"
	case ErrorMaxTries:
		return "MaxTries"
	case ErrorUnavailable:
		return "Unavailable"
	case ErrorBusy:
		return "Busy"
	default:
		return "Unrecognized"
	}
}

// Errors
var (
	// ErrAccessory matches any AccessoryError via errors.Is.
	ErrAccessory = errors.New("pairing: accessory returned an error")

	// ErrAuthentication matches AccessoryErrors with code
	// ErrorAuthentication, typically a wrong setup code or a peer that
	// failed proof verification.
	ErrAuthentication = errors.New("pairing: authentication failed")
)

// AccessoryError is an error item received in a pairing response. The
// accessory aborts its side of the handshake when it sends one; the
// controller must abandon the attempt.
type AccessoryError struct {
	Code ErrorCode

	// RetryDelay is the accessory-requested wait before another
	// attempt. Zero when the response carried none.
	RetryDelay time.Duration
}

// NewAccessoryError creates an AccessoryError for the given code.
func NewAccessoryError(code ErrorCode) *AccessoryError {
	return &AccessoryError{Code: code}
}

// Backoff creates an AccessoryError asking the peer to wait before
// retrying.
func Backoff(delay time.Duration) *AccessoryError {
	return &AccessoryError{Code: ErrorBackoff, RetryDelay: delay}
}

// Error implements the error interface.
func (e *AccessoryError) Error() string {
	if e.RetryDelay > 0 {
		return fmt.Sprintf("pairing: accessory error %s (retry after %s)", e.Code, e.RetryDelay)
	}
	return fmt.Sprintf("pairing: accessory error %s", e.Code)
}

// Is reports whether this error matches one of the package sentinels.
// Every AccessoryError matches ErrAccessory; code Authentication
// additionally matches ErrAuthentication.
func (e *AccessoryError) Is(target error) bool {
	switch target {
	case ErrAccessory:
		return true
	case ErrAuthentication:
		return e.Code == ErrorAuthentication
	}
	return false
}

// Items encodes the error as a pairing response body for the given
// handshake state.
func (e *AccessoryError) Items(state State) tlv8.Items {
	items := tlv8.Items{
		{Tag: TagState, Value: []byte{byte(state)}},
		{Tag: TagError, Value: []byte{byte(e.Code)}},
	}
	if e.RetryDelay > 0 {
		items = append(items, tlv8.Item{Tag: TagRetryDelay, Value: encodeUintLE(uint64(e.RetryDelay / time.Second))})
	}
	return items
}

// ErrorFromItems extracts an AccessoryError from a pairing response, or
// nil if the response carries no error item.
func ErrorFromItems(items tlv8.Items) *AccessoryError {
	code, ok := items.GetByte(TagError)
	if !ok {
		return nil
	}
	e := &AccessoryError{Code: ErrorCode(code)}
	if raw, ok := items.Get(TagRetryDelay); ok {
		e.RetryDelay = time.Duration(decodeUintLE(raw)) * time.Second
	}
	return e
}

// encodeUintLE writes v little-endian at the smallest of the standard
// TLV integer widths (1, 2, 4 or 8 bytes).
func encodeUintLE(v uint64) []byte {
	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	case v <= 0xFFFFFFFF:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	default:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return b
	}
}

// decodeUintLE reads a little-endian integer of up to 8 bytes.
func decodeUintLE(b []byte) uint64 {
	n := len(b)
	if n > 8 {
		n = 8
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
