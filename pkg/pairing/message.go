package pairing

import (
	"errors"
	"fmt"

	"github.com/cliairplay/hap/pkg/tlv8"
)

// Errors
var (
	ErrMalformedMessage = errors.New("pairing: malformed pairing message")
	ErrUnexpectedState  = errors.New("pairing: unexpected message state")
)

// ParseMessage decodes a pairing message and checks it against the
// expected handshake state.
//
// An Error item takes precedence: it is returned as an AccessoryError
// regardless of the message state, since accessories report the state
// of the step that failed. A missing or mismatched state item is a
// protocol violation.
func ParseMessage(data []byte, want State) (tlv8.Items, error) {
	items, err := tlv8.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if accErr := ErrorFromItems(items); accErr != nil {
		return items, accErr
	}

	got, ok := items.GetByte(TagState)
	if !ok {
		return nil, fmt.Errorf("%w: missing state item", ErrMalformedMessage)
	}
	if State(got) != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedState, State(got), want)
	}

	return items, nil
}
