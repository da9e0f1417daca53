package tlv8

import "errors"

var (
	// ErrUnexpectedEOF is returned when the input ends inside an item's
	// declared value.
	ErrUnexpectedEOF = errors.New("tlv8: unexpected end of input")
)
