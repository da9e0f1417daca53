// Package tlv8 implements the HAP TLV8 (Type-Length-Value, 8-bit) encoding
// used by every pairing message.
//
// A TLV8 stream is a flat sequence of items, each encoded as a one-byte
// type tag, a one-byte length and up to 255 value bytes. Values longer
// than 255 bytes are split across consecutive items carrying the same
// tag; a decoder reassembles them by concatenating in order. Two logical
// values with the same tag therefore need an item with a different tag
// between them to stay separate.
package tlv8

// maxFragment is the largest value length a single item can carry.
const maxFragment = 255

// Item is a single logical tag-value entry.
type Item struct {
	Tag   byte
	Value []byte
}

// Items is an ordered sequence of logical entries. Order is the wire
// order of first appearance.
type Items []Item

// Get returns the value of the first item with the given tag.
func (its Items) Get(tag byte) ([]byte, bool) {
	for _, it := range its {
		if it.Tag == tag {
			return it.Value, true
		}
	}
	return nil, false
}

// Has reports whether an item with the given tag is present.
func (its Items) Has(tag byte) bool {
	_, ok := its.Get(tag)
	return ok
}

// GetByte returns the first byte of the value of the first item with the
// given tag. Missing or empty values report false.
func (its Items) GetByte(tag byte) (byte, bool) {
	v, ok := its.Get(tag)
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

// GetString returns the value of the first item with the given tag as a
// string.
func (its Items) GetString(tag byte) (string, bool) {
	v, ok := its.Get(tag)
	if !ok {
		return "", false
	}
	return string(v), true
}
