package tlv8

// Unmarshal parses a TLV8 stream. Items sharing a tag are merged into one
// logical value in first-seen order: fragments of an over-255-byte value
// arrive as consecutive same-tag items and reassemble by concatenation.
// A length byte pointing past the end of the input fails with
// ErrUnexpectedEOF.
func Unmarshal(b []byte) (Items, error) {
	var items Items
	index := make(map[byte]int)

	for len(b) > 0 {
		if len(b) < 2 {
			return nil, ErrUnexpectedEOF
		}
		tag, n := b[0], int(b[1])
		if len(b) < 2+n {
			return nil, ErrUnexpectedEOF
		}
		value := b[2 : 2+n]
		b = b[2+n:]

		if i, ok := index[tag]; ok {
			items[i].Value = append(items[i].Value, value...)
			continue
		}
		index[tag] = len(items)
		items = append(items, Item{Tag: tag, Value: append([]byte(nil), value...)})
	}
	return items, nil
}
