package tlv8

// Marshal serializes items in order. A value longer than 255 bytes is
// emitted as consecutive items with the same tag, each at most 255 bytes,
// remainder last. An empty value is emitted as a single zero-length item.
func Marshal(items Items) []byte {
	var size int
	for _, it := range items {
		n := len(it.Value)
		frags := n/maxFragment + 1
		if n > 0 && n%maxFragment == 0 {
			frags = n / maxFragment
		}
		size += frags*2 + n
	}

	out := make([]byte, 0, size)
	for _, it := range items {
		v := it.Value
		for len(v) > maxFragment {
			out = append(out, it.Tag, maxFragment)
			out = append(out, v[:maxFragment]...)
			v = v[maxFragment:]
		}
		out = append(out, it.Tag, byte(len(v)))
		out = append(out, v...)
	}
	return out
}
