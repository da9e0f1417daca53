package crypto

// NonceValueSize is the length of the distinguishing part of a nonce.
// ChaCha20-Poly1305 takes 96-bit nonces; HAP fills only the last eight
// bytes and fixes the first four to zero.
const NonceValueSize = 8

// PadNonce builds a full 96-bit nonce from an 8-byte value by
// prepending four zero bytes. Handshake messages use fixed ASCII
// values ("PS-Msg05", "PV-Msg02", ...), session frames a little-endian
// message counter.
//
// Parameters:
//   - value: the 8-byte nonce value
//
// Panics if value is not exactly 8 bytes; nonce values are
// compile-time literals or fixed-width counters, never input.
func PadNonce(value []byte) []byte {
	if len(value) != NonceValueSize {
		panic("crypto: nonce value must be 8 bytes")
	}
	nonce := make([]byte, ChaChaNonceSize)
	copy(nonce[ChaChaNonceSize-NonceValueSize:], value)
	return nonce
}
