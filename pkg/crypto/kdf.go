// Package crypto provides the cryptographic primitives for HAP pairing
// and session security: HKDF-SHA512 key derivation, ChaCha20-Poly1305
// authenticated encryption and the X25519 key agreement used by
// pair-verify. Long-term identities are plain crypto/ed25519 keys.
package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeySize is the output length of every HAP key derivation.
// All pairing and session keys are 32 bytes (256 bits).
const DerivedKeySize = 32

// HKDFSHA512 derives key material using HKDF-SHA512 (RFC 5869). Every
// key derivation in HAP uses this construction with an ASCII salt and
// info label; the label pair makes each derivation distinct from all
// others in the protocol.
//
// Returns DerivedKeySize bytes.
func HKDFSHA512(inputKey, salt, info []byte) ([]byte, error) {
	reader := hkdf.New(sha512.New, inputKey, salt, info)
	result := make([]byte, DerivedKeySize)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
