package crypto

import (
	"crypto/ed25519"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the Curve25519 public/private key size in bytes.
const X25519KeySize = 32

var (
	ErrX25519InvalidKeySize = errors.New("crypto: invalid X25519 key size, must be 32 bytes")
	ErrX25519BadPeerKey     = errors.New("crypto: X25519 peer public key is invalid")
)

// X25519GenerateKeyPair generates an ephemeral Curve25519 key pair from
// the given randomness source.
func X25519GenerateKeyPair(rand io.Reader) (publicKey, privateKey []byte, err error) {
	privateKey = make([]byte, X25519KeySize)
	if _, err = io.ReadFull(rand, privateKey); err != nil {
		return nil, nil, err
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return publicKey, privateKey, nil
}

// X25519SharedSecret computes the ECDH shared secret between a private
// key and a peer's public key. Low-order peer keys that would yield an
// all-zero secret are rejected.
func X25519SharedSecret(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(privateKey) != X25519KeySize || len(peerPublicKey) != X25519KeySize {
		return nil, ErrX25519InvalidKeySize
	}
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, ErrX25519BadPeerKey
	}
	return shared, nil
}

// Ed25519GenerateKeyPair generates a long-term Ed25519 signing key pair
// from the given randomness source. Signing and verification use
// crypto/ed25519 directly.
func Ed25519GenerateKeyPair(rand io.Reader) (publicKey ed25519.PublicKey, privateKey ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand)
}
