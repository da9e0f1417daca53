package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20-Poly1305 parameters (RFC 8439).
const (
	// ChaChaKeySize is the key size in bytes.
	ChaChaKeySize = chacha20poly1305.KeySize

	// ChaChaNonceSize is the nonce size in bytes (96 bits).
	ChaChaNonceSize = chacha20poly1305.NonceSize

	// ChaChaTagSize is the Poly1305 authentication tag size in bytes.
	ChaChaTagSize = chacha20poly1305.Overhead
)

var (
	ErrChaChaInvalidNonceSize   = errors.New("crypto: invalid nonce size, must be 12 bytes")
	ErrChaChaCiphertextTooShort = errors.New("crypto: ciphertext shorter than the authentication tag")
	ErrChaChaAuthFailed         = errors.New("crypto: message authentication failed")
)

// ChaCha20Poly1305Encrypt encrypts and authenticates plaintext with the
// given key, 96-bit nonce and associated data. Returns ciphertext with
// the 16-byte tag appended.
//
// HAP forms every nonce as 4 zero bytes followed by an 8-byte tail: a
// fixed ASCII literal for handshake messages, a little-endian counter
// for session frames. The nonce must never repeat under one key.
func ChaCha20Poly1305Encrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != ChaChaNonceSize {
		return nil, ErrChaChaInvalidNonceSize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// ChaCha20Poly1305Decrypt verifies and decrypts ciphertext||tag produced
// by ChaCha20Poly1305Encrypt. A failed tag check returns
// ErrChaChaAuthFailed and no plaintext.
func ChaCha20Poly1305Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != ChaChaNonceSize {
		return nil, ErrChaChaInvalidNonceSize
	}
	if len(ciphertext) < ChaChaTagSize {
		return nil, ErrChaChaCiphertextTooShort
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrChaChaAuthFailed
	}
	return plaintext, nil
}
