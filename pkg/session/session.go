// Package session implements the encrypted session layer that wraps a
// connection after a successful pair-verify handshake.
//
// The pair-verify shared secret is expanded into one ChaCha20-Poly1305
// key per direction. Each direction carries an independent message
// counter that supplies the frame nonces, so every frame under a key
// uses a fresh nonce. Plaintext is framed into chunks of at most 1024
// bytes:
//
//	<2-byte little-endian plaintext length> <ciphertext> <16-byte tag>
//
// with the length prefix authenticated as associated data.
//
// A session is scoped to one connection. Any framing, authentication
// or counter failure poisons the connection permanently; the session
// must be discarded and re-established, never repaired.
package session

import "errors"

// Errors
var (
	// ErrInvalidSharedSecret rejects key derivation from an empty
	// secret.
	ErrInvalidSharedSecret = errors.New("session: shared secret must not be empty")

	// ErrCounterExhausted reports a message counter that ran out of
	// values. Continuing would reuse a nonce.
	ErrCounterExhausted = errors.New("session: message counter exhausted")

	// ErrBroken reports a poisoned connection. It is sticky: once any
	// operation fails, all subsequent operations fail with it.
	ErrBroken = errors.New("session: connection is broken")

	// ErrFrameTooLarge reports a length prefix above the frame limit.
	ErrFrameTooLarge = errors.New("session: frame exceeds maximum size")
)
