// Package pairverify implements the HAP pair-verify handshake.
//
// Pair-verify authenticates an existing pairing and establishes the
// per-connection shared secret that the session layer turns into
// encryption keys. Each side proves possession of its long-term
// Ed25519 key by signing the ephemeral X25519 public keys; the shared
// secret comes from the ephemeral Diffie-Hellman exchange.
//
// See HomeKit Accessory Protocol Specification, section 5.7.
//
// # Protocol Flow
//
// Two round trips over one plaintext connection:
//
//	Controller                            Accessory
//	----------                            ---------
//	NewController(record)                 NewAccessory(id, ltsk, lookup)
//	                                      |
//	m1 = Start()             ------>      HandleM1(m1)
//	                         <------      m2 (ephemeral key, signed identity)
//	m3 = HandleM2(m2)        ------>      HandleM3(m3)
//	                         <------      m4
//	HandleM4(m4)
//	SharedSecret()                        SharedSecret()
//
// The accessory signature in M2 is verified against the pairing
// record's long-term key before anything else from the decrypted
// payload is trusted; a mismatch aborts with no keys derived.
package pairverify

import "errors"

// HKDF labels for the handshake encryption key.
const (
	saltVerify = "Pair-Verify-Encrypt-Salt"
	infoVerify = "Pair-Verify-Encrypt-Info"
)

// Fixed nonce values for the two encrypted messages.
var (
	nonceM2 = []byte("PV-Msg02")
	nonceM3 = []byte("PV-Msg03")
)

// Errors.
var (
	ErrInvalidState     = errors.New("pairverify: invalid protocol state")
	ErrInvalidMessage   = errors.New("pairverify: malformed pair-verify message")
	ErrInvalidIdentity  = errors.New("pairverify: invalid identity material")
	ErrSignatureInvalid = errors.New("pairverify: peer signature verification failed")
	ErrIdentityMismatch = errors.New("pairverify: peer identity does not match the pairing record")
	ErrUnknownPeer      = errors.New("pairverify: no pairing exists for the peer identifier")
)
