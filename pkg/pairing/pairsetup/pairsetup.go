// Package pairsetup implements the HAP pair-setup handshake.
//
// Pair-setup establishes a long-term pairing between a controller and
// an accessory from a shared setup code. SRP-6a proves knowledge of
// the code on both sides, then each side registers its long-term
// Ed25519 public key with the other inside an encrypted exchange. The
// resulting identifiers and keys are what later pair-verify sessions
// authenticate against.
//
// See HomeKit Accessory Protocol Specification, section 5.6.
//
// # Protocol Flow
//
// Three round trips over one plaintext connection:
//
//	Controller                            Accessory
//	----------                            ---------
//	NewController(pin, id)                NewAccessory(pin, id, ltpk, ltsk)
//	                                      |
//	m1 = Start()             ------>      HandleM1(m1)
//	                         <------      m2 (salt, SRP public value)
//	m3 = HandleM2(m2)        ------>      HandleM3(m3)
//	                         <------      m4 (SRP proof)
//	m5 = HandleM4(m4)        ------>      HandleM5(m5)
//	                         <------      m6 (encrypted identity)
//	result = HandleM6(m6)
//	Complete!                             Complete!
//
// The controller generates a fresh long-term keypair for M5; the
// accessory returns its own identity in M6 signed with its long-term
// key, which the controller verifies before trusting anything in the
// payload.
package pairsetup

import (
	"crypto/ed25519"
	"errors"
)

// HKDF labels for the pair-setup derived keys.
const (
	saltController = "Pair-Setup-Controller-Sign-Salt"
	infoController = "Pair-Setup-Controller-Sign-Info"
	saltAccessory  = "Pair-Setup-Accessory-Sign-Salt"
	infoAccessory  = "Pair-Setup-Accessory-Sign-Info"
	saltEncrypt    = "Pair-Setup-Encrypt-Salt"
	infoEncrypt    = "Pair-Setup-Encrypt-Info"
)

// Fixed nonce values for the two encrypted messages.
var (
	nonceM5 = []byte("PS-Msg05")
	nonceM6 = []byte("PS-Msg06")
)

// Errors.
var (
	ErrInvalidState     = errors.New("pairsetup: invalid protocol state")
	ErrInvalidMessage   = errors.New("pairsetup: malformed pair-setup message")
	ErrInvalidIdentity  = errors.New("pairsetup: invalid local identity")
	ErrSignatureInvalid = errors.New("pairsetup: peer signature verification failed")
)

// Result holds everything a completed pair-setup yields on the
// controller side. The caller persists it as a pairing record.
type Result struct {
	// ControllerID is the pairing identifier the controller registered
	// with the accessory.
	ControllerID string

	// ControllerLTPK and ControllerLTSK are the long-term keypair
	// generated for this pairing.
	ControllerLTPK ed25519.PublicKey
	ControllerLTSK ed25519.PrivateKey

	// AccessoryID and AccessoryLTPK identify the accessory in later
	// pair-verify sessions.
	AccessoryID   string
	AccessoryLTPK ed25519.PublicKey
}

// ControllerIdentity is the peer identity an accessory learns from a
// completed pair-setup.
type ControllerIdentity struct {
	ID   string
	LTPK ed25519.PublicKey
}
