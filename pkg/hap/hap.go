// Package hap ties the protocol layers into a usable controller: it
// drives pair-setup and pair-verify over HTTP, persists pairing
// records, and exposes characteristic operations over the encrypted
// session.
//
// # Usage
//
//	controller := hap.NewController(hap.Config{Storage: store})
//
//	// First contact: establish a durable pairing from the setup code.
//	record, err := controller.Pair(ctx, "192.168.1.40:7000", "123-45-678")
//
//	// Every later contact: authenticate with the stored identity.
//	session, err := controller.Connect(ctx, "192.168.1.40:7000")
//	defer session.Close()
//
//	volume, err := session.Volume(ctx)
//	err = session.SetVolume(ctx, 30)
//
// One Session owns one connection. Requests on a session are
// serialized; any transport or protocol failure tears the session down
// permanently and the caller reconnects with Connect. Pairing records
// are immutable once stored; re-pairing replaces the record wholesale.
package hap

import "errors"

// Errors
var (
	// ErrNotPaired reports a Connect against an accessory without a
	// stored pairing. Run Pair first.
	ErrNotPaired = errors.New("hap: no pairing record for this accessory")

	// ErrAlreadyPaired reports a Pair against an accessory that
	// already has a stored pairing. Unpair first, or use Repair.
	ErrAlreadyPaired = errors.New("hap: a pairing record already exists for this accessory")

	// ErrInvalidRecord rejects pairing records with missing or
	// malformed identity material.
	ErrInvalidRecord = errors.New("hap: invalid pairing record")

	// ErrBadStatus reports an unexpected HTTP status from the
	// accessory.
	ErrBadStatus = errors.New("hap: unexpected response status")

	// ErrCharacteristicStatus reports a non-success HAP status for an
	// addressed characteristic.
	ErrCharacteristicStatus = errors.New("hap: characteristic operation rejected")

	// ErrSessionClosed reports use of a session after Close or after a
	// failure tore it down.
	ErrSessionClosed = errors.New("hap: session closed")
)
