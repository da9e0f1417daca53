package session

import (
	"github.com/cliairplay/hap/pkg/crypto"
)

// KeySize is the per-direction session key size.
const KeySize = crypto.DerivedKeySize

// HKDF labels for the session keys.
const (
	controlSalt      = "Control-Salt"
	controlWriteInfo = "Control-Write-Encryption-Key"
	controlReadInfo  = "Control-Read-Encryption-Key"
)

// Role determines which derived key a session end sends with.
type Role int

const (
	// RoleController sends with the write key and receives with the
	// read key.
	RoleController Role = iota
	// RoleAccessory is the mirror image.
	RoleAccessory
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleController:
		return "Controller"
	case RoleAccessory:
		return "Accessory"
	default:
		return "Unknown"
	}
}

// Keys holds the two directional session keys derived from a
// pair-verify shared secret.
type Keys struct {
	// Write encrypts controller-to-accessory frames.
	Write []byte
	// Read encrypts accessory-to-controller frames.
	Read []byte
}

// DeriveKeys expands the pair-verify shared secret into the two
// directional session keys.
func DeriveKeys(sharedSecret []byte) (*Keys, error) {
	if len(sharedSecret) == 0 {
		return nil, ErrInvalidSharedSecret
	}

	write, err := crypto.HKDFSHA512(sharedSecret, []byte(controlSalt), []byte(controlWriteInfo))
	if err != nil {
		return nil, err
	}
	read, err := crypto.HKDFSHA512(sharedSecret, []byte(controlSalt), []byte(controlReadInfo))
	if err != nil {
		return nil, err
	}

	return &Keys{Write: write, Read: read}, nil
}

// ForRole returns the send and receive keys for one end of the
// session.
func (k *Keys) ForRole(role Role) (send, receive []byte) {
	if role == RoleController {
		return k.Write, k.Read
	}
	return k.Read, k.Write
}
