package hap

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
)

// PairingRecord is the durable identity established by pair-setup: the
// controller's long-term keypair and identifier, the accessory's
// long-term public key and identifier, and the accessory's network
// address. It is immutable once stored; a new pairing attempt replaces
// the record wholesale.
type PairingRecord struct {
	// ControllerLTSK and ControllerLTPK are the controller's long-term
	// Ed25519 keypair for this pairing.
	ControllerLTSK ed25519.PrivateKey
	ControllerLTPK ed25519.PublicKey

	// ControllerID is the pairing identifier registered with the
	// accessory.
	ControllerID string

	// AccessoryLTPK and AccessoryID identify the accessory.
	AccessoryLTPK ed25519.PublicKey
	AccessoryID   string

	// AccessoryAddress and AccessoryPort locate the accessory on the
	// network.
	AccessoryAddress string
	AccessoryPort    int
}

// Addr returns the accessory's "host:port" address.
func (r *PairingRecord) Addr() string {
	return net.JoinHostPort(r.AccessoryAddress, strconv.Itoa(r.AccessoryPort))
}

// Clone returns a deep copy of the record.
func (r *PairingRecord) Clone() *PairingRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.ControllerLTSK = append(ed25519.PrivateKey(nil), r.ControllerLTSK...)
	clone.ControllerLTPK = append(ed25519.PublicKey(nil), r.ControllerLTPK...)
	clone.AccessoryLTPK = append(ed25519.PublicKey(nil), r.AccessoryLTPK...)
	return &clone
}

// Validate checks that the record carries complete identity material.
func (r *PairingRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if len(r.ControllerLTSK) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: controller private key must be %d bytes", ErrInvalidRecord, ed25519.PrivateKeySize)
	}
	if len(r.ControllerLTPK) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: controller public key must be %d bytes", ErrInvalidRecord, ed25519.PublicKeySize)
	}
	if len(r.AccessoryLTPK) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: accessory public key must be %d bytes", ErrInvalidRecord, ed25519.PublicKeySize)
	}
	if r.ControllerID == "" || r.AccessoryID == "" {
		return fmt.Errorf("%w: missing pairing identifier", ErrInvalidRecord)
	}
	return nil
}

// recordJSON is the serialized form of a PairingRecord. The field
// names and hex key encoding are shared with other HAP controller
// implementations, so records are portable between them.
type recordJSON struct {
	DeviceLTSK       string `json:"iOSDeviceLTSK"`
	DeviceLTPK       string `json:"iOSDeviceLTPK"`
	DevicePairingID  string `json:"iOSPairingId"`
	AccessoryLTPK    string `json:"AccessoryLTPK"`
	AccessoryID      string `json:"AccessoryPairingID"`
	AccessoryAddress string `json:"AccessoryAddress"`
	AccessoryPort    int    `json:"AccessoryPort"`
}

// MarshalJSON implements json.Marshaler. Keys are hex strings; the
// private key field carries only the 32-byte seed half.
func (r *PairingRecord) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		DeviceLTSK:       hex.EncodeToString(r.ControllerLTSK.Seed()),
		DeviceLTPK:       hex.EncodeToString(r.ControllerLTPK),
		DevicePairingID:  r.ControllerID,
		AccessoryLTPK:    hex.EncodeToString(r.AccessoryLTPK),
		AccessoryID:      r.AccessoryID,
		AccessoryAddress: r.AccessoryAddress,
		AccessoryPort:    r.AccessoryPort,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *PairingRecord) UnmarshalJSON(data []byte) error {
	var wire recordJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	seed, err := hex.DecodeString(wire.DeviceLTSK)
	if err != nil || len(seed) != ed25519.SeedSize {
		return fmt.Errorf("%w: bad controller private key", ErrInvalidRecord)
	}
	ltpk, err := hex.DecodeString(wire.DeviceLTPK)
	if err != nil || len(ltpk) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad controller public key", ErrInvalidRecord)
	}
	accLTPK, err := hex.DecodeString(wire.AccessoryLTPK)
	if err != nil || len(accLTPK) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad accessory public key", ErrInvalidRecord)
	}

	r.ControllerLTSK = ed25519.NewKeyFromSeed(seed)
	r.ControllerLTPK = ed25519.PublicKey(ltpk)
	r.ControllerID = wire.DevicePairingID
	r.AccessoryLTPK = ed25519.PublicKey(accLTPK)
	r.AccessoryID = wire.AccessoryID
	r.AccessoryAddress = wire.AccessoryAddress
	r.AccessoryPort = wire.AccessoryPort
	return r.Validate()
}

// EncodeCredentials serializes a pairing record to its portable token
// form: standard base64 of the JSON record. The token is the single
// opaque string a supervising process stores and hands back.
func EncodeCredentials(r *PairingRecord) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeCredentials parses a credentials token produced by
// EncodeCredentials.
func DecodeCredentials(token string) (*PairingRecord, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalidRecord, err)
	}
	record := &PairingRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, err
	}
	return record, nil
}
