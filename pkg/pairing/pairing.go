// Package pairing provides the shared vocabulary of the HAP pairing
// protocols: TLV item types, pairing methods, handshake states and
// accessory error codes.
//
// The actual protocol flows live in the pairsetup and pairverify
// subpackages; this package holds what both of them, the session layer
// and the HTTP client need to agree on.
//
// See HomeKit Accessory Protocol Specification, chapter 4.
package pairing

// TLV item types used in pairing messages (Table 4-6).
const (
	TagMethod        byte = 0x00
	TagIdentifier    byte = 0x01
	TagSalt          byte = 0x02
	TagPublicKey     byte = 0x03
	TagProof         byte = 0x04
	TagEncryptedData byte = 0x05
	TagState         byte = 0x06
	TagError         byte = 0x07
	TagRetryDelay    byte = 0x08
	TagCertificate   byte = 0x09
	TagSignature     byte = 0x0A
	TagPermissions   byte = 0x0B
	TagFragmentData  byte = 0x0D
	TagFragmentLast  byte = 0x0E
)

// HTTP content types for the two wire formats.
const (
	// ContentTypeTLV8 carries pairing TLV messages.
	ContentTypeTLV8 = "application/pairing+tlv8"

	// ContentTypeJSON carries characteristic and accessory database
	// documents.
	ContentTypeJSON = "application/hap+json"
)

// Method identifies a pairing method (Table 4-4).
type Method byte

const (
	MethodPairSetup         Method = 0x00
	MethodPairSetupWithAuth Method = 0x01
	MethodPairVerify        Method = 0x02
	MethodAddPairing        Method = 0x03
	MethodRemovePairing     Method = 0x04
	MethodListPairings      Method = 0x05
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodPairSetup:
		return "PairSetup"
	case MethodPairSetupWithAuth:
		return "PairSetupWithAuth"
	case MethodPairVerify:
		return "PairVerify"
	case MethodAddPairing:
		return "AddPairing"
	case MethodRemovePairing:
		return "RemovePairing"
	case MethodListPairings:
		return "ListPairings"
	default:
		return "Unknown"
	}
}

// State identifies a handshake step. Pair-setup uses M1 through M6,
// pair-verify M1 through M4. Every pairing message carries its state
// in TagState.
type State byte

const (
	StateM1 State = 0x01
	StateM2 State = 0x02
	StateM3 State = 0x03
	StateM4 State = 0x04
	StateM5 State = 0x05
	StateM6 State = 0x06
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateM1:
		return "M1"
	case StateM2:
		return "M2"
	case StateM3:
		return "M3"
	case StateM4:
		return "M4"
	case StateM5:
		return "M5"
	case StateM6:
		return "M6"
	default:
		return "Unknown"
	}
}
