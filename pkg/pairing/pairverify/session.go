package pairverify

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/cliairplay/hap/pkg/crypto"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/tlv8"
)

// Role represents the pair-verify participant role.
type Role int

const (
	RoleController Role = iota
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

// State represents the pair-verify protocol state machine.
type State int

const (
	StateInit      State = iota
	StateWaitingM2       // Controller: sent M1
	StateWaitingM3       // Accessory: sent M2
	StateWaitingM4       // Controller: sent M3
	StateComplete
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateWaitingM2:
		return "WaitingM2"
	case StateWaitingM3:
		return "WaitingM3"
	case StateWaitingM4:
		return "WaitingM4"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// LookupFunc resolves a controller pairing identifier to its long-term
// public key, or nil when no pairing exists.
type LookupFunc func(id string) ed25519.PublicKey

// Session implements the pair-verify state machine.
//
// Usage (Controller):
//
//	session, _ := pairverify.NewController(controllerID, ltsk, accessoryID, accessoryLTPK)
//	m1, _ := session.Start()
//	// send m1, receive m2
//	m3, _ := session.HandleM2(m2)
//	// send m3, receive m4
//	_ = session.HandleM4(m4)
//	shared := session.SharedSecret()
//
// Usage (Accessory):
//
//	session, _ := pairverify.NewAccessory(accessoryID, ltsk, lookup)
//	// receive m1
//	m2, _ := session.HandleM1(m1)
//	// send m2, receive m3
//	m4, _ := session.HandleM3(m3)
//	// send m4
//	shared := session.SharedSecret()
//
// A session serves exactly one verification attempt.
type Session struct {
	role  Role
	state State

	// Long-term identity of the local end.
	localID   string
	localLTSK ed25519.PrivateKey

	// Expected accessory identity (Controller role).
	accessoryID   string
	accessoryLTPK ed25519.PublicKey

	// Pairing lookup (Accessory role).
	lookup LookupFunc

	// Ephemeral X25519 material for this attempt.
	localEphPub  []byte
	localEphPriv []byte
	peerEphPub   []byte

	verifyKey []byte // HKDF(shared, Pair-Verify-Encrypt-...)
	shared    []byte

	// For testing: injectable random source
	rand io.Reader

	mu sync.Mutex
}

// NewController creates a pair-verify session for the controller role
// from the stored pairing material.
func NewController(controllerID string, ltsk ed25519.PrivateKey, accessoryID string, accessoryLTPK ed25519.PublicKey) (*Session, error) {
	if controllerID == "" || len(ltsk) != ed25519.PrivateKeySize {
		return nil, ErrInvalidIdentity
	}
	if accessoryID == "" || len(accessoryLTPK) != ed25519.PublicKeySize {
		return nil, ErrInvalidIdentity
	}

	return &Session{
		role:          RoleController,
		state:         StateInit,
		localID:       controllerID,
		localLTSK:     ltsk,
		accessoryID:   accessoryID,
		accessoryLTPK: accessoryLTPK,
		rand:          rand.Reader,
	}, nil
}

// NewAccessory creates a pair-verify session for the accessory role.
// lookup resolves controller identifiers to their registered long-term
// keys.
func NewAccessory(accessoryID string, ltsk ed25519.PrivateKey, lookup LookupFunc) (*Session, error) {
	if accessoryID == "" || len(ltsk) != ed25519.PrivateKeySize {
		return nil, ErrInvalidIdentity
	}
	if lookup == nil {
		return nil, ErrInvalidIdentity
	}

	return &Session{
		role:      RoleAccessory,
		state:     StateInit,
		localID:   accessoryID,
		localLTSK: ltsk,
		lookup:    lookup,
		rand:      rand.Reader,
	}, nil
}

// Start begins the handshake (Controller only). Returns the M1 message
// bytes carrying a fresh ephemeral public key.
func (s *Session) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateInit {
		return nil, ErrInvalidState
	}

	pub, priv, err := crypto.X25519GenerateKeyPair(s.rand)
	if err != nil {
		return nil, err
	}
	s.localEphPub = pub
	s.localEphPriv = priv

	m1 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM1)}},
		{Tag: pairing.TagPublicKey, Value: pub},
	}

	s.state = StateWaitingM2
	return tlv8.Marshal(m1), nil
}

// HandleM2 verifies the accessory identity and produces the controller
// identity proof (Controller only). Returns the M3 message bytes.
func (s *Session) HandleM2(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateWaitingM2 {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM2)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	peerEph, ok := items.Get(pairing.TagPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing public key item", ErrInvalidMessage)
	}
	encrypted, ok := items.Get(pairing.TagEncryptedData)
	if !ok {
		return nil, fmt.Errorf("%w: missing encrypted data item", ErrInvalidMessage)
	}

	shared, err := crypto.X25519SharedSecret(s.localEphPriv, peerEph)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	verifyKey, err := crypto.HKDFSHA512(shared, []byte(saltVerify), []byte(infoVerify))
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.ChaCha20Poly1305Decrypt(verifyKey, crypto.PadNonce(nonceM2), encrypted, nil)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	peerID, signature, err := parseSignedIdentity(plaintext)
	if err != nil {
		return nil, err
	}

	// The signature must check out against the stored long-term key
	// before anything recovered from the payload is trusted.
	material := signingMaterial(peerEph, peerID, s.localEphPub)
	if !ed25519.Verify(s.accessoryLTPK, material, signature) {
		s.state = StateFailed
		return nil, ErrSignatureInvalid
	}
	if peerID != s.accessoryID {
		s.state = StateFailed
		return nil, ErrIdentityMismatch
	}

	s.peerEphPub = append([]byte(nil), peerEph...)
	s.verifyKey = verifyKey
	s.shared = shared

	ownSig := ed25519.Sign(s.localLTSK, signingMaterial(s.localEphPub, s.localID, peerEph))
	sub := tlv8.Marshal(tlv8.Items{
		{Tag: pairing.TagIdentifier, Value: []byte(s.localID)},
		{Tag: pairing.TagSignature, Value: ownSig},
	})
	encryptedReply, err := crypto.ChaCha20Poly1305Encrypt(verifyKey, crypto.PadNonce(nonceM3), sub, nil)
	if err != nil {
		return nil, err
	}

	m3 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM3)}},
		{Tag: pairing.TagEncryptedData, Value: encryptedReply},
	}

	s.state = StateWaitingM4
	return tlv8.Marshal(m3), nil
}

// HandleM4 completes the handshake (Controller only).
func (s *Session) HandleM4(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateWaitingM4 {
		return ErrInvalidState
	}

	if _, err := pairing.ParseMessage(data, pairing.StateM4); err != nil {
		s.state = StateFailed
		return err
	}

	s.state = StateComplete
	return nil
}

// HandleM1 consumes the controller's ephemeral key and produces the
// accessory identity proof (Accessory only). Returns the M2 message
// bytes.
func (s *Session) HandleM1(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleAccessory || s.state != StateInit {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM1)
	if err != nil {
		return nil, err
	}
	peerEph, ok := items.Get(pairing.TagPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing public key item", ErrInvalidMessage)
	}

	pub, priv, err := crypto.X25519GenerateKeyPair(s.rand)
	if err != nil {
		return nil, err
	}
	shared, err := crypto.X25519SharedSecret(priv, peerEph)
	if err != nil {
		return nil, err
	}
	verifyKey, err := crypto.HKDFSHA512(shared, []byte(saltVerify), []byte(infoVerify))
	if err != nil {
		return nil, err
	}

	signature := ed25519.Sign(s.localLTSK, signingMaterial(pub, s.localID, peerEph))
	sub := tlv8.Marshal(tlv8.Items{
		{Tag: pairing.TagIdentifier, Value: []byte(s.localID)},
		{Tag: pairing.TagSignature, Value: signature},
	})
	encrypted, err := crypto.ChaCha20Poly1305Encrypt(verifyKey, crypto.PadNonce(nonceM2), sub, nil)
	if err != nil {
		return nil, err
	}

	m2 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM2)}},
		{Tag: pairing.TagPublicKey, Value: pub},
		{Tag: pairing.TagEncryptedData, Value: encrypted},
	}

	s.localEphPub = pub
	s.localEphPriv = priv
	s.peerEphPub = append([]byte(nil), peerEph...)
	s.verifyKey = verifyKey
	s.shared = shared
	s.state = StateWaitingM3
	return tlv8.Marshal(m2), nil
}

// HandleM3 verifies the controller identity against the registered
// pairings (Accessory only). Returns the M4 message bytes. On failure
// the returned bytes carry the error response to send before closing.
func (s *Session) HandleM3(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleAccessory || s.state != StateWaitingM3 {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM3)
	if err != nil {
		return nil, err
	}
	encrypted, ok := items.Get(pairing.TagEncryptedData)
	if !ok {
		return nil, fmt.Errorf("%w: missing encrypted data item", ErrInvalidMessage)
	}

	plaintext, err := crypto.ChaCha20Poly1305Decrypt(s.verifyKey, crypto.PadNonce(nonceM3), encrypted, nil)
	if err != nil {
		s.state = StateFailed
		return s.errorResponse(pairing.ErrorAuthentication), err
	}
	peerID, signature, err := parseSignedIdentity(plaintext)
	if err != nil {
		return nil, err
	}

	ltpk := s.lookup(peerID)
	if ltpk == nil {
		s.state = StateFailed
		return s.errorResponse(pairing.ErrorAuthentication), ErrUnknownPeer
	}
	material := signingMaterial(s.peerEphPub, peerID, s.localEphPub)
	if !ed25519.Verify(ltpk, material, signature) {
		s.state = StateFailed
		return s.errorResponse(pairing.ErrorAuthentication), ErrSignatureInvalid
	}

	m4 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM4)}},
	}

	s.state = StateComplete
	return tlv8.Marshal(m4), nil
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the session role.
func (s *Session) Role() Role {
	return s.role
}

// SharedSecret returns the ephemeral Diffie-Hellman secret, the input
// to session key derivation. Returns nil until the handshake
// completed.
func (s *Session) SharedSecret() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateComplete {
		return nil
	}
	secret := make([]byte, len(s.shared))
	copy(secret, s.shared)
	return secret
}

// SetRandom sets the random source for testing purposes.
func (s *Session) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
}

// errorResponse encodes an M4 error reply.
func (s *Session) errorResponse(code pairing.ErrorCode) []byte {
	return tlv8.Marshal(pairing.NewAccessoryError(code).Items(pairing.StateM4))
}

// signingMaterial concatenates the signer's ephemeral key, its
// identifier and the peer's ephemeral key, the byte string both
// identity signatures cover.
func signingMaterial(ownEph []byte, id string, peerEph []byte) []byte {
	material := make([]byte, 0, len(ownEph)+len(id)+len(peerEph))
	material = append(material, ownEph...)
	material = append(material, id...)
	material = append(material, peerEph...)
	return material
}

// parseSignedIdentity extracts the identifier and signature from a
// decrypted identity sub-message.
func parseSignedIdentity(plaintext []byte) (id string, signature []byte, err error) {
	sub, err := tlv8.Unmarshal(plaintext)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	id, ok := sub.GetString(pairing.TagIdentifier)
	if !ok || id == "" {
		return "", nil, fmt.Errorf("%w: missing identifier item", ErrInvalidMessage)
	}
	signature, ok = sub.Get(pairing.TagSignature)
	if !ok {
		return "", nil, fmt.Errorf("%w: missing signature item", ErrInvalidMessage)
	}
	if len(signature) != ed25519.SignatureSize {
		return "", nil, fmt.Errorf("%w: signature must be %d bytes", ErrInvalidMessage, ed25519.SignatureSize)
	}

	return id, signature, nil
}
