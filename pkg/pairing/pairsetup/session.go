package pairsetup

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/cliairplay/hap/pkg/crypto"
	"github.com/cliairplay/hap/pkg/crypto/srp"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/tlv8"
)

// Role represents the pair-setup participant role.
type Role int

const (
	// RoleController is the client who knows the setup code and
	// registers a fresh long-term key with the accessory.
	RoleController Role = iota
	// RoleAccessory is the device being paired.
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

// State represents the pair-setup protocol state machine.
type State int

const (
	StateInit      State = iota
	StateWaitingM2       // Controller: sent M1
	StateWaitingM3       // Accessory: sent M2
	StateWaitingM4       // Controller: sent M3
	StateWaitingM5       // Accessory: sent M4
	StateWaitingM6       // Controller: sent M5
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
	case StateWaitingM5:
		return "WaitingM5"
	case StateWaitingM6:
		return "WaitingM6"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Session implements the pair-setup state machine.
//
// Usage (Controller):
//
//	session, _ := pairsetup.NewController(pin, controllerID)
//	m1, _ := session.Start()
//	// send m1, receive m2
//	m3, _ := session.HandleM2(m2)
//	// send m3, receive m4
//	m5, _ := session.HandleM4(m4)
//	// send m5, receive m6
//	result, _ := session.HandleM6(m6)
//
// Usage (Accessory):
//
//	session, _ := pairsetup.NewAccessory(pin, accessoryID, ltpk, ltsk)
//	// receive m1
//	m2, _ := session.HandleM1(m1)
//	// send m2, receive m3
//	m4, _ := session.HandleM3(m3)
//	// send m4, receive m5
//	m6, _ := session.HandleM5(m5)
//	// send m6
//	controller := session.Peer()
//
// A session serves exactly one pairing attempt. Any error aborts the
// attempt; partial state is discarded with the session.
type Session struct {
	role  Role
	state State

	pin string

	// Long-term identity of the local end. The controller generates
	// its keypair while building M5; the accessory is constructed with
	// its own.
	localID   string
	localLTPK ed25519.PublicKey
	localLTSK ed25519.PrivateKey

	// Peer identity recovered from the encrypted exchange.
	peerID   string
	peerLTPK ed25519.PublicKey

	// SRP sides, one of which is set depending on role.
	client *srp.ClientSession
	server *srp.ServerSession

	sessionKey []byte // SRP shared key K
	encKey     []byte // HKDF(K, Pair-Setup-Encrypt-...)

	// For testing: injectable random source
	rand io.Reader

	mu sync.Mutex
}

// NewController creates a pair-setup session for the controller role.
// The setup code may be in dashed or bare 8-digit form; controllerID
// is the pairing identifier to register with the accessory.
func NewController(pin, controllerID string) (*Session, error) {
	canonical, err := pairing.NormalizePIN(pin)
	if err != nil {
		return nil, err
	}
	if controllerID == "" {
		return nil, ErrInvalidIdentity
	}

	return &Session{
		role:    RoleController,
		state:   StateInit,
		pin:     canonical,
		localID: controllerID,
		rand:    rand.Reader,
	}, nil
}

// NewAccessory creates a pair-setup session for the accessory role
// with the accessory's long-term identity.
func NewAccessory(pin, accessoryID string, ltpk ed25519.PublicKey, ltsk ed25519.PrivateKey) (*Session, error) {
	canonical, err := pairing.NormalizePIN(pin)
	if err != nil {
		return nil, err
	}
	if accessoryID == "" {
		return nil, ErrInvalidIdentity
	}
	if len(ltpk) != ed25519.PublicKeySize || len(ltsk) != ed25519.PrivateKeySize {
		return nil, ErrInvalidIdentity
	}

	return &Session{
		role:      RoleAccessory,
		state:     StateInit,
		pin:       canonical,
		localID:   accessoryID,
		localLTPK: ltpk,
		localLTSK: ltsk,
		rand:      rand.Reader,
	}, nil
}

// Start begins the handshake (Controller only). Returns the M1 message
// bytes.
func (s *Session) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateInit {
		return nil, ErrInvalidState
	}

	m1 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM1)}},
		{Tag: pairing.TagMethod, Value: []byte{byte(pairing.MethodPairSetup)}},
	}

	s.state = StateWaitingM2
	return tlv8.Marshal(m1), nil
}

// HandleM2 processes the salt and SRP public value from the accessory
// (Controller only). Returns the M3 message bytes.
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

	salt, ok := items.Get(pairing.TagSalt)
	if !ok {
		return nil, fmt.Errorf("%w: missing salt item", ErrInvalidMessage)
	}
	serverPublic, ok := items.Get(pairing.TagPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing public key item", ErrInvalidMessage)
	}

	client := srp.NewClientSession(s.pin)
	client.SetRandom(s.rand)
	if err := client.SetServerParams(salt, serverPublic); err != nil {
		s.state = StateFailed
		return nil, err
	}

	clientPublic, err := client.PublicKey()
	if err != nil {
		return nil, err
	}
	proof, err := client.Proof()
	if err != nil {
		return nil, err
	}

	m3 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM3)}},
		{Tag: pairing.TagPublicKey, Value: clientPublic},
		{Tag: pairing.TagProof, Value: proof},
	}

	s.client = client
	s.state = StateWaitingM4
	return tlv8.Marshal(m3), nil
}

// HandleM4 verifies the accessory's SRP proof and produces the
// encrypted identity exchange (Controller only). Returns the M5
// message bytes.
func (s *Session) HandleM4(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateWaitingM4 {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM4)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	proof, ok := items.Get(pairing.TagProof)
	if !ok {
		return nil, fmt.Errorf("%w: missing proof item", ErrInvalidMessage)
	}
	if err := s.client.VerifyServerProof(proof); err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.sessionKey = s.client.SessionKey()

	s.encKey, err = crypto.HKDFSHA512(s.sessionKey, []byte(saltEncrypt), []byte(infoEncrypt))
	if err != nil {
		return nil, err
	}

	// Fresh long-term identity for this pairing.
	ltpk, ltsk, err := crypto.Ed25519GenerateKeyPair(s.rand)
	if err != nil {
		return nil, err
	}
	s.localLTPK = ltpk
	s.localLTSK = ltsk

	deviceX, err := crypto.HKDFSHA512(s.sessionKey, []byte(saltController), []byte(infoController))
	if err != nil {
		return nil, err
	}
	signature := ed25519.Sign(ltsk, signingMaterial(deviceX, s.localID, ltpk))

	sub := tlv8.Marshal(tlv8.Items{
		{Tag: pairing.TagIdentifier, Value: []byte(s.localID)},
		{Tag: pairing.TagPublicKey, Value: ltpk},
		{Tag: pairing.TagSignature, Value: signature},
	})
	encrypted, err := crypto.ChaCha20Poly1305Encrypt(s.encKey, crypto.PadNonce(nonceM5), sub, nil)
	if err != nil {
		return nil, err
	}

	m5 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM5)}},
		{Tag: pairing.TagEncryptedData, Value: encrypted},
	}

	s.state = StateWaitingM6
	return tlv8.Marshal(m5), nil
}

// HandleM6 decrypts the accessory identity, verifies its signature and
// completes the handshake (Controller only).
func (s *Session) HandleM6(data []byte) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleController || s.state != StateWaitingM6 {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM6)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	encrypted, ok := items.Get(pairing.TagEncryptedData)
	if !ok {
		return nil, fmt.Errorf("%w: missing encrypted data item", ErrInvalidMessage)
	}
	plaintext, err := crypto.ChaCha20Poly1305Decrypt(s.encKey, crypto.PadNonce(nonceM6), encrypted, nil)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	accessoryID, accessoryLTPK, signature, err := parseIdentity(plaintext)
	if err != nil {
		return nil, err
	}

	accessoryX, err := crypto.HKDFSHA512(s.sessionKey, []byte(saltAccessory), []byte(infoAccessory))
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(accessoryLTPK, signingMaterial(accessoryX, accessoryID, accessoryLTPK), signature) {
		s.state = StateFailed
		return nil, ErrSignatureInvalid
	}

	s.peerID = accessoryID
	s.peerLTPK = accessoryLTPK
	s.state = StateComplete

	return &Result{
		ControllerID:   s.localID,
		ControllerLTPK: s.localLTPK,
		ControllerLTSK: s.localLTSK,
		AccessoryID:    accessoryID,
		AccessoryLTPK:  accessoryLTPK,
	}, nil
}

// HandleM1 processes the pairing request (Accessory only). Returns the
// M2 message bytes carrying the salt and SRP public value.
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
	method, ok := items.GetByte(pairing.TagMethod)
	if !ok {
		return nil, fmt.Errorf("%w: missing method item", ErrInvalidMessage)
	}
	if m := pairing.Method(method); m != pairing.MethodPairSetup && m != pairing.MethodPairSetupWithAuth {
		return nil, fmt.Errorf("%w: unsupported method %s", ErrInvalidMessage, m)
	}

	salt, verifier, err := srp.ComputeVerifier(s.rand, s.pin)
	if err != nil {
		return nil, err
	}
	server := srp.NewServerSession(salt, verifier)
	server.SetRandom(s.rand)
	serverPublic, err := server.PublicKey()
	if err != nil {
		return nil, err
	}

	m2 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM2)}},
		{Tag: pairing.TagSalt, Value: salt},
		{Tag: pairing.TagPublicKey, Value: serverPublic},
	}

	s.server = server
	s.state = StateWaitingM3
	return tlv8.Marshal(m2), nil
}

// HandleM3 verifies the controller's SRP proof (Accessory only).
// Returns the M4 message bytes. On a failed proof the returned bytes
// carry the authentication error response to send before closing, and
// the error reports the mismatch.
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
	clientPublic, ok := items.Get(pairing.TagPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing public key item", ErrInvalidMessage)
	}
	proof, ok := items.Get(pairing.TagProof)
	if !ok {
		return nil, fmt.Errorf("%w: missing proof item", ErrInvalidMessage)
	}

	if err := s.server.SetClientPublicKey(clientPublic); err != nil {
		s.state = StateFailed
		return s.errorResponse(pairing.StateM4, pairing.ErrorAuthentication), err
	}
	if err := s.server.VerifyClientProof(proof); err != nil {
		s.state = StateFailed
		return s.errorResponse(pairing.StateM4, pairing.ErrorAuthentication), err
	}
	s.sessionKey = s.server.SessionKey()

	s.encKey, err = crypto.HKDFSHA512(s.sessionKey, []byte(saltEncrypt), []byte(infoEncrypt))
	if err != nil {
		return nil, err
	}
	serverProof, err := s.server.Proof()
	if err != nil {
		return nil, err
	}

	m4 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM4)}},
		{Tag: pairing.TagProof, Value: serverProof},
	}

	s.state = StateWaitingM5
	return tlv8.Marshal(m4), nil
}

// HandleM5 decrypts and verifies the controller identity, then returns
// the M6 message bytes carrying the accessory identity (Accessory
// only). On verification failure the returned bytes carry the error
// response to send before closing.
func (s *Session) HandleM5(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleAccessory || s.state != StateWaitingM5 {
		return nil, ErrInvalidState
	}

	items, err := pairing.ParseMessage(data, pairing.StateM5)
	if err != nil {
		return nil, err
	}
	encrypted, ok := items.Get(pairing.TagEncryptedData)
	if !ok {
		return nil, fmt.Errorf("%w: missing encrypted data item", ErrInvalidMessage)
	}

	plaintext, err := crypto.ChaCha20Poly1305Decrypt(s.encKey, crypto.PadNonce(nonceM5), encrypted, nil)
	if err != nil {
		s.state = StateFailed
		return s.errorResponse(pairing.StateM6, pairing.ErrorAuthentication), err
	}
	controllerID, controllerLTPK, signature, err := parseIdentity(plaintext)
	if err != nil {
		return nil, err
	}

	deviceX, err := crypto.HKDFSHA512(s.sessionKey, []byte(saltController), []byte(infoController))
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(controllerLTPK, signingMaterial(deviceX, controllerID, controllerLTPK), signature) {
		s.state = StateFailed
		return s.errorResponse(pairing.StateM6, pairing.ErrorAuthentication), ErrSignatureInvalid
	}

	s.peerID = controllerID
	s.peerLTPK = controllerLTPK

	accessoryX, err := crypto.HKDFSHA512(s.sessionKey, []byte(saltAccessory), []byte(infoAccessory))
	if err != nil {
		return nil, err
	}
	accessorySig := ed25519.Sign(s.localLTSK, signingMaterial(accessoryX, s.localID, s.localLTPK))

	sub := tlv8.Marshal(tlv8.Items{
		{Tag: pairing.TagIdentifier, Value: []byte(s.localID)},
		{Tag: pairing.TagPublicKey, Value: s.localLTPK},
		{Tag: pairing.TagSignature, Value: accessorySig},
	})
	encryptedReply, err := crypto.ChaCha20Poly1305Encrypt(s.encKey, crypto.PadNonce(nonceM6), sub, nil)
	if err != nil {
		return nil, err
	}

	m6 := tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM6)}},
		{Tag: pairing.TagEncryptedData, Value: encryptedReply},
	}

	s.state = StateComplete
	return tlv8.Marshal(m6), nil
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

// Peer returns the controller identity learned during the exchange
// (Accessory only). Returns nil until the handshake completed.
func (s *Session) Peer() *ControllerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateComplete || s.role != RoleAccessory {
		return nil
	}
	return &ControllerIdentity{ID: s.peerID, LTPK: s.peerLTPK}
}

// SetRandom sets the random source for testing purposes.
func (s *Session) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
}

// errorResponse encodes an error reply for the given handshake state.
func (s *Session) errorResponse(state pairing.State, code pairing.ErrorCode) []byte {
	return tlv8.Marshal(pairing.NewAccessoryError(code).Items(state))
}

// signingMaterial concatenates the derived key with the identity and
// long-term public key, the byte string both identity signatures
// cover.
func signingMaterial(derivedKey []byte, id string, ltpk []byte) []byte {
	material := make([]byte, 0, len(derivedKey)+len(id)+len(ltpk))
	material = append(material, derivedKey...)
	material = append(material, id...)
	material = append(material, ltpk...)
	return material
}

// parseIdentity extracts the identifier, public key and signature from
// a decrypted identity sub-message.
func parseIdentity(plaintext []byte) (id string, ltpk ed25519.PublicKey, signature []byte, err error) {
	sub, err := tlv8.Unmarshal(plaintext)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	id, ok := sub.GetString(pairing.TagIdentifier)
	if !ok || id == "" {
		return "", nil, nil, fmt.Errorf("%w: missing identifier item", ErrInvalidMessage)
	}
	key, ok := sub.Get(pairing.TagPublicKey)
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: missing public key item", ErrInvalidMessage)
	}
	if len(key) != ed25519.PublicKeySize {
		return "", nil, nil, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidMessage, ed25519.PublicKeySize)
	}
	signature, ok = sub.Get(pairing.TagSignature)
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: missing signature item", ErrInvalidMessage)
	}
	if len(signature) != ed25519.SignatureSize {
		return "", nil, nil, fmt.Errorf("%w: signature must be %d bytes", ErrInvalidMessage, ed25519.SignatureSize)
	}

	return id, ed25519.PublicKey(key), signature, nil
}
