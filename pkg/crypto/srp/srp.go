// Package srp implements the SRP-6a Secure Remote Password protocol as
// used by HAP pair-setup.
//
// SRP is an augmented PAKE: the client knows the setup code directly,
// while the server stores only a salted verifier derived from it. A
// successful exchange proves to each side that the other knows the
// code and yields a shared session key without ever transmitting the
// code itself.
//
// This implementation follows:
//   - RFC 5054: the 3072-bit group (generator 5) and padding rules
//   - RFC 2945: the password hash x = H(salt || H(identity ":" code))
//
// with SHA-512 as the hash throughout and the identity fixed to
// "Pair-Setup", as HAP requires.
//
// Protocol flow:
//
//	Controller (client)              Accessory (server)
//	-------------------              -------------------
//	                                 salt, v = ComputeVerifier(code)
//	NewClientSession(code)           NewServerSession(salt, v)
//	                  <--salt, B--   PublicKey()
//	SetServerParams(salt, B)
//	PublicKey()       ----A------>   SetClientPublicKey(A)
//	Proof()           ----M1----->   VerifyClientProof(M1)
//	                  <----M2-----   Proof()
//	VerifyServerProof(M2)
//	SessionKey()                     SessionKey()
//
// Inside every hash, public values and the premaster secret are padded
// to the full 384-byte group width; both roles here use the same
// convention so leading-zero values round-trip identically.
package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"io"
	"math/big"
)

// Group parameters.
const (
	// GroupSizeBytes is the size of the 3072-bit group modulus. Public
	// values are exchanged at this width.
	GroupSizeBytes = 384

	// SaltSize is the salt length a server generates (RFC 5054 suggests
	// at least 8 bytes; HAP accessories use 16).
	SaltSize = 16

	// HashSizeBytes is the SHA-512 output size.
	HashSizeBytes = 64

	// privateSize is the length of the random ephemeral secret each
	// side draws per exchange.
	privateSize = 32

	// Identity is the SRP username. HAP fixes it for every pairing.
	Identity = "Pair-Setup"
)

// groupN is the RFC 5054 3072-bit group modulus (the RFC 3526 MODP
// group 15 prime); groupG is its generator.
var (
	groupN = mustParseGroup(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
			"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
			"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
			"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
			"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
			"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
			"3995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33" +
			"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
			"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864" +
			"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E2" +
			"08E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF")

	groupG = big.NewInt(5)
)

// state represents the per-session protocol state machine.
type state int

const (
	stateInit state = iota
	stateShareGenerated
	stateKeyed
	stateConfirmed
)

// Errors
var (
	ErrPublicKeyOutOfRange = errors.New("srp: peer public key is a multiple of the group modulus")
	ErrScramblingZero      = errors.New("srp: scrambling parameter is zero")
	ErrProofMismatch       = errors.New("srp: peer proof verification failed")
	ErrInvalidState        = errors.New("srp: invalid protocol state for this operation")
)

// ClientSession is the controller side of one SRP exchange. A session
// is single-use: it serves exactly one pairing attempt.
type ClientSession struct {
	code string
	salt []byte

	a *big.Int // ephemeral secret
	A *big.Int // ephemeral public value
	B *big.Int // server public value

	sessionKey  []byte // K = H(PAD(S))
	clientProof []byte // M1

	state state
	rand  io.Reader
}

// NewClientSession creates the client side for the given setup code.
// The code must already be in canonical XXX-XX-XXX form.
func NewClientSession(code string) *ClientSession {
	return &ClientSession{
		code:  code,
		state: stateInit,
		rand:  rand.Reader,
	}
}

// SetRandom sets the random source. This should only be used in tests
// to inject deterministic random values.
func (c *ClientSession) SetRandom(r io.Reader) {
	c.rand = r
}

// SetServerParams consumes the salt and server public value from the
// accessory and computes the client public value, the session key and
// the client proof. A server public value that is a multiple of the
// modulus, or an exchange whose scrambling parameter collapses to
// zero, is a protocol violation and is rejected.
func (c *ClientSession) SetServerParams(salt, serverPublic []byte) error {
	if c.state != stateInit {
		return ErrInvalidState
	}

	B := new(big.Int).SetBytes(serverPublic)
	if new(big.Int).Mod(B, groupN).Sign() == 0 {
		return ErrPublicKeyOutOfRange
	}

	a, err := generatePrivate(c.rand)
	if err != nil {
		return err
	}
	A := new(big.Int).Exp(groupG, a, groupN)

	u := computeU(A, B)
	if u.Sign() == 0 {
		return ErrScramblingZero
	}

	x := computeX(salt, c.code)
	k := computeK()

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(groupG, x, groupN)
	base := new(big.Int).Sub(B, new(big.Int).Mul(k, gx))
	base.Mod(base, groupN)
	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, groupN)

	c.salt = copyBytes(salt)
	c.a = a
	c.A = A
	c.B = B
	c.sessionKey = hashParts(pad(S))
	c.clientProof = computeClientProof(c.salt, A, B, c.sessionKey)
	c.state = stateKeyed

	return nil
}

// PublicKey returns the client public value A at the full group width.
func (c *ClientSession) PublicKey() ([]byte, error) {
	if c.state < stateKeyed {
		return nil, ErrInvalidState
	}
	return pad(c.A), nil
}

// Proof returns the client evidence M1:
//
//	M1 = H( H(N) xor H(g) || H(I) || salt || A || B || K )
func (c *ClientSession) Proof() ([]byte, error) {
	if c.state < stateKeyed {
		return nil, ErrInvalidState
	}
	return copyBytes(c.clientProof), nil
}

// VerifyServerProof checks the accessory's evidence M2 = H(A||M1||K).
// A mismatch means the accessory does not hold the verifier for this
// setup code.
func (c *ClientSession) VerifyServerProof(proof []byte) error {
	if c.state < stateKeyed {
		return ErrInvalidState
	}
	expected := computeServerProof(c.A, c.clientProof, c.sessionKey)
	if !hmac.Equal(expected, proof) {
		return ErrProofMismatch
	}
	c.state = stateConfirmed
	return nil
}

// SessionKey returns the shared session key K. Valid once the server
// parameters have been processed; callers must not release it to other
// components before the peer's proof verified.
func (c *ClientSession) SessionKey() []byte {
	return copyBytes(c.sessionKey)
}

// ServerSession is the accessory side of one SRP exchange, used by the
// in-process accessory and exchange tests.
type ServerSession struct {
	salt     []byte
	verifier *big.Int

	b *big.Int
	B *big.Int
	A *big.Int

	sessionKey  []byte
	clientProof []byte // verified M1, input to M2

	state state
	rand  io.Reader
}

// NewServerSession creates the accessory side from a previously
// computed salt and verifier.
func NewServerSession(salt, verifier []byte) *ServerSession {
	return &ServerSession{
		salt:     copyBytes(salt),
		verifier: new(big.Int).SetBytes(verifier),
		state:    stateInit,
		rand:     rand.Reader,
	}
}

// SetRandom sets the random source. This should only be used in tests
// to inject deterministic random values.
func (s *ServerSession) SetRandom(r io.Reader) {
	s.rand = r
}

// PublicKey generates the ephemeral secret on first use and returns
// the server public value B = k*v + g^b at the full group width.
func (s *ServerSession) PublicKey() ([]byte, error) {
	if s.state == stateInit {
		b, err := generatePrivate(s.rand)
		if err != nil {
			return nil, err
		}
		k := computeK()
		B := new(big.Int).Mul(k, s.verifier)
		B.Add(B, new(big.Int).Exp(groupG, b, groupN))
		B.Mod(B, groupN)

		s.b = b
		s.B = B
		s.state = stateShareGenerated
	}
	if s.state != stateShareGenerated {
		return nil, ErrInvalidState
	}
	return pad(s.B), nil
}

// SetClientPublicKey consumes the client public value and computes the
// session key S = (A * v^u) ^ b.
func (s *ServerSession) SetClientPublicKey(clientPublic []byte) error {
	if s.state != stateShareGenerated {
		return ErrInvalidState
	}

	A := new(big.Int).SetBytes(clientPublic)
	if new(big.Int).Mod(A, groupN).Sign() == 0 {
		return ErrPublicKeyOutOfRange
	}

	u := computeU(A, s.B)
	if u.Sign() == 0 {
		return ErrScramblingZero
	}

	base := new(big.Int).Exp(s.verifier, u, groupN)
	base.Mul(base, A)
	base.Mod(base, groupN)
	S := new(big.Int).Exp(base, s.b, groupN)

	s.A = A
	s.sessionKey = hashParts(pad(S))
	s.state = stateKeyed

	return nil
}

// VerifyClientProof checks the client evidence M1. It must succeed
// before Proof() will produce the server evidence.
func (s *ServerSession) VerifyClientProof(proof []byte) error {
	if s.state != stateKeyed {
		return ErrInvalidState
	}
	expected := computeClientProof(s.salt, s.A, s.B, s.sessionKey)
	if !hmac.Equal(expected, proof) {
		return ErrProofMismatch
	}
	s.clientProof = copyBytes(proof)
	s.state = stateConfirmed
	return nil
}

// Proof returns the server evidence M2 = H(A||M1||K). Only available
// after the client's proof verified.
func (s *ServerSession) Proof() ([]byte, error) {
	if s.state != stateConfirmed {
		return nil, ErrInvalidState
	}
	return computeServerProof(s.A, s.clientProof, s.sessionKey), nil
}

// SessionKey returns the shared session key K.
func (s *ServerSession) SessionKey() []byte {
	return copyBytes(s.sessionKey)
}

// ComputeVerifier derives a fresh salt and the password verifier
// v = g^x for the given setup code. This is what an accessory stores
// instead of the code.
func ComputeVerifier(r io.Reader, code string) (salt, verifier []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err = io.ReadFull(r, salt); err != nil {
		return nil, nil, err
	}
	x := computeX(salt, code)
	v := new(big.Int).Exp(groupG, x, groupN)
	return salt, pad(v), nil
}

// Shared computations

// computeX derives the password hash x = H(salt || H(I ":" P)).
func computeX(salt []byte, code string) *big.Int {
	inner := hashParts([]byte(Identity), []byte(":"), []byte(code))
	return new(big.Int).SetBytes(hashParts(salt, inner))
}

// computeK derives the multiplier k = H(N || PAD(g)).
func computeK() *big.Int {
	return new(big.Int).SetBytes(hashParts(pad(groupN), pad(groupG)))
}

// computeU derives the scrambling parameter u = H(PAD(A) || PAD(B)).
func computeU(A, B *big.Int) *big.Int {
	return new(big.Int).SetBytes(hashParts(pad(A), pad(B)))
}

// computeClientProof builds M1 = H(H(N) xor H(g) || H(I) || s || A || B || K).
func computeClientProof(salt []byte, A, B *big.Int, sessionKey []byte) []byte {
	hN := hashParts(pad(groupN))
	hg := hashParts(pad(groupG))
	group := make([]byte, HashSizeBytes)
	for i := range group {
		group[i] = hN[i] ^ hg[i]
	}
	hI := hashParts([]byte(Identity))
	return hashParts(group, hI, salt, pad(A), pad(B), sessionKey)
}

// computeServerProof builds M2 = H(A || M1 || K).
func computeServerProof(A *big.Int, clientProof, sessionKey []byte) []byte {
	return hashParts(pad(A), clientProof, sessionKey)
}

func hashParts(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// pad left-pads a value to the group width.
func pad(v *big.Int) []byte {
	out := make([]byte, GroupSizeBytes)
	v.FillBytes(out)
	return out
}

func generatePrivate(r io.Reader) (*big.Int, error) {
	for {
		b := make([]byte, privateSize)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(b)
		if k.Sign() > 0 {
			return k, nil
		}
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func mustParseGroup(hex string) *big.Int {
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("srp: invalid group modulus")
	}
	return n
}
