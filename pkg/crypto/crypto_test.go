package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestHKDFSHA512(t *testing.T) {
	secret := bytes.Repeat([]byte{0x0b}, 32)

	k1, err := HKDFSHA512(secret, []byte("Pair-Setup-Encrypt-Salt"), []byte("Pair-Setup-Encrypt-Info"))
	if err != nil {
		t.Fatalf("HKDFSHA512 failed: %v", err)
	}
	if len(k1) != DerivedKeySize {
		t.Fatalf("expected %d bytes, got %d", DerivedKeySize, len(k1))
	}

	// Same inputs derive the same key.
	k1again, err := HKDFSHA512(secret, []byte("Pair-Setup-Encrypt-Salt"), []byte("Pair-Setup-Encrypt-Info"))
	if err != nil {
		t.Fatalf("HKDFSHA512 failed: %v", err)
	}
	if !bytes.Equal(k1, k1again) {
		t.Error("derivation is not deterministic")
	}

	// A different label pair derives a different key.
	k2, err := HKDFSHA512(secret, []byte("Pair-Setup-Controller-Sign-Salt"), []byte("Pair-Setup-Controller-Sign-Info"))
	if err != nil {
		t.Fatalf("HKDFSHA512 failed: %v", err)
	}
	if bytes.Equal(k1, k2) {
		t.Error("distinct labels derived the same key")
	}
}

func TestChaCha20Poly1305_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, ChaChaKeySize)
	nonce := []byte("\x00\x00\x00\x00PS-Msg05")

	testCases := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"no_aad", []byte("sub-tlv payload"), nil},
		{"with_aad", bytes.Repeat([]byte{0xA5}, 600), []byte{0x58, 0x02}},
		{"empty_plaintext", nil, []byte{0x00, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := ChaCha20Poly1305Encrypt(key, nonce, tc.plaintext, tc.aad)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if len(ct) != len(tc.plaintext)+ChaChaTagSize {
				t.Errorf("expected %d ciphertext bytes, got %d", len(tc.plaintext)+ChaChaTagSize, len(ct))
			}

			pt, err := ChaCha20Poly1305Decrypt(key, nonce, ct, tc.aad)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if !bytes.Equal(pt, tc.plaintext) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestChaCha20Poly1305_RejectsTampering(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, ChaChaKeySize)
	nonce := []byte("\x00\x00\x00\x00PV-Msg02")
	aad := []byte{0x10, 0x00}

	ct, err := ChaCha20Poly1305Encrypt(key, nonce, []byte("signed identity block"), aad)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	t.Run("flipped_ciphertext_byte", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[0] ^= 0x01
		if _, err := ChaCha20Poly1305Decrypt(key, nonce, bad, aad); err != ErrChaChaAuthFailed {
			t.Errorf("expected ErrChaChaAuthFailed, got %v", err)
		}
	})

	t.Run("flipped_tag_byte", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[len(bad)-1] ^= 0x01
		if _, err := ChaCha20Poly1305Decrypt(key, nonce, bad, aad); err != ErrChaChaAuthFailed {
			t.Errorf("expected ErrChaChaAuthFailed, got %v", err)
		}
	})

	t.Run("wrong_nonce", func(t *testing.T) {
		other := []byte("\x00\x00\x00\x00PV-Msg03")
		if _, err := ChaCha20Poly1305Decrypt(key, other, ct, aad); err != ErrChaChaAuthFailed {
			t.Errorf("expected ErrChaChaAuthFailed, got %v", err)
		}
	})

	t.Run("wrong_aad", func(t *testing.T) {
		if _, err := ChaCha20Poly1305Decrypt(key, nonce, ct, []byte{0x11, 0x00}); err != ErrChaChaAuthFailed {
			t.Errorf("expected ErrChaChaAuthFailed, got %v", err)
		}
	})

	t.Run("short_ciphertext", func(t *testing.T) {
		if _, err := ChaCha20Poly1305Decrypt(key, nonce, ct[:ChaChaTagSize-1], aad); err != ErrChaChaCiphertextTooShort {
			t.Errorf("expected ErrChaChaCiphertextTooShort, got %v", err)
		}
	})

	t.Run("bad_nonce_size", func(t *testing.T) {
		if _, err := ChaCha20Poly1305Encrypt(key, nonce[:8], nil, nil); err != ErrChaChaInvalidNonceSize {
			t.Errorf("expected ErrChaChaInvalidNonceSize, got %v", err)
		}
	})
}

func TestX25519(t *testing.T) {
	alicePub, alicePriv, err := X25519GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	bobPub, bobPriv, err := X25519GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	s1, err := X25519SharedSecret(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("shared secret failed: %v", err)
	}
	s2, err := X25519SharedSecret(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("shared secret failed: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("shared secrets disagree")
	}

	if _, err := X25519SharedSecret(alicePriv[:16], bobPub); err != ErrX25519InvalidKeySize {
		t.Errorf("expected ErrX25519InvalidKeySize, got %v", err)
	}

	// An all-zero peer key is a low-order point and must be rejected.
	if _, err := X25519SharedSecret(alicePriv, make([]byte, X25519KeySize)); err != ErrX25519BadPeerKey {
		t.Errorf("expected ErrX25519BadPeerKey, got %v", err)
	}
}

func TestX25519_Deterministic(t *testing.T) {
	seed := bytes.NewReader(bytes.Repeat([]byte{0x07}, 64))
	pub1, priv1, err := X25519GenerateKeyPair(seed)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	seed2 := bytes.NewReader(bytes.Repeat([]byte{0x07}, 64))
	pub2, priv2, err := X25519GenerateKeyPair(seed2)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if !bytes.Equal(pub1, pub2) || !bytes.Equal(priv1, priv2) {
		t.Error("same randomness should produce the same key pair")
	}
}

func TestPadNonce(t *testing.T) {
	nonce := PadNonce([]byte("PS-Msg05"))
	want := []byte{0, 0, 0, 0, 'P', 'S', '-', 'M', 's', 'g', '0', '5'}
	if !bytes.Equal(nonce, want) {
		t.Errorf("nonce = %x, want %x", nonce, want)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for short nonce value")
		}
	}()
	PadNonce([]byte("short"))
}

func TestEd25519GenerateKeyPair(t *testing.T) {
	pub, priv, err := Ed25519GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	msg := []byte("attested payload")
	sig := ed25519.Sign(priv, msg)
	if !ed25519.Verify(pub, msg, sig) {
		t.Error("signature did not verify against its own public key")
	}
}
