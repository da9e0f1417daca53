package pairsetup

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/cliairplay/hap/pkg/crypto/srp"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/tlv8"
)

const (
	testPIN          = "031-45-154"
	testControllerID = "6dd606ec-2f0e-4ac7-95d9-196cb2c3c09a"
	testAccessoryID  = "AA:BB:CC:DD:EE:FF"
)

func newTestAccessory(t *testing.T, pin string) *Session {
	t.Helper()
	ltpk, ltsk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	accessory, err := NewAccessory(pin, testAccessoryID, ltpk, ltsk)
	if err != nil {
		t.Fatalf("NewAccessory failed: %v", err)
	}
	return accessory
}

func TestPairSetupHandshakeSuccess(t *testing.T) {
	controller, err := NewController(testPIN, testControllerID)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	accessory := newTestAccessory(t, testPIN)

	m1, err := controller.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if controller.State() != StateWaitingM2 {
		t.Errorf("Expected state WaitingM2, got %v", controller.State())
	}

	m2, err := accessory.HandleM1(m1)
	if err != nil {
		t.Fatalf("HandleM1 failed: %v", err)
	}
	if accessory.State() != StateWaitingM3 {
		t.Errorf("Expected state WaitingM3, got %v", accessory.State())
	}

	m3, err := controller.HandleM2(m2)
	if err != nil {
		t.Fatalf("HandleM2 failed: %v", err)
	}

	m4, err := accessory.HandleM3(m3)
	if err != nil {
		t.Fatalf("HandleM3 failed: %v", err)
	}

	m5, err := controller.HandleM4(m4)
	if err != nil {
		t.Fatalf("HandleM4 failed: %v", err)
	}

	m6, err := accessory.HandleM5(m5)
	if err != nil {
		t.Fatalf("HandleM5 failed: %v", err)
	}
	if accessory.State() != StateComplete {
		t.Errorf("Expected state Complete, got %v", accessory.State())
	}

	result, err := controller.HandleM6(m6)
	if err != nil {
		t.Fatalf("HandleM6 failed: %v", err)
	}
	if controller.State() != StateComplete {
		t.Errorf("Expected state Complete, got %v", controller.State())
	}

	if result.ControllerID != testControllerID {
		t.Errorf("ControllerID = %q, want %q", result.ControllerID, testControllerID)
	}
	if result.AccessoryID != testAccessoryID {
		t.Errorf("AccessoryID = %q, want %q", result.AccessoryID, testAccessoryID)
	}
	if len(result.ControllerLTPK) != ed25519.PublicKeySize {
		t.Errorf("controller LTPK size = %d, want %d", len(result.ControllerLTPK), ed25519.PublicKeySize)
	}
	if len(result.AccessoryLTPK) != ed25519.PublicKeySize {
		t.Errorf("accessory LTPK size = %d, want %d", len(result.AccessoryLTPK), ed25519.PublicKeySize)
	}

	peer := accessory.Peer()
	if peer == nil {
		t.Fatal("accessory Peer() is nil after completion")
	}
	if peer.ID != testControllerID {
		t.Errorf("peer ID = %q, want %q", peer.ID, testControllerID)
	}
	if !bytes.Equal(peer.LTPK, result.ControllerLTPK) {
		t.Error("accessory learned a different controller LTPK than the controller generated")
	}
}

func TestPairSetupWrongSetupCode(t *testing.T) {
	controller, _ := NewController("031-45-155", testControllerID)
	accessory := newTestAccessory(t, testPIN)

	m1, _ := controller.Start()
	m2, _ := accessory.HandleM1(m1)
	m3, err := controller.HandleM2(m2)
	if err != nil {
		t.Fatalf("HandleM2 failed: %v", err)
	}

	// The accessory must reject the proof and produce an error reply.
	reply, err := accessory.HandleM3(m3)
	if !errors.Is(err, srp.ErrProofMismatch) {
		t.Errorf("Expected ErrProofMismatch, got %v", err)
	}
	if accessory.State() != StateFailed {
		t.Errorf("Expected state Failed, got %v", accessory.State())
	}

	// And the controller must surface it as an authentication error.
	_, err = controller.HandleM4(reply)
	if !errors.Is(err, pairing.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication, got %v", err)
	}
	if controller.State() != StateFailed {
		t.Errorf("Expected state Failed, got %v", controller.State())
	}
}

func TestPairSetupAccessoryErrorAborts(t *testing.T) {
	controller, _ := NewController(testPIN, testControllerID)
	controller.Start()

	reply := tlv8.Marshal(pairing.NewAccessoryError(pairing.ErrorMaxTries).Items(pairing.StateM2))
	_, err := controller.HandleM2(reply)

	var accErr *pairing.AccessoryError
	if !errors.As(err, &accErr) {
		t.Fatalf("Expected AccessoryError, got %v", err)
	}
	if accErr.Code != pairing.ErrorMaxTries {
		t.Errorf("code = %v, want %v", accErr.Code, pairing.ErrorMaxTries)
	}
	if controller.State() != StateFailed {
		t.Errorf("Expected state Failed, got %v", controller.State())
	}
}

func TestPairSetupCorruptedM5(t *testing.T) {
	controller, _ := NewController(testPIN, testControllerID)
	accessory := newTestAccessory(t, testPIN)

	m1, _ := controller.Start()
	m2, _ := accessory.HandleM1(m1)
	m3, _ := controller.HandleM2(m2)
	m4, _ := accessory.HandleM3(m3)
	m5, err := controller.HandleM4(m4)
	if err != nil {
		t.Fatalf("HandleM4 failed: %v", err)
	}

	// Flip a ciphertext byte inside the encrypted data item.
	items, err := tlv8.Unmarshal(m5)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	encrypted, _ := items.Get(pairing.TagEncryptedData)
	encrypted[0] ^= 0xFF
	corrupted := tlv8.Marshal(tlv8.Items{
		{Tag: pairing.TagState, Value: []byte{byte(pairing.StateM5)}},
		{Tag: pairing.TagEncryptedData, Value: encrypted},
	})

	reply, err := accessory.HandleM5(corrupted)
	if err == nil {
		t.Fatal("Expected error for corrupted M5, got nil")
	}
	if accessory.State() != StateFailed {
		t.Errorf("Expected state Failed, got %v", accessory.State())
	}
	if reply == nil {
		t.Fatal("Expected an error reply to send before closing")
	}
	if e := pairing.ErrorFromItems(mustUnmarshal(t, reply)); e == nil || e.Code != pairing.ErrorAuthentication {
		t.Errorf("Expected authentication error reply, got %v", e)
	}
}

func TestPairSetupInvalidStateTransitions(t *testing.T) {
	t.Run("controller_double_start", func(t *testing.T) {
		controller, _ := NewController(testPIN, testControllerID)
		controller.Start()

		if _, err := controller.Start(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("controller_m4_before_m2", func(t *testing.T) {
		controller, _ := NewController(testPIN, testControllerID)
		controller.Start()

		if _, err := controller.HandleM4([]byte{}); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("accessory_start", func(t *testing.T) {
		accessory := newTestAccessory(t, testPIN)
		if _, err := accessory.Start(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("accessory_m3_before_m1", func(t *testing.T) {
		accessory := newTestAccessory(t, testPIN)
		if _, err := accessory.HandleM3([]byte{}); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("controller_handles_accessory_message", func(t *testing.T) {
		controller, _ := NewController(testPIN, testControllerID)
		if _, err := controller.HandleM1([]byte{}); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})
}

func TestPairSetupConstructorValidation(t *testing.T) {
	if _, err := NewController("bad-pin", testControllerID); !errors.Is(err, pairing.ErrInvalidSetupCode) {
		t.Errorf("Expected ErrInvalidSetupCode, got %v", err)
	}
	if _, err := NewController(testPIN, ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Expected ErrInvalidIdentity, got %v", err)
	}

	ltpk, ltsk, _ := ed25519.GenerateKey(rand.Reader)
	if _, err := NewAccessory(testPIN, "", ltpk, ltsk); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Expected ErrInvalidIdentity, got %v", err)
	}
	if _, err := NewAccessory(testPIN, testAccessoryID, ltpk[:16], ltsk); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Expected ErrInvalidIdentity, got %v", err)
	}

	// Bare 8-digit code is accepted.
	if _, err := NewController("03145154", testControllerID); err != nil {
		t.Errorf("NewController with bare code failed: %v", err)
	}
}

func mustUnmarshal(t *testing.T, data []byte) tlv8.Items {
	t.Helper()
	items, err := tlv8.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return items
}
