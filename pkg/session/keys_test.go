package session

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeys(t *testing.T) {
	secret := bytes.Repeat([]byte{0x5a}, 32)

	keys, err := DeriveKeys(secret)
	if err != nil {
		t.Fatalf("DeriveKeys failed: %v", err)
	}

	if len(keys.Write) != KeySize {
		t.Errorf("Expected write key of %d bytes, got %d", KeySize, len(keys.Write))
	}
	if len(keys.Read) != KeySize {
		t.Errorf("Expected read key of %d bytes, got %d", KeySize, len(keys.Read))
	}
	if bytes.Equal(keys.Write, keys.Read) {
		t.Error("Write and read keys should differ")
	}

	again, err := DeriveKeys(secret)
	if err != nil {
		t.Fatalf("DeriveKeys failed: %v", err)
	}
	if !bytes.Equal(keys.Write, again.Write) || !bytes.Equal(keys.Read, again.Read) {
		t.Error("Derivation should be deterministic for a given shared secret")
	}

	other, err := DeriveKeys(bytes.Repeat([]byte{0xa5}, 32))
	if err != nil {
		t.Fatalf("DeriveKeys failed: %v", err)
	}
	if bytes.Equal(keys.Write, other.Write) {
		t.Error("Different secrets should derive different keys")
	}
}

func TestDeriveKeysEmptySecret(t *testing.T) {
	for _, secret := range [][]byte{nil, {}} {
		if _, err := DeriveKeys(secret); !errors.Is(err, ErrInvalidSharedSecret) {
			t.Errorf("Expected ErrInvalidSharedSecret, got %v", err)
		}
	}
}

func TestKeysForRole(t *testing.T) {
	keys, err := DeriveKeys([]byte("pair-verify shared secret"))
	if err != nil {
		t.Fatalf("DeriveKeys failed: %v", err)
	}

	ctrlSend, ctrlRecv := keys.ForRole(RoleController)
	accSend, accRecv := keys.ForRole(RoleAccessory)

	if !bytes.Equal(ctrlSend, keys.Write) {
		t.Error("Controller should send with the write key")
	}
	if !bytes.Equal(ctrlSend, accRecv) {
		t.Error("Controller send key should match accessory receive key")
	}
	if !bytes.Equal(accSend, ctrlRecv) {
		t.Error("Accessory send key should match controller receive key")
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleController, "Controller"},
		{RoleAccessory, "Accessory"},
		{Role(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
