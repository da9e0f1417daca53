package hap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/cliairplay/hap/pkg/accessory"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/transport"
)

const (
	e2ePIN  = "031-45-154"
	e2eAddr = "192.168.1.40:7000"
)

// pipeDialer returns a DialFunc serving every dialed connection from
// the emulated accessory over an in-memory pipe.
func pipeDialer(acc *EmulatedAccessory) DialFunc {
	return func(ctx context.Context, address string) (net.Conn, error) {
		client, server := transport.Pipe()
		go acc.ServeConn(server)
		return client, nil
	}
}

func newTestRig(t *testing.T) (*Controller, *EmulatedAccessory) {
	t.Helper()

	acc, err := NewEmulatedAccessory(AccessoryConfig{
		PIN:      e2ePIN,
		Database: accessory.NewSpeakerDatabase("Test Speaker", 45, false),
	})
	if err != nil {
		t.Fatalf("NewEmulatedAccessory() error = %v", err)
	}

	controller := NewController(Config{
		Storage: NewMemoryStorage(),
		Dial:    pipeDialer(acc),
	})
	return controller, acc
}

func TestPairEstablishesMatchingIdentities(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	controller, acc := newTestRig(t)
	ctx := context.Background()

	record, err := controller.Pair(ctx, e2eAddr, e2ePIN)
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}

	if record.AccessoryID != acc.ID() {
		t.Errorf("record accessory ID = %q, want %q", record.AccessoryID, acc.ID())
	}
	if !record.AccessoryLTPK.Equal(acc.LTPK()) {
		t.Error("record accessory key does not match the accessory identity")
	}
	if record.AccessoryAddress != "192.168.1.40" || record.AccessoryPort != 7000 {
		t.Errorf("record address = %s:%d, want 192.168.1.40:7000", record.AccessoryAddress, record.AccessoryPort)
	}

	controllers := acc.PairedControllers()
	if len(controllers) != 1 || controllers[0] != record.ControllerID {
		t.Errorf("accessory pairings = %v, want [%s]", controllers, record.ControllerID)
	}

	if _, ok := controller.Storage().LookupPairing(e2eAddr); !ok {
		t.Error("Pair() did not persist the record")
	}
}

func TestPairWrongPINFailsAuthentication(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)

	_, err := controller.Pair(context.Background(), e2eAddr, "999-99-999")
	if !errors.Is(err, pairing.ErrAuthentication) {
		t.Fatalf("Pair() error = %v, want ErrAuthentication", err)
	}
	if _, ok := controller.Storage().LookupPairing(e2eAddr); ok {
		t.Error("failed Pair() left a record behind")
	}
}

func TestPairRefusesExistingRecord(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); !errors.Is(err, ErrAlreadyPaired) {
		t.Errorf("second Pair() error = %v, want ErrAlreadyPaired", err)
	}
}

func TestPairAgainstPairedAccessoryFails(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, acc := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}

	// A second controller against the same accessory gets the
	// accessory-signaled error, not an authentication failure.
	second := NewController(Config{Dial: pipeDialer(acc)})
	_, err := second.Pair(ctx, e2eAddr, e2ePIN)
	if !errors.Is(err, pairing.ErrAccessory) {
		t.Fatalf("Pair() error = %v, want ErrAccessory", err)
	}
	if errors.Is(err, pairing.ErrAuthentication) {
		t.Error("already-paired error should not look like an authentication failure")
	}
}

func TestConnectWithoutPairingFails(t *testing.T) {
	controller, _ := newTestRig(t)

	_, err := controller.Connect(context.Background(), e2eAddr)
	if !errors.Is(err, ErrNotPaired) {
		t.Errorf("Connect() error = %v, want ErrNotPaired", err)
	}
}

func TestSessionCharacteristicOperations(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	sess, err := controller.Connect(ctx, e2eAddr)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	accessories, err := sess.Accessories(ctx)
	if err != nil {
		t.Fatalf("Accessories() error = %v", err)
	}
	if len(accessories) != 1 {
		t.Fatalf("Accessories() returned %d accessories, want 1", len(accessories))
	}

	c, aid, err := sess.Find(ctx, accessory.ByType(accessory.TypeVolume))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	value, err := sess.GetCharacteristic(ctx, aid, c.IID)
	if err != nil {
		t.Fatalf("GetCharacteristic() error = %v", err)
	}
	if got, err := accessory.Int(value); err != nil || got != 45 {
		t.Errorf("GetCharacteristic() = %v (%v), want 45", value, err)
	}

	if err := sess.SetCharacteristic(ctx, aid, c.IID, 30); err != nil {
		t.Fatalf("SetCharacteristic() error = %v", err)
	}
	value, err = sess.GetCharacteristic(ctx, aid, c.IID)
	if err != nil {
		t.Fatalf("GetCharacteristic() after set error = %v", err)
	}
	if got, err := accessory.Int(value); err != nil || got != 30 {
		t.Errorf("GetCharacteristic() after set = %v (%v), want 30", value, err)
	}
}

func TestSpeakerHelpers(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	sess, err := controller.Connect(ctx, e2eAddr)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	if volume, err := sess.Volume(ctx); err != nil || volume != 45 {
		t.Errorf("Volume() = %d, %v, want 45", volume, err)
	}
	if err := sess.SetVolume(ctx, 30); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if volume, err := sess.Volume(ctx); err != nil || volume != 30 {
		t.Errorf("Volume() after set = %d, %v, want 30", volume, err)
	}

	if err := sess.SetVolume(ctx, 150); err == nil {
		t.Error("SetVolume(150) accepted an out-of-range value")
	}

	if mute, err := sess.Mute(ctx); err != nil || mute {
		t.Errorf("Mute() = %v, %v, want false", mute, err)
	}
	if err := sess.SetMute(ctx, true); err != nil {
		t.Fatalf("SetMute() error = %v", err)
	}
	if mute, err := sess.Mute(ctx); err != nil || !mute {
		t.Errorf("Mute() after set = %v, %v, want true", mute, err)
	}
}

func TestSessionClosedAfterClose(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	sess, err := controller.Connect(ctx, e2eAddr)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := sess.GetCharacteristic(ctx, 1, 10); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("GetCharacteristic() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestSessionTornDownAfterTransportFailure(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	controller, _ := newTestRig(t)
	ctx := context.Background()

	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	sess, err := controller.Connect(ctx, e2eAddr)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	// Kill the underlying conn out from under the session; the next
	// request fails and every one after reports the session closed.
	sess.conn.Close()
	if _, err := sess.GetCharacteristic(ctx, 1, 10); err == nil {
		t.Fatal("GetCharacteristic() on a dead connection succeeded")
	}
	if _, err := sess.GetCharacteristic(ctx, 1, 10); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second GetCharacteristic() error = %v, want ErrSessionClosed", err)
	}
}

func TestRepairReplacesRecord(t *testing.T) {
	lim := test.TimeOut(60 * time.Second)
	defer lim.Stop()

	// Two separate accessories behind the same address simulate a
	// reset device with a fresh identity.
	first, err := NewEmulatedAccessory(AccessoryConfig{PIN: e2ePIN})
	if err != nil {
		t.Fatalf("NewEmulatedAccessory() error = %v", err)
	}
	second, err := NewEmulatedAccessory(AccessoryConfig{PIN: e2ePIN, AccessoryID: "66:55:44:33:22:11"})
	if err != nil {
		t.Fatalf("NewEmulatedAccessory() error = %v", err)
	}

	store := NewMemoryStorage()
	ctx := context.Background()

	controller := NewController(Config{Storage: store, Dial: pipeDialer(first)})
	if _, err := controller.Pair(ctx, e2eAddr, e2ePIN); err != nil {
		t.Fatalf("Pair() error = %v", err)
	}

	replaced := NewController(Config{Storage: store, Dial: pipeDialer(second)})
	record, err := replaced.Repair(ctx, e2eAddr, e2ePIN)
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if record.AccessoryID != second.ID() {
		t.Errorf("Repair() record accessory = %q, want %q", record.AccessoryID, second.ID())
	}

	stored, ok := store.LookupPairing(e2eAddr)
	if !ok || stored.AccessoryID != second.ID() {
		t.Error("Repair() did not replace the stored record wholesale")
	}
}
