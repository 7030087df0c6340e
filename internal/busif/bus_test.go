package busif

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sony-mdr/mdrd/internal/mdr"
)

func TestSessionPathSanitizesDeviceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want dbus.ObjectPath
	}{
		{"aa:bb:cc:dd:ee:ff", "/org/mdr/session/aa_bb_cc_dd_ee_ff"},
		{"plain-id", "/org/mdr/session/plain-id"},
	}
	for _, tt := range tests {
		if got := sessionPath(tt.id); got != tt.want {
			t.Errorf("sessionPath(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

// TestGetManagedObjectsReflectsTrackedPaths exercises GetManagedObjects
// without a live *dbus.Conn: it only ever reads the ifaces map trackObject
// populates.
func TestGetManagedObjectsReflectsTrackedPaths(t *testing.T) {
	t.Parallel()

	b := &Bus{
		ifaces: map[dbus.ObjectPath][]string{
			"/org/mdr/session/dev-1/battery": {"org.freedesktop.DBus.Properties"},
		},
	}
	objs, derr := b.GetManagedObjects()
	if derr != nil {
		t.Fatalf("GetManagedObjects returned error: %v", derr)
	}
	props, ok := objs["/org/mdr/session/dev-1/battery"]
	if !ok {
		t.Fatal("tracked path missing from GetManagedObjects result")
	}
	if _, ok := props["org.freedesktop.DBus.Properties"]; !ok {
		t.Error("tracked interface missing from per-path interface map")
	}
}

func TestSurfacePathLowercasesSurfaceName(t *testing.T) {
	t.Parallel()

	got := surfacePath("aa:bb:cc:dd:ee:ff", "Equalizer")
	want := dbus.ObjectPath("/org/mdr/session/aa_bb_cc_dd_ee_ff/equalizer")
	if got != want {
		t.Errorf("surfacePath = %q, want %q", got, want)
	}
}

// TestCallSyncReturnsDeviceErrorOnClosedSession verifies callSync's
// not-posted branch: a session that has already torn down must fail the
// D-Bus call with DeviceError rather than hang waiting on a result that
// will never arrive.
func TestCallSyncReturnsDeviceErrorOnClosedSession(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()

	closed := make(chan struct{})
	sess := mdr.NewSession("dev-1", local, nil, nil, nil, func(*mdr.Session) { close(closed) })

	ctx, cancel := context.WithCancel(context.Background())
	go sess.Run(ctx)

	// Drain the handshake's INIT write so Run's startHandshake call (made
	// synchronously before the select loop) unblocks and ctx.Done() can be
	// observed.
	buf := make([]byte, 256)
	if _, err := peer.Read(buf); err != nil {
		t.Fatalf("reading INIT frame: %v", err)
	}
	cancel()
	<-closed

	derr := callSync(sess, func(onOK func(), onErr func(error)) {
		t.Fatal("fn should never run against a closed session")
	})
	if derr == nil {
		t.Fatal("callSync on closed session returned nil error")
	}
	if derr.Name != dbusErrDeviceError {
		t.Errorf("Name = %q, want %q", derr.Name, dbusErrDeviceError)
	}
}

func TestCallSyncMapsUnwrappedErrorToDeviceError(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()
	defer local.Close()

	sess := mdr.NewSession("dev-1", local, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	buf := make([]byte, 256)
	if _, err := peer.Read(buf); err != nil {
		t.Fatalf("reading INIT frame: %v", err)
	}

	derr := callSync(sess, func(onOK func(), onErr func(error)) {
		onErr(errors.New("wrapped: " + mdr.ErrInvalidValue.Error()))
	})
	if derr == nil {
		t.Fatal("callSync returned nil error, want a mapped D-Bus error")
	}
	if derr.Name != dbusErrDeviceError {
		t.Errorf("Name = %q, want %q (plain errors.New doesn't unwrap to a sentinel)", derr.Name, dbusErrDeviceError)
	}
}
