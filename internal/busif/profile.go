package busif

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/sony-mdr/mdrd/internal/mdr"
)

const (
	profileObjectPath = dbus.ObjectPath("/org/mdr")
	profileUUID       = "96CC203E-5068-46ad-B32D-E316F5E069BA" // Sony MDR vendor-specific SPP UUID
	bluezService      = "org.bluez"
	bluezProfileMgr   = "org.bluez.ProfileManager1"
	profileIface      = "org.bluez.Profile1"
)

// Profile implements org.bluez.Profile1 (spec.md §6): BlueZ calls
// NewConnection with a live RFCOMM file descriptor whenever a registered
// device connects, and RequestDisconnection/Release as the socket's
// lifecycle unwinds.
type Profile struct {
	logger  *slog.Logger
	manager *mdr.Manager
	bus     *Bus
	ctx     context.Context
}

// NewProfile constructs a Profile bound to manager. Every accepted session
// is exported over bus once its handshake and capability seeding finish.
// Sessions accepted through it run until ctx is cancelled (daemon shutdown).
func NewProfile(ctx context.Context, manager *mdr.Manager, bus *Bus, logger *slog.Logger) *Profile {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profile{logger: logger.With(slog.String("component", "profile")), manager: manager, bus: bus, ctx: ctx}
}

// NewConnection is called by BlueZ when a device connects to the
// registered profile. fd is a connected RFCOMM socket; objectPath
// identifies the bluez Device1 object, whose base name becomes this
// session's device id.
func (p *Profile) NewConnection(objectPath dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	id := deviceIDFromObjectPath(objectPath)
	stream := os.NewFile(uintptr(fd), string(objectPath))
	if stream == nil {
		return dbus.NewError(dbusErrDeviceError, []interface{}{"invalid file descriptor"})
	}

	_, err := p.manager.Accept(p.ctx, id, stream, func(sess *mdr.Session) {
		p.logger.Info("session connected", slog.String("device_id", sess.ID()))
		p.bus.OnConnected(sess)
	})
	if err != nil {
		stream.Close()
		p.logger.Warn("rejecting connection", slog.String("device_id", id), slog.String("err", err.Error()))
		return toDBusError(err)
	}
	p.logger.Info("session accepted", slog.String("device_id", id), slog.String("object_path", string(objectPath)))
	return nil
}

// RequestDisconnection is called by BlueZ (or triggered by a local admin
// action) to ask the profile to tear down a connection.
func (p *Profile) RequestDisconnection(objectPath dbus.ObjectPath) *dbus.Error {
	id := deviceIDFromObjectPath(objectPath)
	if err := p.manager.Remove(id); err != nil {
		return toDBusError(err)
	}
	return nil
}

// Release is called by BlueZ when bluetoothd is shutting down or the
// profile is being unregistered.
func (p *Profile) Release() *dbus.Error {
	p.logger.Info("profile released by bluetoothd")
	return nil
}

// RegisterProfile exports the Profile object and calls
// org.bluez.ProfileManager1.RegisterProfile to advertise it to bluetoothd
// (spec.md §6).
func RegisterProfile(conn *dbus.Conn, profile *Profile) error {
	if err := conn.Export(profile, profileObjectPath, profileIface); err != nil {
		return fmt.Errorf("export profile object: %w", err)
	}
	opts := map[string]dbus.Variant{
		"Name": dbus.MakeVariant("Sony MDR Control"),
		"Role": dbus.MakeVariant("client"),
	}
	call := conn.Object(bluezService, "/org/bluez").Call(bluezProfileMgr+".RegisterProfile", 0,
		profileObjectPath, profileUUID, opts)
	if call.Err != nil {
		return fmt.Errorf("register profile with bluetoothd: %w", call.Err)
	}
	return nil
}

// deviceIDFromObjectPath derives the session's device id from a bluez
// Device1 object path (.../dev_AA_BB_CC_DD_EE_FF), falling back to the
// full path if it doesn't match that shape.
func deviceIDFromObjectPath(path dbus.ObjectPath) string {
	s := string(path)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}
