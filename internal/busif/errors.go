// Package busif exports a mdr.Manager over D-Bus: a BlueZ Profile1 object
// that accepts incoming RFCOMM connections, and, per connected device, one
// object per live capability surface (spec.md §6). It is a thin adapter —
// all domain logic stays in package mdr — in the same spirit as the
// teacher's ConnectRPC server package, just over D-Bus instead of gRPC.
package busif

import (
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/sony-mdr/mdrd/internal/mdr"
)

// D-Bus error names returned to callers. spec.md §7 groups mdr's sentinel
// errors into a small surfaced taxonomy; these are that taxonomy's wire
// names.
const (
	dbusErrInvalidValue = "org.mdr.InvalidValue"
	dbusErrDeviceError  = "org.mdr.DeviceError"
	dbusErrNotSupported = "org.mdr.Error.NotSupported"
)

// toDBusError maps an mdr error to the D-Bus error name a caller should
// see. Unrecognised errors are reported as DeviceError rather than leaking
// Go error text verbatim.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mdr.ErrInvalidValue):
		return dbus.NewError(dbusErrInvalidValue, []interface{}{err.Error()})
	case errors.Is(err, mdr.ErrUnknownCapability):
		return dbus.NewError(dbusErrNotSupported, []interface{}{err.Error()})
	default:
		return dbus.NewError(dbusErrDeviceError, []interface{}{err.Error()})
	}
}
