package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

func propertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Read or write a capability surface's D-Bus properties",
	}
	cmd.AddCommand(propertyGetCmd())
	cmd.AddCommand(propertySetCmd())
	cmd.AddCommand(propertyCallCmd())
	return cmd
}

// surfacePath builds the object path mdrd exports for one device's
// capability surface (e.g. "battery", "equalizer").
func surfacePath(deviceID, surface string) dbus.ObjectPath {
	return dbus.ObjectPath(sessionPathPrefix + sanitizeDeviceID(deviceID) + "/" + strings.ToLower(surface))
}

// surfaceInterface derives the org.mdr.* interface name mdrd exports for a
// surface from its CLI name by upper-casing only the first letter (e.g.
// "battery" -> "org.mdr.Battery"). Multi-word surfaces resolve only when
// given in their exported form ("LeftRightBattery"); an all-lowercase
// "leftrightbattery" yields "org.mdr.Leftrightbattery".
func surfaceInterface(surface string) string {
	if surface == "" {
		return "org.mdr"
	}
	return "org.mdr." + strings.ToUpper(surface[:1]) + surface[1:]
}

func propertyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <device-id> <surface> <property>",
		Short: "Get a single property value",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			deviceID, surface, prop := args[0], args[1], args[2]
			obj := conn.Object(busName, surfacePath(deviceID, surface))
			var v dbus.Variant
			if err := obj.Call("org.freedesktop.DBus.Properties.Get", 0, surfaceInterface(surface), prop).Store(&v); err != nil {
				return fmt.Errorf("get %s.%s: %w", surface, prop, err)
			}
			fmt.Println(v.Value())
			return nil
		},
	}
}

func propertySetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <device-id> <surface> <property> <value>",
		Short: "Set a single writable property value",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			deviceID, surface, prop, raw := args[0], args[1], args[2], args[3]
			obj := conn.Object(busName, surfacePath(deviceID, surface))
			call := obj.Call("org.freedesktop.DBus.Properties.Set", 0,
				surfaceInterface(surface), prop, dbus.MakeVariant(parseScalar(raw)))
			if call.Err != nil {
				return fmt.Errorf("set %s.%s: %w", surface, prop, call.Err)
			}
			return nil
		},
	}
}

func propertyCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <device-id> <surface> <method> [args...]",
		Short: "Invoke a capability surface method (e.g. Equalizer.SetPreset)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			deviceID, surface, method := args[0], args[1], args[2]
			callArgs := make([]interface{}, 0, len(args)-3)
			for _, a := range args[3:] {
				callArgs = append(callArgs, parseScalar(a))
			}
			obj := conn.Object(busName, surfacePath(deviceID, surface))
			call := obj.Call(surfaceInterface(surface)+"."+method, 0, callArgs...)
			if call.Err != nil {
				return fmt.Errorf("call %s.%s: %w", surface, method, call.Err)
			}
			return nil
		},
	}
}

// parseScalar converts a CLI argument to the narrowest scalar type D-Bus
// method/property calls in this daemon ever expect (bool, int64, or the
// original string) rather than forcing every caller to pass pre-typed JSON.
func parseScalar(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
