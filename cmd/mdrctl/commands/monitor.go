package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

// monitorCmd launches an interactive per-device shell backed by
// reeflective/console: an operator gets a live prompt over one connected
// device's surfaces (get/set properties, invoke methods) while
// PropertiesChanged signals for that device print in the background.
func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <device-id>",
		Short: "Open an interactive shell watching one device's property changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			deviceID := args[0]

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := watchPropertiesChanged(ctx, deviceID); err != nil {
				return fmt.Errorf("subscribe to property changes: %w", err)
			}

			app := console.New("mdrctl")
			menu := app.CurrentMenu()
			menu.SetCommands(func() *cobra.Command {
				return monitorShellCommands(deviceID)
			})

			return app.Start()
		},
	}
}

// watchPropertiesChanged adds a match rule for PropertiesChanged signals on
// device's object tree and prints each one as it arrives.
func watchPropertiesChanged(ctx context.Context, deviceID string) error {
	prefix := sessionPathPrefix + sanitizeDeviceID(deviceID)
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return err
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.RemoveSignal(signals)
				return
			case sig := <-signals:
				if sig == nil {
					return
				}
				if len(string(sig.Path)) < len(prefix) || string(sig.Path)[:len(prefix)] != prefix {
					continue
				}
				fmt.Printf("[%s] %v\n", sig.Path, sig.Body)
			}
		}
	}()
	return nil
}

// monitorShellCommands builds the reduced cobra command tree exposed inside
// the interactive monitor shell: get/set/call scoped to deviceID so the
// operator doesn't repeat it on every line.
func monitorShellCommands(deviceID string) *cobra.Command {
	root := &cobra.Command{Use: deviceID, Short: "mdrctl monitor shell"}

	root.AddCommand(&cobra.Command{
		Use:   "get <surface> <property>",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			obj := conn.Object(busName, surfacePath(deviceID, args[0]))
			var v dbus.Variant
			if err := obj.Call("org.freedesktop.DBus.Properties.Get", 0, surfaceInterface(args[0]), args[1]).Store(&v); err != nil {
				return err
			}
			fmt.Println(v.Value())
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "set <surface> <property> <value>",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			obj := conn.Object(busName, surfacePath(deviceID, args[0]))
			call := obj.Call("org.freedesktop.DBus.Properties.Set", 0,
				surfaceInterface(args[0]), args[1], dbus.MakeVariant(parseScalar(args[2])))
			return call.Err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "call <surface> <method> [args...]",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			callArgs := make([]interface{}, 0, len(args)-2)
			for _, a := range args[2:] {
				callArgs = append(callArgs, parseScalar(a))
			}
			obj := conn.Object(busName, surfacePath(deviceID, args[0]))
			call := obj.Call(surfaceInterface(args[0])+"."+args[1], 0, callArgs...)
			return call.Err
		},
	})

	return root
}
