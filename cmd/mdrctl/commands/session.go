package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

const (
	rootPath          = dbus.ObjectPath("/org/mdr")
	sessionPathPrefix = "/org/mdr/session/"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect connected MDR sessions",
	}
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	return cmd
}

// getManagedObjects calls org.freedesktop.DBus.ObjectManager.GetManagedObjects
// on busName's root object, returning every exported path and the
// interfaces it implements.
func getManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := conn.Object(busName, rootPath)
	var out map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&out); err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	return out, nil
}

// sessionIDs groups managed object paths by device id, derived from the
// path segment immediately after sessionPathPrefix.
func sessionIDs(objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []string {
	seen := make(map[string]struct{})
	for path := range objs {
		s := string(path)
		if !strings.HasPrefix(s, sessionPathPrefix) {
			continue
		}
		rest := s[len(sessionPathPrefix):]
		id := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			id = rest[:i]
		}
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected devices",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			objs, err := getManagedObjects()
			if err != nil {
				return err
			}
			ids := sessionIDs(objs)
			if len(ids) == 0 {
				fmt.Println("No connected devices.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <device-id>",
		Short: "List the capability surfaces exported for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			objs, err := getManagedObjects()
			if err != nil {
				return err
			}
			prefix := sessionPathPrefix + sanitizeDeviceID(args[0]) + "/"
			var surfaces []string
			for path := range objs {
				s := string(path)
				if strings.HasPrefix(s, prefix) {
					surfaces = append(surfaces, strings.TrimPrefix(s, prefix))
				}
			}
			if len(surfaces) == 0 {
				return fmt.Errorf("no device %q connected", args[0])
			}
			sort.Strings(surfaces)
			for _, s := range surfaces {
				fmt.Println(s)
			}
			return nil
		},
	}
}

// sanitizeDeviceID mirrors mdrd's internal object-path sanitization
// (':' and '/' become '_') so mdrctl can address a device by the same id
// bluetoothd reports.
func sanitizeDeviceID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == ':' || r == '/' {
			return '_'
		}
		return r
	}, id)
}
