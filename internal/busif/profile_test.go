package busif

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestDeviceIDFromObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "dev_AA_BB_CC_DD_EE_FF"},
		{"no_slash", "no_slash"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := deviceIDFromObjectPath(tt.path); got != tt.want {
			t.Errorf("deviceIDFromObjectPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
