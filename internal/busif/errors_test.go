package busif

import (
	"testing"

	"github.com/sony-mdr/mdrd/internal/mdr"
)

func TestToDBusErrorNilIsNil(t *testing.T) {
	t.Parallel()

	if err := toDBusError(nil); err != nil {
		t.Errorf("toDBusError(nil) = %v, want nil", err)
	}
}

func TestToDBusErrorMapsKnownSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid value", mdr.ErrInvalidValue, dbusErrInvalidValue},
		{"unknown capability", mdr.ErrUnknownCapability, dbusErrNotSupported},
		{"link lost falls back to device error", mdr.ErrLinkLost, dbusErrDeviceError},
		{"peer gone falls back to device error", mdr.ErrPeerGone, dbusErrDeviceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := toDBusError(tt.err)
			if got == nil {
				t.Fatal("toDBusError returned nil for a non-nil error")
			}
			if got.Name != tt.want {
				t.Errorf("Name = %q, want %q", got.Name, tt.want)
			}
		})
	}
}
