package mdr

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestParseCapabilityInfo(t *testing.T) {
	t.Parallel()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(capBattery|capEqualizer|capAutoPowerOff))

	caps, err := parseCapabilityInfo(buf[:])
	if err != nil {
		t.Fatalf("parseCapabilityInfo: %v", err)
	}
	if !caps.Has(capBattery) {
		t.Error("Has(capBattery) = false, want true")
	}
	if !caps.Has(capEqualizer) {
		t.Error("Has(capEqualizer) = false, want true")
	}
	if !caps.Has(capAutoPowerOff) {
		t.Error("Has(capAutoPowerOff) = false, want true")
	}
	if caps.Has(capBatteryLR) {
		t.Error("Has(capBatteryLR) = true, want false")
	}
}

func TestParseCapabilityInfoTruncatedIsBadFrame(t *testing.T) {
	t.Parallel()

	if _, err := parseCapabilityInfo([]byte{0x00, 0x01}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("err = %v, want ErrBadFrame", err)
	}
}

func TestCapabilitySetCombinedNCASM(t *testing.T) {
	t.Parallel()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(capNCAndASMCombined))
	caps, err := parseCapabilityInfo(buf[:])
	if err != nil {
		t.Fatalf("parseCapabilityInfo: %v", err)
	}
	if !caps.CombinedNCASM() {
		t.Error("CombinedNCASM() = false, want true")
	}

	plain := CapabilitySet{}
	if plain.CombinedNCASM() {
		t.Error("zero-value CapabilitySet.CombinedNCASM() = true, want false")
	}
}
