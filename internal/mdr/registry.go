package mdr

import "encoding/binary"

// CapabilitySet is the immutable result of the handshake's
// GET_CAPABILITY_INFO round-trip (spec.md §3, §4.4): a fixed-shape record
// of which functions the connected peripheral supports. Per-capability
// ancillary parameters (EQ band count, available auto-power-off timeouts,
// the assignable-key preset map) are *not* part of this set: each surface
// discovers its own ancillary parameters during its seeding get-request
// (spec.md §4.5), the same way the capability flags here are discovered
// once during the session-wide handshake.
type CapabilitySet struct {
	flags capabilityFlag
}

// Has reports whether the device advertised the given capability.
func (c CapabilitySet) Has(f capabilityFlag) bool { return c.flags&f != 0 }

// CombinedNCASM reports whether noise cancelling and ambient sound mode
// share the NC_AND_ASM wire opcode (spec.md §4.5 "combined" devices) as
// opposed to exposing NoiseCancelling and AmbientSoundMode separately.
func (c CapabilitySet) CombinedNCASM() bool { return c.Has(capNCAndASMCombined) }

// parseCapabilityInfo decodes a GET_CAPABILITY_INFO reply body into a
// CapabilitySet. The wire body is a single big-endian uint32 bitmask, one
// bit per capabilityFlag.
func parseCapabilityInfo(body []byte) (CapabilitySet, error) {
	if len(body) < 4 {
		return CapabilitySet{}, ErrBadFrame
	}
	return CapabilitySet{flags: capabilityFlag(binary.BigEndian.Uint32(body[:4]))}, nil
}
