package mdr

// IdentitySurface exposes the device's model name (spec.md §4.5 Identity
// row: "Cached state: model-name string"; no inbound commands). The
// Session's aggregate Connected/Disconnected signals are emitted on this
// surface's exposed object (spec.md §3, §7), but that wiring lives in the
// bus layer, not here.
type IdentitySurface struct {
	*pollableProperty[string]
}

// NewIdentitySurface constructs the Identity surface. Seeding issues
// GET_DEVICE_INFO; the reply body is the model name as raw bytes.
func NewIdentitySurface(d *Dispatcher) *IdentitySurface {
	return &IdentitySurface{
		pollableProperty: newPollableProperty(
			"Identity", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryDeviceInfo},
			InquiryDeviceInfo,
			decodeModelName,
			decodeModelName,
		),
	}
}

func decodeModelName(body []byte) (string, error) {
	if len(body) == 0 {
		return "", ErrBadFrame
	}
	return string(body), nil
}

// ModelName returns the cached device model name.
func (s *IdentitySurface) ModelName() string { return s.Value() }
