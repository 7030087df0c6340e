package mdr

// PowerState is the (empty) seeded state of the Power surface: its seed
// get-request exists only to confirm the capability is actually usable
// before the object is exported (spec.md §3 invariant), since the
// capability table (spec.md §4.4) already gates whether Power is offered
// at all.
type PowerState struct{}

// PowerSurface exposes PowerOff() (spec.md §4.5 Power row). It caches
// nothing externally visible.
type PowerSurface struct {
	*pollableProperty[PowerState]
	dispatcher *Dispatcher
}

// NewPowerSurface constructs the Power surface.
func NewPowerSurface(d *Dispatcher) *PowerSurface {
	return &PowerSurface{
		pollableProperty: newPollableProperty(
			"Power", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryPowerOff},
			InquiryPowerOff,
			func([]byte) (PowerState, error) { return PowerState{}, nil },
			func([]byte) (PowerState, error) { return PowerState{}, nil },
		),
		dispatcher: d,
	}
}

// PowerOff sends the power-off request. onErr receives ErrReject/ErrTimeout
// wrapped as DeviceError by the bus layer; onOK is called with no body on
// success.
func (s *PowerSurface) PowerOff(onOK func(), onErr func(error)) {
	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryPowerOff},
		nil,
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}
