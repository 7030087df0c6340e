package mdr

import "fmt"

// AutoPowerOffState is the cached state of the AutoPowerOff surface
// (spec.md §4.5: "timeout enum").
type AutoPowerOffState struct {
	Timeout string
}

// AutoPowerOffSurface exposes SetTimeout() (spec.md §4.5: InvalidValue on
// an unrecognised timeout name).
type AutoPowerOffSurface struct {
	*pollableProperty[AutoPowerOffState]
	dispatcher *Dispatcher
}

// NewAutoPowerOffSurface constructs the AutoPowerOff surface.
func NewAutoPowerOffSurface(d *Dispatcher) *AutoPowerOffSurface {
	return &AutoPowerOffSurface{
		pollableProperty: newPollableProperty(
			"AutoPowerOff", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryAutoPowerOff},
			InquiryAutoPowerOff,
			decodeAutoPowerOffState,
			decodeAutoPowerOffState,
		),
		dispatcher: d,
	}
}

func decodeAutoPowerOffState(body []byte) (AutoPowerOffState, error) {
	if len(body) < 1 {
		return AutoPowerOffState{}, ErrBadFrame
	}
	name, ok := autoPowerOffNames[AutoPowerOffElementID(body[0])]
	if !ok {
		name = unknownPresetName
	}
	return AutoPowerOffState{Timeout: name}, nil
}

// SetTimeout selects one of the device's fixed auto-power-off timeouts.
func (s *AutoPowerOffSurface) SetTimeout(timeout string, onOK func(), onErr func(error)) {
	id, ok := autoPowerOffIDs[timeout]
	if !ok {
		onErr(fmt.Errorf("%w: unknown auto-power-off timeout %q", ErrInvalidValue, timeout))
		return
	}
	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryAutoPowerOff},
		[]byte{byte(id)},
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}
