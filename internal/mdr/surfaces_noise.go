package mdr

import "fmt"

// combinedState enumerates the wire values of the combined NC_AND_ASM
// opcode (spec.md §4.5: "some devices expose NC and ASM under a single
// combined opcode ... Enabling ASM on a combined device implicitly
// disables NC and vice versa").
const (
	combinedStateOff byte = 0
	combinedStateNC  byte = 1
	combinedStateASM byte = 2
)

// NoiseCancellingState is the cached state of the NoiseCancelling surface.
type NoiseCancellingState struct {
	Enabled bool
}

// NoiseCancellingSurface exposes Enable()/Disable() (spec.md §4.5). Whether
// the device uses the combined or split wire opcode is a runtime choice
// discovered at handshake (spec.md §9's "combined NC+ASM opcode" design
// note); the surface hides this behind its own encode/decode closures so
// that callers only ever see logical Enable/Disable operations. The
// exposed object graph is always split into NoiseCancelling and
// AmbientSoundMode regardless (spec.md §4.5).
type NoiseCancellingSurface struct {
	*pollableProperty[NoiseCancellingState]
	dispatcher *Dispatcher
	combined   bool
}

// NewNoiseCancellingSurface constructs the NoiseCancelling surface. combined
// must match CapabilitySet.CombinedNCASM() for this device.
func NewNoiseCancellingSurface(d *Dispatcher, combined bool) *NoiseCancellingSurface {
	inquiry := InquiryNoiseCancelling
	decode := decodeNCState
	if combined {
		inquiry = InquiryNCAndASM
		decode = decodeCombinedAsNC
	}
	return &NoiseCancellingSurface{
		pollableProperty: newPollableProperty(
			"NoiseCancelling", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: inquiry},
			inquiry,
			decode, decode,
		),
		dispatcher: d,
		combined:   combined,
	}
}

func decodeNCState(body []byte) (NoiseCancellingState, error) {
	if len(body) < 1 {
		return NoiseCancellingState{}, ErrBadFrame
	}
	return NoiseCancellingState{Enabled: body[0] != 0}, nil
}

func decodeCombinedAsNC(body []byte) (NoiseCancellingState, error) {
	if len(body) < 1 {
		return NoiseCancellingState{}, ErrBadFrame
	}
	return NoiseCancellingState{Enabled: body[0] == combinedStateNC}, nil
}

// Enable turns noise cancelling on (spec.md §4.5: DeviceError on call
// failure).
func (s *NoiseCancellingSurface) Enable(onOK func(), onErr func(error)) {
	s.setEnabled(true, onOK, onErr)
}

// Disable turns noise cancelling off.
func (s *NoiseCancellingSurface) Disable(onOK func(), onErr func(error)) {
	s.setEnabled(false, onOK, onErr)
}

func (s *NoiseCancellingSurface) setEnabled(enabled bool, onOK func(), onErr func(error)) {
	var key CorrelationKey
	var payload []byte
	if s.combined {
		key = CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryNCAndASM}
		state := combinedStateOff
		if enabled {
			state = combinedStateNC
		}
		payload = []byte{state, 0, 0}
	} else {
		key = CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryNoiseCancelling}
		var b byte
		if enabled {
			b = 1
		}
		payload = []byte{b}
	}
	if err := s.dispatcher.Call(key, payload, func([]byte) { onOK() }, onErr); err != nil {
		onErr(err)
	}
}

// AmbientSoundModeState is the cached state of the AmbientSoundMode
// surface (spec.md §4.5: "amount 0..255, mode in {normal, voice}").
type AmbientSoundModeState struct {
	Amount uint8
	Mode   string
}

const (
	asmModeNormal = "normal"
	asmModeVoice  = "voice"
)

func asmModeByte(mode string) (byte, error) {
	switch mode {
	case asmModeNormal:
		return 0, nil
	case asmModeVoice:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unknown ambient sound mode %q", ErrInvalidValue, mode)
	}
}

func asmModeString(b byte) string {
	if b == 1 {
		return asmModeVoice
	}
	return asmModeNormal
}

// AmbientSoundModeSurface exposes SetAmount()/SetMode() (spec.md §4.5:
// "InvalidValue on bad mode; amount is clamped to 255").
type AmbientSoundModeSurface struct {
	*pollableProperty[AmbientSoundModeState]
	dispatcher *Dispatcher
	combined   bool
}

// NewAmbientSoundModeSurface constructs the AmbientSoundMode surface.
func NewAmbientSoundModeSurface(d *Dispatcher, combined bool) *AmbientSoundModeSurface {
	inquiry := InquiryAmbientSound
	decode := decodeASMState
	if combined {
		inquiry = InquiryNCAndASM
		decode = decodeCombinedAsASM
	}
	return &AmbientSoundModeSurface{
		pollableProperty: newPollableProperty(
			"AmbientSoundMode", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: inquiry},
			inquiry,
			decode, decode,
		),
		dispatcher: d,
		combined:   combined,
	}
}

func decodeASMState(body []byte) (AmbientSoundModeState, error) {
	if len(body) < 2 {
		return AmbientSoundModeState{}, ErrBadFrame
	}
	return AmbientSoundModeState{Amount: body[0], Mode: asmModeString(body[1])}, nil
}

func decodeCombinedAsASM(body []byte) (AmbientSoundModeState, error) {
	if len(body) < 3 {
		return AmbientSoundModeState{}, ErrBadFrame
	}
	return AmbientSoundModeState{Amount: body[1], Mode: asmModeString(body[2])}, nil
}

// SetAmount sets the ambient sound amount, clamping to 255 rather than
// rejecting out-of-range values (spec.md §4.5).
func (s *AmbientSoundModeSurface) SetAmount(amount uint32, onOK func(), onErr func(error)) {
	clamped := amount
	if clamped > 255 {
		clamped = 255
	}
	cur := s.Value()
	s.sendASM(byte(clamped), cur.Mode, onOK, onErr)
}

// SetMode sets the ambient sound mode ("normal" or "voice"); any other
// value is rejected with InvalidValue and no wire traffic is generated.
func (s *AmbientSoundModeSurface) SetMode(mode string, onOK func(), onErr func(error)) {
	if _, err := asmModeByte(mode); err != nil {
		onErr(err)
		return
	}
	cur := s.Value()
	s.sendASM(cur.Amount, mode, onOK, onErr)
}

func (s *AmbientSoundModeSurface) sendASM(amount byte, mode string, onOK func(), onErr func(error)) {
	modeByte, err := asmModeByte(mode)
	if err != nil {
		onErr(err)
		return
	}
	var key CorrelationKey
	var payload []byte
	if s.combined {
		key = CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryNCAndASM}
		payload = []byte{combinedStateASM, amount, modeByte}
	} else {
		key = CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryAmbientSound}
		payload = []byte{amount, modeByte}
	}
	if err := s.dispatcher.Call(key, payload, func([]byte) { onOK() }, onErr); err != nil {
		onErr(err)
	}
}
