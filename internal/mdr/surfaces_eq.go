package mdr

import "fmt"

// EqualizerState is the cached state of the Equalizer surface (spec.md
// §4.5: "band_count, level_steps, preset_name, levels[]"). Levels are
// unsigned on the wire (device.c's device_eq_set_levels takes guint32,
// rejecting any level_ints[i] >= eq_level_steps) and over D-Bus (spec's
// SetLevels(u32[])), so they're kept unsigned here too.
type EqualizerState struct {
	BandCount  uint8
	LevelSteps uint8
	PresetName string
	Levels     []uint32
}

// EqualizerSurface exposes SetPreset()/SetLevels() (spec.md §4.5:
// InvalidValue on an unknown preset name or a level count/range mismatch).
type EqualizerSurface struct {
	*pollableProperty[EqualizerState]
	dispatcher *Dispatcher
}

// NewEqualizerSurface constructs the Equalizer surface.
func NewEqualizerSurface(d *Dispatcher) *EqualizerSurface {
	return &EqualizerSurface{
		pollableProperty: newPollableProperty(
			"Equalizer", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryEqualizer},
			InquiryEqualizer,
			decodeEqualizerState,
			decodeEqualizerState,
		),
		dispatcher: d,
	}
}

func decodeEqualizerState(body []byte) (EqualizerState, error) {
	if len(body) < 3 {
		return EqualizerState{}, ErrBadFrame
	}
	bandCount := body[0]
	levelSteps := body[1]
	presetID := body[2]
	if len(body) < 3+int(bandCount) {
		return EqualizerState{}, ErrBadFrame
	}
	levels := make([]uint32, bandCount)
	for i := range levels {
		levels[i] = uint32(body[3+i])
	}
	return EqualizerState{
		BandCount:  bandCount,
		LevelSteps: levelSteps,
		PresetName: eqPresetName(presetID),
		Levels:     levels,
	}, nil
}

// SetPreset selects a named EQ preset (spec.md §4.5). The device replies
// with a fresh notification carrying the preset's levels; this call only
// sends the selection.
func (s *EqualizerSurface) SetPreset(name string, onOK func(), onErr func(error)) {
	id, ok := eqPresetIDs[name]
	if !ok {
		onErr(fmt.Errorf("%w: unknown equalizer preset %q", ErrInvalidValue, name))
		return
	}
	payload := []byte{id}
	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryEqualizer},
		payload,
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}

// SetLevels pushes custom per-band levels (spec.md §4.5). The band count
// must match the cached band_count and every level must be below
// level_steps (spec.md §4.5: "level ≥ level_steps" is InvalidValue, matching
// device.c's device_eq_set_levels rejecting level_ints[i] >= eq_level_steps);
// otherwise InvalidValue is returned with no wire traffic generated.
func (s *EqualizerSurface) SetLevels(levels []uint32, onOK func(), onErr func(error)) {
	cur := s.Value()
	if len(levels) != int(cur.BandCount) {
		onErr(fmt.Errorf("%w: expected %d equalizer bands, got %d", ErrInvalidValue, cur.BandCount, len(levels)))
		return
	}
	payload := make([]byte, 0, 1+len(levels))
	payload = append(payload, eqPresetIDs["Custom"])
	for _, lv := range levels {
		if lv >= uint32(cur.LevelSteps) {
			onErr(fmt.Errorf("%w: equalizer level %d out of range [0,%d)", ErrInvalidValue, lv, cur.LevelSteps))
			return
		}
		payload = append(payload, byte(lv))
	}
	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryEqualizer},
		payload,
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}
