package mdr

import (
	"fmt"
	"sort"
)

// AssignableKeysState is the cached state of the AssignableKeys surface
// (spec.md §4.5: "available_presets / current_presets maps", keyed by key
// name, e.g. "left_side_key").
type AssignableKeysState struct {
	AvailablePresets map[string][]string
	CurrentPresets   map[string]string
}

// AssignableKeysSurface exposes SetPresets() (spec.md §4.5: InvalidValue on
// an unknown key name or a preset not in that key's available set).
type AssignableKeysSurface struct {
	*pollableProperty[AssignableKeysState]
	dispatcher *Dispatcher
}

// NewAssignableKeysSurface constructs the AssignableKeys surface.
func NewAssignableKeysSurface(d *Dispatcher) *AssignableKeysSurface {
	return &AssignableKeysSurface{
		pollableProperty: newPollableProperty(
			"AssignableKeys", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryAssignableKeys},
			InquiryAssignableKeys,
			decodeAssignableKeysState,
			decodeAssignableKeysState,
		),
		dispatcher: d,
	}
}

func decodeAssignableKeysState(body []byte) (AssignableKeysState, error) {
	if len(body) < 1 {
		return AssignableKeysState{}, ErrBadFrame
	}
	keyCount := int(body[0])
	state := AssignableKeysState{
		AvailablePresets: make(map[string][]string, keyCount),
		CurrentPresets:   make(map[string]string, keyCount),
	}
	off := 1
	for i := 0; i < keyCount; i++ {
		if off+2 > len(body) {
			return AssignableKeysState{}, ErrBadFrame
		}
		keyName, ok := assignableKeyNames[AssignableKey(body[off])]
		if !ok {
			return AssignableKeysState{}, ErrBadFrame
		}
		currentPresetID := body[off+1]
		availCount := int(body[off+2])
		off += 3
		if off+availCount > len(body) {
			return AssignableKeysState{}, ErrBadFrame
		}
		avail := make([]string, 0, availCount)
		for j := 0; j < availCount; j++ {
			avail = append(avail, assignablePresetNames[AssignablePreset(body[off+j])])
		}
		off += availCount
		state.AvailablePresets[keyName] = avail
		state.CurrentPresets[keyName] = assignablePresetNames[AssignablePreset(currentPresetID)]
	}
	return state, nil
}

// SetPresets assigns a preset to one or more keys in a single request
// (spec.md §4.5). Every key name and preset name is validated against the
// cached state before any wire traffic is generated: an unknown key, an
// unknown preset, or a preset not listed in that key's available set all
// reject with InvalidValue.
func (s *AssignableKeysSurface) SetPresets(assignments map[string]string, onOK func(), onErr func(error)) {
	cur := s.Value()
	keyNames := make([]string, 0, len(assignments))
	for k := range assignments {
		keyNames = append(keyNames, k)
	}
	sort.Strings(keyNames)

	payload := make([]byte, 0, 1+2*len(assignments))
	payload = append(payload, byte(len(assignments)))
	for _, keyName := range keyNames {
		presetName := assignments[keyName]
		keyID, ok := assignableKeyIDFor(keyName)
		if !ok {
			onErr(fmt.Errorf("%w: unknown assignable key %q", ErrInvalidValue, keyName))
			return
		}
		available, ok := cur.AvailablePresets[keyName]
		if !ok {
			onErr(fmt.Errorf("%w: key %q has no available presets", ErrInvalidValue, keyName))
			return
		}
		if !contains(available, presetName) {
			onErr(fmt.Errorf("%w: preset %q not available for key %q", ErrInvalidValue, presetName, keyName))
			return
		}
		presetID, ok := assignablePresetIDs[presetName]
		if !ok {
			onErr(fmt.Errorf("%w: unknown preset %q", ErrInvalidValue, presetName))
			return
		}
		payload = append(payload, byte(keyID), byte(presetID))
	}

	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryAssignableKeys},
		payload,
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}

func assignableKeyIDFor(name string) (AssignableKey, bool) {
	for id, n := range assignableKeyNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
