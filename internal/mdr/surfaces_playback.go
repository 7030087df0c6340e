package mdr

// PlaybackVolumeState is the cached state of the PlaybackVolume surface
// (spec.md §4.5: "volume 0..max_volume").
type PlaybackVolumeState struct {
	Volume    uint8
	MaxVolume uint8
}

// PlaybackVolumeSurface exposes SetVolume() (spec.md §4.5: DeviceError,
// not InvalidValue, is used here — the device itself clamps out-of-range
// requests rather than rejecting them at the protocol level).
type PlaybackVolumeSurface struct {
	*pollableProperty[PlaybackVolumeState]
	dispatcher *Dispatcher
}

// NewPlaybackVolumeSurface constructs the PlaybackVolume surface.
func NewPlaybackVolumeSurface(d *Dispatcher) *PlaybackVolumeSurface {
	return &PlaybackVolumeSurface{
		pollableProperty: newPollableProperty(
			"PlaybackVolume", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryPlaybackVolume},
			InquiryPlaybackVolume,
			decodePlaybackVolumeState,
			decodePlaybackVolumeState,
		),
		dispatcher: d,
	}
}

func decodePlaybackVolumeState(body []byte) (PlaybackVolumeState, error) {
	if len(body) < 2 {
		return PlaybackVolumeState{}, ErrBadFrame
	}
	return PlaybackVolumeState{Volume: body[0], MaxVolume: body[1]}, nil
}

// SetVolume requests a new playback volume. Values above the cached
// max_volume are passed through unmodified: the peripheral is the
// authority on the valid range and will reject or clamp them itself,
// surfaced here as DeviceError rather than a local InvalidValue.
func (s *PlaybackVolumeSurface) SetVolume(volume uint8, onOK func(), onErr func(error)) {
	err := s.dispatcher.Call(
		CorrelationKey{Opcode: OpcodeSet, InquiryType: InquiryPlaybackVolume},
		[]byte{volume},
		func([]byte) { onOK() },
		onErr,
	)
	if err != nil {
		onErr(err)
	}
}
