package mdr

// Wire-level constants for the MDR application layer (spec.md §4.1-§4.5).
// Function code values below are internally consistent identifiers for this
// daemon; the byte layout of frames (start/end/escape/checksum) follows
// spec.md §4.1 exactly, which is the part a real peripheral depends on.

// Frame markers and escape byte (spec.md §4.1).
const (
	frameStart  byte = 0x3E
	frameEnd    byte = 0x3C
	frameEscape byte = 0x3D
)

// FrameKind identifies the wire frame type carried between START/END.
type FrameKind byte

const (
	// KindACK acknowledges receipt of a DATA frame by sequence number.
	KindACK FrameKind = 0x01
	// KindDataMDR carries an MDR application payload.
	KindDataMDR FrameKind = 0x0C
	// KindDataMDRNo2 carries an MDR application payload on the secondary
	// channel some dual-driver peripherals expose (left/right earbud).
	KindDataMDRNo2 FrameKind = 0x0E
	// KindShot carries a fire-and-forget payload with no ACK expected.
	KindShot FrameKind = 0x10
)

func (k FrameKind) String() string {
	switch k {
	case KindACK:
		return "ACK"
	case KindDataMDR:
		return "DATA_MDR"
	case KindDataMDRNo2:
		return "DATA_MDR_NO2"
	case KindShot:
		return "SHOT"
	default:
		return "Unknown"
	}
}

// IsData reports whether the frame kind carries an application payload that
// requires an ACK (DATA_MDR / DATA_MDR_NO2), as opposed to ACK or SHOT.
func (k FrameKind) IsData() bool {
	return k == KindDataMDR || k == KindDataMDRNo2
}

// Opcode is the first byte of an MDR application-layer payload: it selects
// the verb (get/set/notify/reply/reject).
type Opcode byte

const (
	OpcodeGet    Opcode = 0x01
	OpcodeSet    Opcode = 0x02
	OpcodeNotify Opcode = 0x03
	OpcodeReply  Opcode = 0x04
	OpcodeReject Opcode = 0x05
)

func (o Opcode) String() string {
	switch o {
	case OpcodeGet:
		return "GET"
	case OpcodeSet:
		return "SET"
	case OpcodeNotify:
		return "NOTIFY"
	case OpcodeReply:
		return "REPLY"
	case OpcodeReject:
		return "REJECT"
	default:
		return "Unknown"
	}
}

// InquiryType is the second byte of an MDR application-layer payload: it
// selects which feature the payload refers to. Together (Opcode,
// InquiryType) form the correlation key spec.md §4.3 describes.
type InquiryType byte

const (
	InquiryInit            InquiryType = 0x00
	InquiryProtocolInfo    InquiryType = 0x01
	InquiryCapabilityInfo  InquiryType = 0x02
	InquiryDeviceInfo      InquiryType = 0x03
	InquiryPowerOff        InquiryType = 0x10
	InquiryBattery         InquiryType = 0x20
	InquiryBatteryLR       InquiryType = 0x21
	InquiryBatteryCradle   InquiryType = 0x22
	InquiryConnectionLR    InquiryType = 0x23
	InquiryNoiseCancelling InquiryType = 0x30
	InquiryAmbientSound    InquiryType = 0x31
	InquiryNCAndASM        InquiryType = 0x32
	InquiryEqualizer       InquiryType = 0x40
	InquiryAutoPowerOff    InquiryType = 0x50
	InquiryAssignableKeys  InquiryType = 0x60
	InquiryPlaybackVolume  InquiryType = 0x70
)

func (t InquiryType) String() string {
	switch t {
	case InquiryInit:
		return "INIT"
	case InquiryProtocolInfo:
		return "PROTOCOL_INFO"
	case InquiryCapabilityInfo:
		return "CAPABILITY_INFO"
	case InquiryDeviceInfo:
		return "DEVICE_INFO"
	case InquiryPowerOff:
		return "POWER_OFF"
	case InquiryBattery:
		return "BATTERY"
	case InquiryBatteryLR:
		return "BATTERY_LR"
	case InquiryBatteryCradle:
		return "BATTERY_CRADLE"
	case InquiryConnectionLR:
		return "CONNECTION_LR"
	case InquiryNoiseCancelling:
		return "NOISE_CANCELLING"
	case InquiryAmbientSound:
		return "AMBIENT_SOUND"
	case InquiryNCAndASM:
		return "NC_AND_ASM"
	case InquiryEqualizer:
		return "EQUALIZER"
	case InquiryAutoPowerOff:
		return "AUTO_POWER_OFF"
	case InquiryAssignableKeys:
		return "ASSIGNABLE_KEYS"
	case InquiryPlaybackVolume:
		return "PLAYBACK_VOLUME"
	default:
		return "Unknown"
	}
}

// AutoPowerOffElementID enumerates the device-side timeout identifiers,
// named after AndreasOlofsson/mdrd's mdr_packet_system_auto_power_off_
// element_id_t enumeration.
type AutoPowerOffElementID byte

const (
	AutoPowerOffOff      AutoPowerOffElementID = 0x00
	AutoPowerOff5Min     AutoPowerOffElementID = 0x01
	AutoPowerOff30Min    AutoPowerOffElementID = 0x02
	AutoPowerOff60Min    AutoPowerOffElementID = 0x03
	AutoPowerOff180Min   AutoPowerOffElementID = 0x04
)

// autoPowerOffNames maps wire element ids to the human-readable strings
// spec.md §4.5's Auto-power-off surface exposes.
var autoPowerOffNames = map[AutoPowerOffElementID]string{
	AutoPowerOffOff:    "Off",
	AutoPowerOff5Min:   "5 min",
	AutoPowerOff30Min:  "30 min",
	AutoPowerOff60Min:  "60 min",
	AutoPowerOff180Min: "180 min",
}

var autoPowerOffIDs = func() map[string]AutoPowerOffElementID {
	m := make(map[string]AutoPowerOffElementID, len(autoPowerOffNames))
	for id, name := range autoPowerOffNames {
		m[name] = id
	}
	return m
}()

// AssignableKey enumerates the physical/virtual keys that can carry a
// preset, named after mdr_packet_system_assignable_settings_key_t.
type AssignableKey byte

const (
	AssignableKeyLeftSide  AssignableKey = 0x00
	AssignableKeyRightSide AssignableKey = 0x01
	AssignableKeyCustom    AssignableKey = 0x02
	AssignableKeyC         AssignableKey = 0x03
)

var assignableKeyNames = map[AssignableKey]string{
	AssignableKeyLeftSide:  "left_side_key",
	AssignableKeyRightSide: "right_side_key",
	AssignableKeyCustom:    "custom_key",
	AssignableKeyC:         "c_key",
}

// AssignableKeyType distinguishes touch-sensor from physical-button keys,
// named after mdr_packet_system_assignable_settings_key_type_t.
type AssignableKeyType byte

const (
	AssignableKeyTypeTouchSensor AssignableKeyType = 0x00
	AssignableKeyTypeButton      AssignableKeyType = 0x01
)

// AssignablePreset enumerates the function groups a key's preset selects
// among, named after mdr_packet_system_assignable_settings_preset_t.
type AssignablePreset byte

const (
	PresetAmbientSoundControl AssignablePreset = 0x00
	PresetVolumeControl       AssignablePreset = 0x01
	PresetPlaybackControl     AssignablePreset = 0x02
	PresetVoiceRecognition    AssignablePreset = 0x03
	PresetGoogleAssistant     AssignablePreset = 0x04
	PresetAmazonAlexa         AssignablePreset = 0x05
	PresetTencentXiaowei      AssignablePreset = 0x06
	PresetNoFunction          AssignablePreset = 0x07
)

var assignablePresetNames = map[AssignablePreset]string{
	PresetAmbientSoundControl: "Ambient Sound Control",
	PresetVolumeControl:       "Volume Control",
	PresetPlaybackControl:     "Playback Control",
	PresetVoiceRecognition:    "Voice Recognition",
	PresetGoogleAssistant:     "Google Assistant",
	PresetAmazonAlexa:         "Amazon Alexa",
	PresetTencentXiaowei:      "Tencent Xiaowei",
	PresetNoFunction:          "No Function",
}

var assignablePresetIDs = func() map[string]AssignablePreset {
	m := make(map[string]AssignablePreset, len(assignablePresetNames))
	for id, name := range assignablePresetNames {
		m[name] = id
	}
	return m
}()

// eqPresetNames maps wire EQ preset ids to human names (spec.md §4.5).
// Bidirectional; unknown ids on read expose "<Unknown>" and are never
// accepted on write.
var eqPresetNames = map[byte]string{
	0x00: "Off",
	0x01: "Rock",
	0x02: "Pop",
	0x03: "Jazz",
	0x04: "Dance",
	0x05: "EDM",
	0x06: "R&B/Hip-Hop",
	0x07: "Acoustic",
	0x08: "Bright",
	0x09: "Excited",
	0x0A: "Mellow",
	0x0B: "Relaxed",
	0x0C: "Vocal",
	0x0D: "Treble",
	0x0E: "Bass",
	0x0F: "Speech",
	0x10: "Custom",
	0x11: "User Setting 1",
	0x12: "User Setting 2",
	0x13: "User Setting 3",
	0x14: "User Setting 4",
	0x15: "User Setting 5",
	0xFF: "Unspecified",
}

var eqPresetIDs = func() map[string]byte {
	m := make(map[string]byte, len(eqPresetNames))
	for id, name := range eqPresetNames {
		m[name] = id
	}
	return m
}()

const unknownPresetName = "<Unknown>"

// eqPresetName returns the human name for a wire EQ preset id, or
// "<Unknown>" if the id is not recognised.
func eqPresetName(id byte) string {
	if name, ok := eqPresetNames[id]; ok {
		return name
	}
	return unknownPresetName
}

// capabilityFlag enumerates the boolean functions discovered during
// GET_CAPABILITY_INFO (spec.md §4.4).
type capabilityFlag uint32

const (
	capBattery capabilityFlag = 1 << iota
	capBatteryLR
	capBatteryCradle
	capConnectionLR
	capNoiseCancelling
	capAmbientSound
	capNCAndASMCombined
	capEqualizer
	capAutoPowerOff
	capAssignableKeys
	capPlaybackVolume
	capPowerOff
)
