package mdr

// BatteryState is the cached state of the single-battery surface (spec.md
// §4.5: "level in 0..100, charging bool").
type BatteryState struct {
	Level    uint8
	Charging bool
}

// BatterySurface exposes a single battery level/charging pair. No inbound
// commands (spec.md §4.5 Battery row).
type BatterySurface struct {
	*pollableProperty[BatteryState]
}

// NewBatterySurface constructs the Battery surface.
func NewBatterySurface(d *Dispatcher) *BatterySurface {
	return &BatterySurface{
		pollableProperty: newPollableProperty(
			"Battery", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryBattery},
			InquiryBattery,
			decodeBatteryState,
			decodeBatteryState,
		),
	}
}

func decodeBatteryState(body []byte) (BatteryState, error) {
	if len(body) < 2 {
		return BatteryState{}, ErrBadFrame
	}
	level := body[0]
	if level > 100 {
		level = 100
	}
	return BatteryState{Level: level, Charging: body[1] != 0}, nil
}

// LRBatteryState is the cached state of the left/right battery surface
// (spec.md §4.5: "(level, charging) x 2").
type LRBatteryState struct {
	Left  BatteryState
	Right BatteryState
}

// LRBatterySurface exposes independent left/right battery readings. No
// inbound commands.
type LRBatterySurface struct {
	*pollableProperty[LRBatteryState]
}

// NewLRBatterySurface constructs the left/right Battery surface.
func NewLRBatterySurface(d *Dispatcher) *LRBatterySurface {
	return &LRBatterySurface{
		pollableProperty: newPollableProperty(
			"LeftRightBattery", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryBatteryLR},
			InquiryBatteryLR,
			decodeLRBatteryState,
			decodeLRBatteryState,
		),
	}
}

func decodeLRBatteryState(body []byte) (LRBatteryState, error) {
	if len(body) < 4 {
		return LRBatteryState{}, ErrBadFrame
	}
	clamp := func(v byte) uint8 {
		if v > 100 {
			return 100
		}
		return v
	}
	return LRBatteryState{
		Left:  BatteryState{Level: clamp(body[0]), Charging: body[1] != 0},
		Right: BatteryState{Level: clamp(body[2]), Charging: body[3] != 0},
	}, nil
}

// CradleBatterySurface exposes the charging cradle's own battery. No
// inbound commands.
type CradleBatterySurface struct {
	*pollableProperty[BatteryState]
}

// NewCradleBatterySurface constructs the charging-cradle Battery surface.
func NewCradleBatterySurface(d *Dispatcher) *CradleBatterySurface {
	return &CradleBatterySurface{
		pollableProperty: newPollableProperty(
			"CradleBattery", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryBatteryCradle},
			InquiryBatteryCradle,
			decodeBatteryState,
			decodeBatteryState,
		),
	}
}

// ConnectionLRState is the cached state of the left/right connection
// surface (spec.md §4.5: "left_connected, right_connected").
type ConnectionLRState struct {
	LeftConnected  bool
	RightConnected bool
}

// ConnectionLRSurface exposes whether each earbud is currently connected.
// No inbound commands.
type ConnectionLRSurface struct {
	*pollableProperty[ConnectionLRState]
}

// NewConnectionLRSurface constructs the left/right Connection surface.
func NewConnectionLRSurface(d *Dispatcher) *ConnectionLRSurface {
	return &ConnectionLRSurface{
		pollableProperty: newPollableProperty(
			"LeftRightConnection", d,
			CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryConnectionLR},
			InquiryConnectionLR,
			decodeConnectionLR,
			decodeConnectionLR,
		),
	}
}

func decodeConnectionLR(body []byte) (ConnectionLRState, error) {
	if len(body) < 2 {
		return ConnectionLRState{}, ErrBadFrame
	}
	return ConnectionLRState{LeftConnected: body[0] != 0, RightConnected: body[1] != 0}, nil
}
