package busif

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/sony-mdr/mdrd/internal/mdr"
)

// Each exportX method below does the same three things for one capability
// surface: export its current state as read-only D-Bus properties, wire
// OnChange so future pushes become PropertiesChanged signals, and (for
// surfaces with write operations) export a method-call object that
// forwards into callSync. This is intentionally repetitive rather than
// generic over reflection: every surface's property set and method
// signature genuinely differs (spec.md §4.5's table), and the adapter
// layer's only job is translating between that table and D-Bus shapes.

func (b *Bus) exportIdentity(sess *mdr.Session, s *mdr.IdentitySurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.Identity"
	p := b.exportProps(path, iface, map[string]interface{}{"ModelName": s.ModelName()})
	s.OnChange(func(name string) {
		if p != nil {
			p.SetMust(iface, "ModelName", name)
		}
	})
	return path
}

type powerObject struct {
	sess *mdr.Session
	surf *mdr.PowerSurface
}

func (o *powerObject) PowerOff() *dbus.Error {
	return callSync(o.sess, o.surf.PowerOff)
}

func (b *Bus) exportPower(sess *mdr.Session, s *mdr.PowerSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	if err := b.conn.Export(&powerObject{sess: sess, surf: s}, path, "org.mdr.Power"); err != nil {
		b.logger.Warn("failed to export Power methods", slog.String("err", err.Error()))
	}
	return path
}

func (b *Bus) exportBattery(sess *mdr.Session, s *mdr.BatterySurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.Battery"
	p := b.exportProps(path, iface, batteryPropValues(s.Value()))
	s.OnChange(func(v mdr.BatteryState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "Level", v.Level)
		p.SetMust(iface, "Charging", v.Charging)
	})
	return path
}

func batteryPropValues(v mdr.BatteryState) map[string]interface{} {
	return map[string]interface{}{"Level": v.Level, "Charging": v.Charging}
}

func (b *Bus) exportLRBattery(sess *mdr.Session, s *mdr.LRBatterySurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.LeftRightBattery"
	p := b.exportProps(path, iface, lrBatteryPropValues(s.Value()))
	s.OnChange(func(v mdr.LRBatteryState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "LeftLevel", v.Left.Level)
		p.SetMust(iface, "LeftCharging", v.Left.Charging)
		p.SetMust(iface, "RightLevel", v.Right.Level)
		p.SetMust(iface, "RightCharging", v.Right.Charging)
	})
	return path
}

func lrBatteryPropValues(v mdr.LRBatteryState) map[string]interface{} {
	return map[string]interface{}{
		"LeftLevel": v.Left.Level, "LeftCharging": v.Left.Charging,
		"RightLevel": v.Right.Level, "RightCharging": v.Right.Charging,
	}
}

func (b *Bus) exportCradleBattery(sess *mdr.Session, s *mdr.CradleBatterySurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.CradleBattery"
	p := b.exportProps(path, iface, batteryPropValues(s.Value()))
	s.OnChange(func(v mdr.BatteryState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "Level", v.Level)
		p.SetMust(iface, "Charging", v.Charging)
	})
	return path
}

func (b *Bus) exportConnectionLR(sess *mdr.Session, s *mdr.ConnectionLRSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.LeftRightConnection"
	v := s.Value()
	p := b.exportProps(path, iface, map[string]interface{}{
		"LeftConnected": v.LeftConnected, "RightConnected": v.RightConnected,
	})
	s.OnChange(func(v mdr.ConnectionLRState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "LeftConnected", v.LeftConnected)
		p.SetMust(iface, "RightConnected", v.RightConnected)
	})
	return path
}

type noiseCancellingObject struct {
	sess *mdr.Session
	surf *mdr.NoiseCancellingSurface
}

func (o *noiseCancellingObject) Enable() *dbus.Error {
	return callSync(o.sess, o.surf.Enable)
}

func (o *noiseCancellingObject) Disable() *dbus.Error {
	return callSync(o.sess, o.surf.Disable)
}

func (b *Bus) exportNoiseCancelling(sess *mdr.Session, s *mdr.NoiseCancellingSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.NoiseCancelling"
	if err := b.conn.Export(&noiseCancellingObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export NoiseCancelling methods", slog.String("err", err.Error()))
	}
	p := b.exportProps(path, iface, map[string]interface{}{"Enabled": s.Value().Enabled})
	s.OnChange(func(v mdr.NoiseCancellingState) {
		if p != nil {
			p.SetMust(iface, "Enabled", v.Enabled)
		}
	})
	return path
}

type ambientSoundModeObject struct {
	sess *mdr.Session
	surf *mdr.AmbientSoundModeSurface
}

func (o *ambientSoundModeObject) SetAmount(amount uint32) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetAmount(amount, onOK, onErr) })
}

func (o *ambientSoundModeObject) SetMode(mode string) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetMode(mode, onOK, onErr) })
}

func (b *Bus) exportAmbientSoundMode(sess *mdr.Session, s *mdr.AmbientSoundModeSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.AmbientSoundMode"
	if err := b.conn.Export(&ambientSoundModeObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export AmbientSoundMode methods", slog.String("err", err.Error()))
	}
	v := s.Value()
	p := b.exportProps(path, iface, map[string]interface{}{"Amount": v.Amount, "Mode": v.Mode})
	s.OnChange(func(v mdr.AmbientSoundModeState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "Amount", v.Amount)
		p.SetMust(iface, "Mode", v.Mode)
	})
	return path
}

type equalizerObject struct {
	sess *mdr.Session
	surf *mdr.EqualizerSurface
}

func (o *equalizerObject) SetPreset(name string) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetPreset(name, onOK, onErr) })
}

func (o *equalizerObject) SetLevels(levels []uint32) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetLevels(levels, onOK, onErr) })
}

func (b *Bus) exportEqualizer(sess *mdr.Session, s *mdr.EqualizerSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.Equalizer"
	if err := b.conn.Export(&equalizerObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export Equalizer methods", slog.String("err", err.Error()))
	}
	p := b.exportProps(path, iface, equalizerPropValues(s.Value()))
	s.OnChange(func(v mdr.EqualizerState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "BandCount", v.BandCount)
		p.SetMust(iface, "LevelSteps", v.LevelSteps)
		p.SetMust(iface, "PresetName", v.PresetName)
		p.SetMust(iface, "Levels", v.Levels)
	})
	return path
}

func equalizerPropValues(v mdr.EqualizerState) map[string]interface{} {
	return map[string]interface{}{
		"BandCount": v.BandCount, "LevelSteps": v.LevelSteps,
		"PresetName": v.PresetName, "Levels": v.Levels,
	}
}

type autoPowerOffObject struct {
	sess *mdr.Session
	surf *mdr.AutoPowerOffSurface
}

func (o *autoPowerOffObject) SetTimeout(timeout string) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetTimeout(timeout, onOK, onErr) })
}

func (b *Bus) exportAutoPowerOff(sess *mdr.Session, s *mdr.AutoPowerOffSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.AutoPowerOff"
	if err := b.conn.Export(&autoPowerOffObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export AutoPowerOff methods", slog.String("err", err.Error()))
	}
	p := b.exportProps(path, iface, map[string]interface{}{"Timeout": s.Value().Timeout})
	s.OnChange(func(v mdr.AutoPowerOffState) {
		if p != nil {
			p.SetMust(iface, "Timeout", v.Timeout)
		}
	})
	return path
}

type assignableKeysObject struct {
	sess *mdr.Session
	surf *mdr.AssignableKeysSurface
}

func (o *assignableKeysObject) SetPresets(assignments map[string]string) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetPresets(assignments, onOK, onErr) })
}

func (b *Bus) exportAssignableKeys(sess *mdr.Session, s *mdr.AssignableKeysSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.AssignableKeys"
	if err := b.conn.Export(&assignableKeysObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export AssignableKeys methods", slog.String("err", err.Error()))
	}
	p := b.exportProps(path, iface, assignableKeysPropValues(s.Value()))
	s.OnChange(func(v mdr.AssignableKeysState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "AvailablePresets", v.AvailablePresets)
		p.SetMust(iface, "CurrentPresets", v.CurrentPresets)
	})
	return path
}

func assignableKeysPropValues(v mdr.AssignableKeysState) map[string]interface{} {
	return map[string]interface{}{"AvailablePresets": v.AvailablePresets, "CurrentPresets": v.CurrentPresets}
}

type playbackVolumeObject struct {
	sess *mdr.Session
	surf *mdr.PlaybackVolumeSurface
}

func (o *playbackVolumeObject) SetVolume(volume byte) *dbus.Error {
	return callSync(o.sess, func(onOK func(), onErr func(error)) { o.surf.SetVolume(volume, onOK, onErr) })
}

func (b *Bus) exportPlaybackVolume(sess *mdr.Session, s *mdr.PlaybackVolumeSurface) dbus.ObjectPath {
	path := surfacePath(sess.ID(), s.Name())
	const iface = "org.mdr.PlaybackVolume"
	if err := b.conn.Export(&playbackVolumeObject{sess: sess, surf: s}, path, iface); err != nil {
		b.logger.Warn("failed to export PlaybackVolume methods", slog.String("err", err.Error()))
	}
	v := s.Value()
	p := b.exportProps(path, iface, map[string]interface{}{"Volume": v.Volume, "MaxVolume": v.MaxVolume})
	s.OnChange(func(v mdr.PlaybackVolumeState) {
		if p == nil {
			return
		}
		p.SetMust(iface, "Volume", v.Volume)
		p.SetMust(iface, "MaxVolume", v.MaxVolume)
	})
	return path
}
