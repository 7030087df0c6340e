package busif

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sony-mdr/mdrd/internal/mdr"
)

const sessionPathPrefix = "/org/mdr/session/"

// rootPath is where the ObjectManager interface is exported so mdrctl (and
// any other D-Bus caller) can enumerate live sessions without knowing device
// ids in advance.
const rootPath dbus.ObjectPath = "/org/mdr"

// Bus owns the D-Bus connection and every object currently exported for
// live sessions. It is the bridge between mdr.Manager/mdr.Session (which
// know nothing about D-Bus) and bluetoothd/application callers (which know
// nothing about mdr's internal types).
type Bus struct {
	conn    *dbus.Conn
	logger  *slog.Logger
	manager *mdr.Manager

	mu      sync.Mutex
	exports map[string][]dbus.ObjectPath // device id -> every path it exported
	ifaces  map[dbus.ObjectPath][]string // path -> interfaces it implements, for GetManagedObjects
}

// NewBus wraps an already-connected *dbus.Conn (system bus in production,
// a private bus in tests). It exports org.freedesktop.DBus.ObjectManager at
// rootPath so control clients (cmd/mdrctl) can discover live sessions and
// their capability objects without prior knowledge of device ids.
func NewBus(conn *dbus.Conn, manager *mdr.Manager, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		conn:    conn,
		logger:  logger.With(slog.String("component", "busif")),
		manager: manager,
		exports: make(map[string][]dbus.ObjectPath),
		ifaces:  make(map[dbus.ObjectPath][]string),
	}
	if err := conn.Export(b, rootPath, "org.freedesktop.DBus.ObjectManager"); err != nil {
		b.logger.Warn("failed to export ObjectManager", slog.String("err", err.Error()))
	}
	return b
}

// GetManagedObjects implements org.freedesktop.DBus.ObjectManager.
// Per-interface property maps are left empty: callers read actual property
// values via org.freedesktop.DBus.Properties.GetAll on the object itself,
// exactly as a BlueZ ObjectManager client would.
func (b *Bus) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(b.ifaces))
	for path, names := range b.ifaces {
		props := make(map[string]map[string]dbus.Variant, len(names))
		for _, name := range names {
			props[name] = map[string]dbus.Variant{}
		}
		out[path] = props
	}
	return out, nil
}

// trackObject records that path implements iface, for GetManagedObjects and
// InterfacesAdded, and emits InterfacesAdded immediately.
func (b *Bus) trackObject(path dbus.ObjectPath, iface string) {
	b.mu.Lock()
	b.ifaces[path] = append(b.ifaces[path], iface)
	b.mu.Unlock()

	props := map[string]map[string]dbus.Variant{iface: {}}
	if err := b.conn.Emit(rootPath, "org.freedesktop.DBus.ObjectManager.InterfacesAdded", path, props); err != nil {
		b.logger.Debug("failed to emit InterfacesAdded", slog.String("err", err.Error()))
	}
}

// sessionPath returns the object path prefix under which a device's
// capability objects are exported.
func sessionPath(id string) dbus.ObjectPath {
	safe := strings.Map(func(r rune) rune {
		if r == ':' || r == '/' {
			return '_'
		}
		return r
	}, id)
	return dbus.ObjectPath(sessionPathPrefix + safe)
}

func surfacePath(id, surfaceName string) dbus.ObjectPath {
	return dbus.ObjectPath(string(sessionPath(id)) + "/" + strings.ToLower(surfaceName))
}

// OnConnected is wired as mdr.Manager's onConnected callback: it exports one
// D-Bus object per live capability surface and emits Connected on the
// Identity object (spec.md §3, §6, §7).
func (b *Bus) OnConnected(sess *mdr.Session) {
	surf := sess.Surfaces()
	if surf == nil {
		return
	}
	var paths []dbus.ObjectPath

	paths = append(paths, b.exportIdentity(sess, surf.Identity))
	if surf.Power != nil {
		paths = append(paths, b.exportPower(sess, surf.Power))
	}
	if surf.Battery != nil {
		paths = append(paths, b.exportBattery(sess, surf.Battery))
	}
	if surf.LRBattery != nil {
		paths = append(paths, b.exportLRBattery(sess, surf.LRBattery))
	}
	if surf.CradleBattery != nil {
		paths = append(paths, b.exportCradleBattery(sess, surf.CradleBattery))
	}
	if surf.ConnectionLR != nil {
		paths = append(paths, b.exportConnectionLR(sess, surf.ConnectionLR))
	}
	if surf.NoiseCancelling != nil {
		paths = append(paths, b.exportNoiseCancelling(sess, surf.NoiseCancelling))
	}
	if surf.AmbientSoundMode != nil {
		paths = append(paths, b.exportAmbientSoundMode(sess, surf.AmbientSoundMode))
	}
	if surf.Equalizer != nil {
		paths = append(paths, b.exportEqualizer(sess, surf.Equalizer))
	}
	if surf.AutoPowerOff != nil {
		paths = append(paths, b.exportAutoPowerOff(sess, surf.AutoPowerOff))
	}
	if surf.AssignableKeys != nil {
		paths = append(paths, b.exportAssignableKeys(sess, surf.AssignableKeys))
	}
	if surf.PlaybackVolume != nil {
		paths = append(paths, b.exportPlaybackVolume(sess, surf.PlaybackVolume))
	}

	b.mu.Lock()
	b.exports[sess.ID()] = paths
	b.mu.Unlock()
	for _, p := range paths {
		b.trackObject(p, "org.freedesktop.DBus.Properties")
	}

	identityPath := surfacePath(sess.ID(), surf.Identity.Name())
	if err := b.conn.Emit(identityPath, "org.mdr.Identity.Connected"); err != nil {
		b.logger.Warn("failed to emit Connected signal", slog.String("err", err.Error()))
	}
}

// OnDisconnected is wired as mdr.Manager's session removal hook (via the
// daemon's own glue, since mdr.Session's onClosed is set at construction
// time in Manager.Accept — the daemon entry point chains manager removal
// and bus teardown together). It unexports every object the session owned
// and emits Disconnected on the Identity path before doing so.
func (b *Bus) OnDisconnected(id string) {
	b.mu.Lock()
	paths := b.exports[id]
	delete(b.exports, id)
	for _, p := range paths {
		delete(b.ifaces, p)
	}
	b.mu.Unlock()

	if len(paths) > 0 {
		if err := b.conn.Emit(paths[0], "org.mdr.Identity.Disconnected"); err != nil {
			b.logger.Warn("failed to emit Disconnected signal", slog.String("err", err.Error()))
		}
	}
	for _, p := range paths {
		if err := b.conn.Export(nil, p, "org.freedesktop.DBus.Properties"); err != nil {
			b.logger.Debug("failed to unexport properties interface", slog.String("path", string(p)), slog.String("err", err.Error()))
		}
		if err := b.conn.Emit(rootPath, "org.freedesktop.DBus.ObjectManager.InterfacesRemoved", p, []string{"org.freedesktop.DBus.Properties"}); err != nil {
			b.logger.Debug("failed to emit InterfacesRemoved", slog.String("err", err.Error()))
		}
	}
}

// callSync posts fn onto sess's own goroutine and blocks the calling (D-Bus
// dispatch) goroutine until the async MDR call it issues completes. This
// keeps every write to Session/Surface state on the single owning
// goroutine (spec.md §5) while presenting callers with the synchronous
// request/reply shape D-Bus methods expect.
func callSync(sess *mdr.Session, fn func(onOK func(), onErr func(error))) *dbus.Error {
	result := make(chan error, 1)
	posted := sess.Enqueue(func() {
		fn(func() { result <- nil }, func(err error) { result <- err })
	})
	if !posted {
		return toDBusError(mdr.ErrPeerGone)
	}
	return toDBusError(<-result)
}

// exportProps exports a read-only properties interface at path and returns
// the *prop.Properties handle so callers can push updates via SetMust. A
// failed export (e.g. the bus connection has gone away) is logged and
// returns nil; callers treat a nil handle as "updates are best-effort lost"
// rather than crashing the session over a transport hiccup.
func (b *Bus) exportProps(path dbus.ObjectPath, iface string, values map[string]interface{}) *prop.Properties {
	propMap := make(map[string]*prop.Prop, len(values))
	for name, v := range values {
		propMap[name] = &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
	}
	p, err := prop.Export(b.conn, path, prop.Map{iface: propMap})
	if err != nil {
		b.logger.Warn("failed to export properties", slog.String("path", string(path)), slog.String("err", err.Error()))
		return nil
	}
	return p
}
