package mdr

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SessionState is a Session's lifecycle state (spec.md §3, §4.6):
// Handshaking -> Ready -> Draining -> Closed.
type SessionState int32

const (
	SessionHandshaking SessionState = iota
	SessionReady
	SessionDraining
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionHandshaking:
		return "Handshaking"
	case SessionReady:
		return "Ready"
	case SessionDraining:
		return "Draining"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SessionMetrics receives session-level observability events, layered over
// the link-level ones (spec.md §5 "event loop" model lends itself to a
// single Collector per session, mirroring gobfd's metrics package).
type SessionMetrics interface {
	LinkMetrics
	HandshakeFailed(reason string)
	SurfaceSeeded(name string, ok bool)
	Connected()
	Disconnected()
}

type noopSessionMetrics struct{ noopLinkMetrics }

func (noopSessionMetrics) HandshakeFailed(string)     {}
func (noopSessionMetrics) SurfaceSeeded(string, bool) {}
func (noopSessionMetrics) Connected()                 {}
func (noopSessionMetrics) Disconnected()              {}

// Surfaces aggregates the capability surfaces actually constructed for a
// device, gated by its CapabilitySet (spec.md §4.4, §4.5). Fields the
// device did not advertise are left nil; bus-layer code must check for nil
// before exporting an object for that capability.
type Surfaces struct {
	Identity         *IdentitySurface
	Power            *PowerSurface
	Battery          *BatterySurface
	LRBattery        *LRBatterySurface
	CradleBattery    *CradleBatterySurface
	ConnectionLR     *ConnectionLRSurface
	NoiseCancelling  *NoiseCancellingSurface
	AmbientSoundMode *AmbientSoundModeSurface
	Equalizer        *EqualizerSurface
	AutoPowerOff     *AutoPowerOffSurface
	AssignableKeys   *AssignableKeysSurface
	PlaybackVolume   *PlaybackVolumeSurface
}

// work is a closure posted onto the Session's own goroutine, e.g. from a
// D-Bus method handler that needs to call a surface's Set method. This
// replaces the source's manual cross-callback reference counting (spec.md
// §9 REDESIGN FLAG): a single owner goroutine and a work queue make it
// impossible to touch Session/Surface state from the wrong goroutine at
// all, rather than relying on refcount discipline to make it safe.
type work func()

// Session is the per-device MDR session supervisor (spec.md §3, §4.6). It
// owns exactly one goroutine (Run); every other exported method is safe to
// call from any goroutine and either reads an atomic snapshot or posts a
// closure through Enqueue.
type Session struct {
	id      string
	logger  *slog.Logger
	metrics SessionMetrics

	link       *Link
	dispatcher *Dispatcher

	state        atomic.Int32
	capabilities atomic.Pointer[CapabilitySet]
	surfaces     atomic.Pointer[Surfaces]

	onConnected func(*Session)
	onClosed    func(*Session)

	connectedOnce sync.Once
	inProgress    int // owned by the Session goroutine only

	workCh  chan work
	closeCh chan struct{}
}

// NewSession constructs a Session for device id, wrapping stream. logger
// and metrics may be nil. onConnected is invoked at most once, from the
// Session's own goroutine, after every surface's seed attempt has
// completed (spec.md §3: "exactly once, after every surface's initial
// registration has finished"). onClosed is invoked at most once when the
// session has fully torn down.
func NewSession(id string, stream Stream, logger *slog.Logger, metrics SessionMetrics, onConnected, onClosed func(*Session)) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopSessionMetrics{}
	}
	logger = logger.With(slog.String("component", "session"), slog.String("device_id", id))
	link := NewLink(stream, logger, metrics)
	return &Session{
		id:          id,
		logger:      logger,
		metrics:     metrics,
		link:        link,
		dispatcher:  NewDispatcher(link, logger),
		onConnected: onConnected,
		onClosed:    onClosed,
		workCh:      make(chan work),
		closeCh:     make(chan struct{}),
	}
}

// ID returns the device id this session was constructed with.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// CapabilitySet returns the device's discovered capabilities, or the zero
// value before the handshake completes.
func (s *Session) CapabilitySet() CapabilitySet {
	if c := s.capabilities.Load(); c != nil {
		return *c
	}
	return CapabilitySet{}
}

// Surfaces returns the constructed capability surfaces, or nil before the
// handshake completes.
func (s *Session) Surfaces() *Surfaces { return s.surfaces.Load() }

// Enqueue posts fn to run on the Session's own goroutine and blocks until
// it has run. It returns false without running fn if the session has
// already begun tearing down.
func (s *Session) Enqueue(fn func()) bool {
	done := make(chan struct{})
	wrapped := work(func() {
		fn()
		close(done)
	})
	select {
	case s.workCh <- wrapped:
		<-done
		return true
	case <-s.closeCh:
		return false
	}
}

// Run drives the session's single event loop until ctx is cancelled or the
// link fails. It must be called exactly once, from its own goroutine
// (spec.md §5: "single-threaded cooperative" per session).
func (s *Session) Run(ctx context.Context) {
	s.state.Store(int32(SessionHandshaking))
	s.logger.Info("session started")
	s.startHandshake()

	for {
		select {
		case <-ctx.Done():
			s.teardown(ErrPeerGone)
			return

		case fe := <-s.link.Frames():
			if fe.err != nil {
				s.teardown(fe.err)
				return
			}
			s.handleFrame(fe.frame)

		case <-s.link.RetryTimerC():
			s.link.HandleRetryTimer()

		case <-s.dispatcher.TimeoutTimerC():
			s.dispatcher.HandleTimeoutTimer()

		case w := <-s.workCh:
			w()
		}
	}
}

func (s *Session) handleFrame(f Frame) {
	if payload := s.link.HandleFrame(f); payload != nil {
		s.dispatcher.HandleInbound(payload)
	}
}

// startHandshake issues INIT, GET_PROTOCOL_INFO and GET_CAPABILITY_INFO in
// sequence (spec.md §4.6), then constructs and seeds every capability
// surface the device advertised.
func (s *Session) startHandshake() {
	s.dispatcher.Call(CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryInit}, nil,
		func([]byte) { s.requestProtocolInfo() },
		s.failHandshake,
	)
}

func (s *Session) requestProtocolInfo() {
	s.dispatcher.Call(CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryProtocolInfo}, nil,
		func([]byte) { s.requestCapabilityInfo() },
		s.failHandshake,
	)
}

func (s *Session) requestCapabilityInfo() {
	s.dispatcher.Call(CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryCapabilityInfo}, nil,
		func(body []byte) {
			caps, err := parseCapabilityInfo(body)
			if err != nil {
				s.failHandshake(err)
				return
			}
			s.capabilities.Store(&caps)
			s.seedSurfaces(caps)
		},
		s.failHandshake,
	)
}

func (s *Session) failHandshake(err error) {
	s.metrics.HandshakeFailed(err.Error())
	s.logger.Warn("handshake failed", slog.String("err", err.Error()))
	s.teardown(err)
}

// seedSurfaces constructs every surface the device's CapabilitySet
// advertises and seeds each one. The aggregate Connected signal fires once
// every constructed surface's Seed has called back, success or failure
// (spec.md §3).
func (s *Session) seedSurfaces(caps CapabilitySet) {
	combined := caps.CombinedNCASM()
	surf := &Surfaces{
		Identity: NewIdentitySurface(s.dispatcher),
	}
	if caps.Has(capPowerOff) {
		surf.Power = NewPowerSurface(s.dispatcher)
	}
	if caps.Has(capBattery) {
		surf.Battery = NewBatterySurface(s.dispatcher)
	}
	if caps.Has(capBatteryLR) {
		surf.LRBattery = NewLRBatterySurface(s.dispatcher)
	}
	if caps.Has(capBatteryCradle) {
		surf.CradleBattery = NewCradleBatterySurface(s.dispatcher)
	}
	if caps.Has(capConnectionLR) {
		surf.ConnectionLR = NewConnectionLRSurface(s.dispatcher)
	}
	if caps.Has(capNoiseCancelling) || combined {
		surf.NoiseCancelling = NewNoiseCancellingSurface(s.dispatcher, combined)
	}
	if caps.Has(capAmbientSound) || combined {
		surf.AmbientSoundMode = NewAmbientSoundModeSurface(s.dispatcher, combined)
	}
	if caps.Has(capEqualizer) {
		surf.Equalizer = NewEqualizerSurface(s.dispatcher)
	}
	if caps.Has(capAutoPowerOff) {
		surf.AutoPowerOff = NewAutoPowerOffSurface(s.dispatcher)
	}
	if caps.Has(capAssignableKeys) {
		surf.AssignableKeys = NewAssignableKeysSurface(s.dispatcher)
	}
	if caps.Has(capPlaybackVolume) {
		surf.PlaybackVolume = NewPlaybackVolumeSurface(s.dispatcher)
	}

	s.surfaces.Store(surf)
	all := make([]Surface, 0, 12)
	all = append(all, surf.Identity)
	if surf.Power != nil {
		all = append(all, surf.Power)
	}
	if surf.Battery != nil {
		all = append(all, surf.Battery)
	}
	if surf.LRBattery != nil {
		all = append(all, surf.LRBattery)
	}
	if surf.CradleBattery != nil {
		all = append(all, surf.CradleBattery)
	}
	if surf.ConnectionLR != nil {
		all = append(all, surf.ConnectionLR)
	}
	if surf.NoiseCancelling != nil {
		all = append(all, surf.NoiseCancelling)
	}
	if surf.AmbientSoundMode != nil {
		all = append(all, surf.AmbientSoundMode)
	}
	if surf.Equalizer != nil {
		all = append(all, surf.Equalizer)
	}
	if surf.AutoPowerOff != nil {
		all = append(all, surf.AutoPowerOff)
	}
	if surf.AssignableKeys != nil {
		all = append(all, surf.AssignableKeys)
	}
	if surf.PlaybackVolume != nil {
		all = append(all, surf.PlaybackVolume)
	}
	s.inProgress = len(all)
	if s.inProgress == 0 {
		s.finishSeeding()
		return
	}
	for _, one := range all {
		one := one
		one.Seed(func(ok bool) {
			s.metrics.SurfaceSeeded(one.Name(), ok)
			s.inProgress--
			if s.inProgress == 0 {
				s.finishSeeding()
			}
		})
	}
}

// finishSeeding is reachable from a seeding surface's done callback, which
// OnLinkDown can also drive synchronously if the link dies mid-seed (every
// awaiter failing can retire the last in-progress surface). Bail out once
// teardown has already moved the session past Ready so a link loss during
// seeding can't flip Connected just ahead of the Disconnected it's racing.
func (s *Session) finishSeeding() {
	st := SessionState(s.state.Load())
	if st == SessionDraining || st == SessionClosed {
		return
	}
	s.state.Store(int32(SessionReady))
	s.connectedOnce.Do(func() {
		s.metrics.Connected()
		if s.onConnected != nil {
			s.onConnected(s)
		}
	})
}

// teardown transitions the session to Draining then Closed, failing every
// pending request with PeerGone and detaching every subscriber (spec.md
// §4.6). Idempotent.
func (s *Session) teardown(_ error) {
	if SessionState(s.state.Load()) == SessionDraining || SessionState(s.state.Load()) == SessionClosed {
		return
	}
	s.state.Store(int32(SessionDraining))
	close(s.closeCh)
	s.dispatcher.OnLinkDown()
	s.link.OnLinkDown()
	s.link.Close()
	s.metrics.Disconnected()
	s.state.Store(int32(SessionClosed))
	s.logger.Info("session closed")
	if s.onClosed != nil {
		s.onClosed(s)
	}
}
