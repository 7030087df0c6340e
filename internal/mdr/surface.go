package mdr

import (
	"sync"
	"sync/atomic"
)

// SurfaceState is a capability surface's lifecycle state (spec.md §4.5):
// Uninitialised -> Seeding -> Live, or Uninitialised -> Seeding -> Dead on
// seed failure.
type SurfaceState int32

const (
	SurfaceUninitialised SurfaceState = iota
	SurfaceSeeding
	SurfaceLive
	SurfaceDead
)

func (s SurfaceState) String() string {
	switch s {
	case SurfaceUninitialised:
		return "Uninitialised"
	case SurfaceSeeding:
		return "Seeding"
	case SurfaceLive:
		return "Live"
	case SurfaceDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Surface is the minimal contract the Session supervisor needs from every
// capability surface: a name for logging/object-path purposes, a way to
// kick off seeding exactly once, and a liveness check. Concrete surfaces
// (BatterySurface, EqualizerSurface, ...) expose their own typed Value()/
// Set...() methods beyond this interface; the Session only needs to drive
// the common lifecycle (spec.md §4.5, §9's "surface template duplication"
// note).
type Surface interface {
	Name() string
	Seed(done func(ok bool))
	State() SurfaceState
}

// pollableProperty is the generic "seed -> export -> subscribe -> respond"
// template spec.md §9 calls out: every capability surface is one instance
// of this, parameterised by its reply/notify decoders and its cached value
// type. Write commands are NOT generic here — each capability validates and
// encodes its own SET payloads, because validation rules differ per
// capability (spec.md §4.5's per-surface InvalidValue rules); pollable
// Property only owns the read side common to all twelve surfaces.
type pollableProperty[V any] struct {
	name       string
	dispatcher *Dispatcher
	getKey     CorrelationKey
	notifyType InquiryType

	decodeReply  func([]byte) (V, error)
	decodeNotify func([]byte) (V, error)

	state atomic.Int32

	mu       sync.Mutex
	value    V
	onChange func(V)
}

func newPollableProperty[V any](
	name string,
	dispatcher *Dispatcher,
	getKey CorrelationKey,
	notifyType InquiryType,
	decodeReply func([]byte) (V, error),
	decodeNotify func([]byte) (V, error),
) *pollableProperty[V] {
	return &pollableProperty[V]{
		name:         name,
		dispatcher:   dispatcher,
		getKey:       getKey,
		notifyType:   notifyType,
		decodeReply:  decodeReply,
		decodeNotify: decodeNotify,
	}
}

func (p *pollableProperty[V]) Name() string { return p.name }

func (p *pollableProperty[V]) State() SurfaceState {
	return SurfaceState(p.state.Load())
}

// Value returns a copy of the cached current value. Safe to call from any
// goroutine (e.g. a D-Bus property-Get handler running on godbus's own
// goroutine).
func (p *pollableProperty[V]) Value() V {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// OnChange registers the callback invoked, from the Session's goroutine,
// whenever the cached value changes (initial seed or a push notification).
// Typically wired by the bus layer to emit a PropertiesChanged signal.
func (p *pollableProperty[V]) OnChange(fn func(V)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *pollableProperty[V]) setValue(v V) {
	p.mu.Lock()
	p.value = v
	cb := p.onChange
	p.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// Seed issues the initial get-request and, on success, subscribes to push
// notifications and transitions to Live; on failure it transitions to Dead.
// done is invoked exactly once, regardless of outcome (spec.md §3: "The
// Session publishes its aggregate Connected signal exactly once, after
// every surface's initial registration has finished").
func (p *pollableProperty[V]) Seed(done func(ok bool)) {
	p.state.Store(int32(SurfaceSeeding))
	err := p.dispatcher.Call(p.getKey, nil, func(body []byte) {
		v, derr := p.decodeReply(body)
		if derr != nil {
			p.state.Store(int32(SurfaceDead))
			done(false)
			return
		}
		p.setValue(v)
		p.dispatcher.Subscribe(p.notifyType, p.handlePush)
		p.state.Store(int32(SurfaceLive))
		done(true)
	}, func(error) {
		p.state.Store(int32(SurfaceDead))
		done(false)
	})
	if err != nil {
		p.state.Store(int32(SurfaceDead))
		done(false)
	}
}

// handlePush decodes an inbound notification and reflects it into the
// cache, emitting a property-change via onChange.
func (p *pollableProperty[V]) handlePush(body []byte) {
	v, err := p.decodeNotify(body)
	if err != nil {
		return
	}
	p.setValue(v)
}
