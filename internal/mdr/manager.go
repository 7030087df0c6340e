package mdr

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager is the process-wide registrar of live sessions, keyed by device
// id (spec.md §4.6: "the supervisor is the sole registrar in a process-wide
// table keyed by device id"), grounded on bfd.Manager's discriminator-keyed
// session table.
type Manager struct {
	logger           *slog.Logger
	metricsFor       func(deviceID string) SessionMetrics
	handshakeTimeout time.Duration

	mu         sync.Mutex
	sessions   map[string]*Session
	cancels    map[string]context.CancelFunc
	closeHooks []func(id string)
}

// NewManager constructs an empty Manager. logger may be nil. metricsFor, if
// non-nil, is called once per accepted device id to obtain that session's
// SessionMetrics view (e.g. mdrmetrics.Collector.ForDevice) so every emitted
// metric carries a device_id label; a nil metricsFor disables metrics.
func NewManager(logger *slog.Logger, metricsFor func(deviceID string) SessionMetrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if metricsFor == nil {
		metricsFor = func(string) SessionMetrics { return noopSessionMetrics{} }
	}
	return &Manager{
		logger:     logger.With(slog.String("component", "manager")),
		metricsFor: metricsFor,
		sessions:   make(map[string]*Session),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetHandshakeTimeout bounds how long a device is allowed to stay in
// SessionHandshaking before Manager gives up on it and removes it, as if the
// link itself had failed. Zero (the default) disables the bound.
func (m *Manager) SetHandshakeTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakeTimeout = d
}

// Accept registers a new session for device id over stream and starts its
// event loop on a new goroutine. It fails with ErrDuplicateSession if a
// session for id is already registered (spec.md §4.6). onConnected is
// invoked, from the session's own goroutine, once the handshake and every
// surface's seed attempt have finished.
func (m *Manager) Accept(ctx context.Context, id string, stream Stream, onConnected func(*Session)) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateSession
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := NewSession(id, stream, m.logger, m.metricsFor(id), onConnected, m.onSessionClosed)
	m.sessions[id] = sess
	m.cancels[id] = cancel
	timeout := m.handshakeTimeout
	m.mu.Unlock()

	m.logger.Info("session accepted", slog.String("device_id", id))
	go sess.Run(sessCtx)
	if timeout > 0 {
		go m.watchHandshake(sess, timeout)
	}
	return sess, nil
}

// watchHandshake removes sess if it is still Handshaking once timeout
// elapses, bounding how long a slow or unresponsive device can occupy a
// registration slot.
func (m *Manager) watchHandshake(sess *Session, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	<-timer.C
	if sess.State() == SessionHandshaking {
		m.logger.Warn("handshake timed out", slog.String("device_id", sess.ID()))
		_ = m.Remove(sess.ID())
	}
}

// Remove tears down the session for id, if any, by cancelling its context;
// the session's own goroutine observes this via Run's ctx.Done() case and
// performs the actual teardown. Idempotent: Remove on an unknown id returns
// ErrSessionNotFound.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	cancel()
	return nil
}

// OnClose registers a hook invoked, after a session has been removed from
// the table, with its device id. The daemon entry point uses this to chain
// additional teardown (e.g. the D-Bus bridge unexporting that device's
// objects) onto a session's own close, since a Session's onClosed callback
// is fixed to m.onSessionClosed at construction time and cannot itself carry
// more than one destination.
func (m *Manager) OnClose(hook func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeHooks = append(m.closeHooks, hook)
}

// Lookup returns the session registered for id, if any.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns a snapshot slice of every currently registered session.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// onSessionClosed is wired as every Session's onClosed callback, unwinding
// the registration made in Accept (spec.md §4.6's "remove(id) closes the
// link and destroys the session", expressed here as the reverse: the
// session's own teardown drives its removal from the table).
func (m *Manager) onSessionClosed(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, sess.ID())
	delete(m.cancels, sess.ID())
	hooks := append([]func(id string){}, m.closeHooks...)
	m.mu.Unlock()
	m.logger.Info("session removed", slog.String("device_id", sess.ID()))
	for _, hook := range hooks {
		hook(sess.ID())
	}
}

// Close removes every registered session, cancelling each one's context and
// waiting for none of them: callers that need a synchronous drain should
// track each session's onClosed callback themselves. Used during daemon
// shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	for _, c := range m.cancels {
		cancels = append(cancels, c)
	}
	m.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
