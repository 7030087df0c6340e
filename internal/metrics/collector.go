// Package mdrmetrics adapts package mdr's LinkMetrics and SessionMetrics
// interfaces onto Prometheus, following the same namespace/subsystem/labels
// shape as the teacher daemon's bfdmetrics package.
package mdrmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sony-mdr/mdrd/internal/mdr"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "mdrd"
	subsystem = "session"
)

// Label names.
const (
	labelDeviceID  = "device_id"
	labelFrameKind = "frame_kind"
	labelReason    = "reason"
	labelSurface   = "surface"
	labelOutcome   = "outcome"
)

// -------------------------------------------------------------------------
// Collector — Prometheus mdr Session Metrics
// -------------------------------------------------------------------------

// Collector holds every mdr Prometheus metric and implements both
// mdr.LinkMetrics and mdr.SessionMetrics, each bound to the device id it was
// constructed for (see ForDevice). A single Collector is shared across the
// daemon's lifetime and registered once; ForDevice returns a cheap
// per-device view over the same underlying vectors.
type Collector struct {
	// FramesSent counts link-layer frames transmitted, labeled by kind.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts link-layer frames received, labeled by kind.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts frames discarded by the link layer, labeled by
	// the reason (bad checksum, unescape failure, out-of-sequence, etc).
	FramesDropped *prometheus.CounterVec

	// Retransmits counts DATA frame retransmissions triggered by RTO expiry.
	Retransmits *prometheus.CounterVec

	// LinksLost counts times a session's link gave up retrying and declared
	// the peer gone.
	LinksLost *prometheus.CounterVec

	// HandshakeFailures counts failed INIT/GET_PROTOCOL_INFO/
	// GET_CAPABILITY_INFO attempts, labeled by failure reason.
	HandshakeFailures *prometheus.CounterVec

	// SurfaceSeeds counts each capability surface's initial seed attempt,
	// labeled by surface name and outcome ("ok" or "fail").
	SurfaceSeeds *prometheus.CounterVec

	// Sessions tracks the number of currently connected (Ready) sessions.
	Sessions prometheus.Gauge

	// Connects counts sessions that completed handshake and seeding.
	Connects prometheus.Counter

	// Disconnects counts sessions that tore down, for any reason.
	Disconnects prometheus.Counter
}

// NewCollector creates a Collector with every metric registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.Retransmits,
		c.LinksLost,
		c.HandshakeFailures,
		c.SurfaceSeeds,
		c.Sessions,
		c.Connects,
		c.Disconnects,
	)

	return c
}

func newMetrics() *Collector {
	deviceLabels := []string{labelDeviceID}
	frameLabels := []string{labelDeviceID, labelFrameKind}
	reasonLabels := []string{labelDeviceID, labelReason}
	surfaceLabels := []string{labelDeviceID, labelSurface, labelOutcome}

	return &Collector{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total link-layer frames transmitted, by frame kind.",
		}, frameLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total link-layer frames received, by frame kind.",
		}, frameLabels),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total link-layer frames discarded, by reason.",
		}, reasonLabels),

		Retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retransmits_total",
			Help:      "Total DATA frame retransmissions triggered by RTO expiry.",
		}, deviceLabels),

		LinksLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "links_lost_total",
			Help:      "Total times a session's link exhausted its retry budget.",
		}, deviceLabels),

		HandshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshake_failures_total",
			Help:      "Total failed handshake attempts, by reason.",
		}, reasonLabels),

		SurfaceSeeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "surface_seeds_total",
			Help:      "Total capability surface seed attempts, by surface and outcome.",
		}, surfaceLabels),

		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of currently connected (Ready) sessions.",
		}),

		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connects_total",
			Help:      "Total sessions that completed handshake and capability seeding.",
		}),

		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Total sessions that tore down, for any reason.",
		}),
	}
}

// -------------------------------------------------------------------------
// Per-device view
// -------------------------------------------------------------------------

// deviceMetrics is the per-device view over a shared Collector, implementing
// mdr.SessionMetrics (which embeds mdr.LinkMetrics). NewSession receives one
// of these per device id rather than the Collector itself, so every metric
// the mdr package emits is automatically labeled.
type deviceMetrics struct {
	id string
	c  *Collector
}

// ForDevice returns the mdr.SessionMetrics view for device id, to be passed
// to mdr.NewSession (or mdr.Manager, which forwards it to every session it
// accepts).
func (c *Collector) ForDevice(id string) mdr.SessionMetrics {
	return deviceMetrics{id: id, c: c}
}

func (d deviceMetrics) FrameSent(kind mdr.FrameKind) {
	d.c.FramesSent.WithLabelValues(d.id, kind.String()).Inc()
}

func (d deviceMetrics) FrameReceived(kind mdr.FrameKind) {
	d.c.FramesReceived.WithLabelValues(d.id, kind.String()).Inc()
}

func (d deviceMetrics) FrameDropped(reason string) {
	d.c.FramesDropped.WithLabelValues(d.id, reason).Inc()
}

func (d deviceMetrics) Retransmit() {
	d.c.Retransmits.WithLabelValues(d.id).Inc()
}

func (d deviceMetrics) LinkLost() {
	d.c.LinksLost.WithLabelValues(d.id).Inc()
}

func (d deviceMetrics) HandshakeFailed(reason string) {
	d.c.HandshakeFailures.WithLabelValues(d.id, reason).Inc()
}

func (d deviceMetrics) SurfaceSeeded(name string, ok bool) {
	outcome := "fail"
	if ok {
		outcome = "ok"
	}
	d.c.SurfaceSeeds.WithLabelValues(d.id, name, outcome).Inc()
}

func (d deviceMetrics) Connected() {
	d.c.Sessions.Inc()
	d.c.Connects.Inc()
}

func (d deviceMetrics) Disconnected() {
	d.c.Sessions.Dec()
	d.c.Disconnects.Inc()
}
